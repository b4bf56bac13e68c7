package slackchannel

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// BuildMatchMessage renders Block Kit blocks for a grant-match alert,
// mirroring the section+button layout the teacher's pkg/slack/message.go
// uses for session notifications.
func BuildMatchMessage(title, explanation, grantURL string, matchScore float64) []goslack.Block {
	header := fmt.Sprintf(":mega: *New grant match (%.0f%%)*\n%s", matchScore, title)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if explanation != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, explanation, false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Grant", false, false))
	btn.URL = grantURL
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}
