// Package smschannel sends match alerts over a Twilio-style HTTP SMS API.
// No Twilio SDK appears anywhere in the retrieved example pack, so this is
// a typed client built directly on pkg/httpx rather than a fabricated
// dependency (spec §4.5 step 6).
package smschannel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/grantradar/grantradar/pkg/httpx"
)

// Client sends SMS messages through a Twilio-style POST endpoint. Per spec
// §4.5 step 6, SMS gets a single delivery attempt — the underlying
// httpx.Client is built with MaxRetries 0, so neither transport failures
// nor 5xx responses are retried, and there is no multi-attempt schedule the
// way email and Slack get.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	from    string
}

// Config supplies the connection details for New.
type Config struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
}

// New builds an smschannel.Client with no retry delays: a single send
// attempt, surfacing the provider's error as-is.
func New(cfg Config) *Client {
	hc := httpx.NewClient(cfg.Timeout)
	hc.MaxRetries = 0
	return &Client{http: hc, baseURL: cfg.BaseURL, apiKey: cfg.APIKey, from: cfg.FromNumber}
}

type sendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	SID string `json:"sid"`
}

// maxBodyLen is the hard SMS length ceiling, spec §4.5 "Content rules":
// title truncated to ≤50 chars, the final message must be ≤160 chars.
const maxBodyLen = 160

// Send delivers one SMS to phoneNumber. body is truncated to maxBodyLen if
// the caller did not already bound it. Returns the provider's SID.
func (c *Client) Send(ctx context.Context, phoneNumber, body string) (string, error) {
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen]
	}

	payload, err := json.Marshal(sendRequest{From: c.from, To: phoneNumber, Body: body})
	if err != nil {
		return "", fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}
	return out.SID, nil
}

// TruncateTitle truncates title to ≤50 chars with a trailing ellipsis, the
// SMS title rule from spec §4.5's content-rules paragraph.
func TruncateTitle(title string) string {
	const maxTitleLen = 50
	r := []rune(title)
	if len(r) <= maxTitleLen {
		return title
	}
	return string(r[:maxTitleLen-1]) + "…"
}
