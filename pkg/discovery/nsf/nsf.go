// Package nsf implements the NSF Award Search API discovery source: a
// paginated REST client, matching spec §4.2's requirement for "a paginated
// REST API client (NSF-style)".
package nsf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/grantradar/grantradar/pkg/httpx"
	"github.com/grantradar/grantradar/pkg/models"
)

const (
	sourceName = "nsf"
	pageSize   = 25
	baseURL    = "https://www.research.gov/common/webapi/awardapisearch-v1.htm"
)

// Client fetches new funding opportunities from NSF's award search API,
// paging through results until a page comes back short or empty.
type Client struct {
	http    *httpx.Client
	baseURL string
}

// New builds a Client. baseURL overrides the production endpoint for tests.
func New(http *httpx.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = nsfBaseURL()
	}
	return &Client{http: http, baseURL: baseURL}
}

func nsfBaseURL() string { return baseURL }

// Source identifies this fetcher to the shared discovery.Agent.
func (c *Client) Source() string { return sourceName }

type awardSearchResponse struct {
	Response struct {
		Award []award `json:"award"`
	} `json:"response"`
}

type award struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	AbstractText      string `json:"abstractText"`
	AgencyName        string `json:"agency"`
	FundsObligatedAmt string `json:"fundsObligatedAmt"`
	ExpDate           string `json:"expDate"` // MM/DD/YYYY
	Date              string `json:"date"`    // award posting date, MM/DD/YYYY
	AwardeeName       string `json:"awardeeName"`
}

// Fetch pages through NSF's award search, stopping when a page returns
// fewer than pageSize results, and normalizes every record regardless of
// lastCheck (NSF's search API has no reliable "since" filter finer than a
// date, so the caller's SeenSet dedup is what actually bounds republication).
func (c *Client) Fetch(ctx context.Context, lastCheck time.Time) ([]models.DiscoveredGrant, error) {
	var grants []models.DiscoveredGrant

	for offset := 1; ; offset += pageSize {
		q := url.Values{}
		q.Set("dateStart", lastCheck.Format("01/02/2006"))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("rpp", strconv.Itoa(pageSize))
		q.Set("printFields", "id,title,abstractText,agency,fundsObligatedAmt,expDate,date,awardeeName")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("build NSF request: %w", err)
		}

		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch NSF page at offset %d: %w", offset, err)
		}

		var page awardSearchResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode NSF page at offset %d: %w", offset, decodeErr)
		}

		for _, a := range page.Response.Award {
			grants = append(grants, normalize(a))
		}

		if len(page.Response.Award) < pageSize {
			break
		}
	}

	return grants, nil
}

func normalize(a award) models.DiscoveredGrant {
	now := time.Now().UTC()
	g := models.DiscoveredGrant{
		Source:        sourceName,
		ExternalID:    a.ID,
		Title:         a.Title,
		Description:   a.AbstractText,
		URL:           fmt.Sprintf("https://www.nsf.gov/awardsearch/showAward?AWD_ID=%s", a.ID),
		FundingAgency: firstNonEmpty(a.AgencyName, "National Science Foundation"),
		Eligibility:   a.AwardeeName,
		DiscoveredAt:  now,
	}
	if amt, err := strconv.ParseFloat(a.FundsObligatedAmt, 64); err == nil && amt > 0 {
		g.AmountMax = &amt
	}
	if d, err := time.Parse("01/02/2006", a.ExpDate); err == nil {
		g.Deadline = &d
	}
	if d, err := time.Parse("01/02/2006", a.Date); err == nil {
		g.PostedAt = &d
	}
	return g
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
