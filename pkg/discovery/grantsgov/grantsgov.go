// Package grantsgov implements the Grants.gov discovery source: a daily
// bulk XML extract (Grants.gov deprecated its RSS feed in favor of an
// S3-hosted zipped XML dump), matching spec §4.2's "bulk-XML-or-RSS feed
// client (Grants.gov-style; may be an S3-hosted daily dump rather than
// RSS)".
package grantsgov

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grantradar/grantradar/pkg/httpx"
	"github.com/grantradar/grantradar/pkg/models"
)

const (
	sourceName    = "grants_gov"
	extractURLFmt = "https://prod-grants-gov-chatbot.s3.amazonaws.com/extracts/GrantsDBExtract%sv2.zip"
)

// Client downloads and parses Grants.gov's daily XML extract. Callers
// should set http.RateLimiter to ≤1 req/s (spec §4.2's Grants.gov rate
// limit), since one extract is fetched per day in range.
type Client struct {
	http          *httpx.Client
	extractURLFor func(time.Time) string
}

// New builds a Client. extractURLFor overrides the production URL template
// for tests; pass nil to use the real S3 URL pattern.
func New(http *httpx.Client, extractURLFor func(time.Time) string) *Client {
	if extractURLFor == nil {
		extractURLFor = func(t time.Time) string {
			return fmt.Sprintf(extractURLFmt, t.Format("20060102"))
		}
	}
	return &Client{http: http, extractURLFor: extractURLFor}
}

// Source identifies this fetcher to the shared discovery.Agent.
func (c *Client) Source() string { return sourceName }

// opportunity mirrors the subset of fields Grants.gov's
// GrantsDBExtract*v2.zip XML schema carries per <OpportunitySynopsisDetail_1_0>.
type opportunity struct {
	XMLName            xml.Name `xml:"OpportunitySynopsisDetail_1_0"`
	OpportunityID      string   `xml:"OpportunityID"`
	OpportunityTitle   string   `xml:"OpportunityTitle"`
	Description        string   `xml:"Description"`
	AgencyName         string   `xml:"AgencyName"`
	AwardCeiling       string   `xml:"AwardCeiling"`
	AwardFloor         string   `xml:"AwardFloor"`
	CloseDate          string   `xml:"CloseDate"` // MMDDYYYY
	PostDate           string   `xml:"PostDate"`  // MMDDYYYY
	EligibleApplicants string   `xml:"EligibleApplicants"`
}

type extractRoot struct {
	XMLName       xml.Name      `xml:"Grants"`
	Opportunities []opportunity `xml:"OpportunitySynopsisDetail_1_0"`
}

// Fetch downloads the daily extract covering lastCheck's date through
// today, one ZIP per day, and normalizes every opportunity inside.
func (c *Client) Fetch(ctx context.Context, lastCheck time.Time) ([]models.DiscoveredGrant, error) {
	var grants []models.DiscoveredGrant

	start := lastCheck
	if start.IsZero() {
		start = time.Now().Add(-24 * time.Hour)
	}

	for day := start; !day.After(time.Now()); day = day.Add(24 * time.Hour) {
		opps, err := c.fetchDay(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("fetch grants.gov extract for %s: %w", day.Format("2006-01-02"), err)
		}
		for _, o := range opps {
			grants = append(grants, normalize(o))
		}
	}

	return grants, nil
}

func (c *Client) fetchDay(ctx context.Context, day time.Time) ([]opportunity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.extractURLFor(day), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			// No extract published for this day yet (weekends/holidays).
			return nil, nil
		}
		return nil, fmt.Errorf("download zip: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read zip body: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var opps []opportunity
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		var root extractRoot
		decodeErr := xml.NewDecoder(rc).Decode(&root)
		_ = rc.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode zip entry %s: %w", f.Name, decodeErr)
		}
		opps = append(opps, root.Opportunities...)
	}
	return opps, nil
}

func normalize(o opportunity) models.DiscoveredGrant {
	now := time.Now().UTC()
	g := models.DiscoveredGrant{
		Source:        sourceName,
		ExternalID:    o.OpportunityID,
		Title:         o.OpportunityTitle,
		Description:   o.Description,
		URL:           fmt.Sprintf("https://www.grants.gov/search-results-detail/%s", o.OpportunityID),
		FundingAgency: firstNonEmpty(o.AgencyName, "Grants.gov"),
		Eligibility:   o.EligibleApplicants,
		DiscoveredAt:  now,
	}
	if v, ok := parseMoney(o.AwardFloor); ok {
		g.AmountMin = &v
	}
	if v, ok := parseMoney(o.AwardCeiling); ok {
		g.AmountMax = &v
	}
	if d, ok := parseMMDDYYYY(o.CloseDate); ok {
		g.Deadline = &d
	}
	if d, ok := parseMMDDYYYY(o.PostDate); ok {
		g.PostedAt = &d
	}
	return g
}

func parseMMDDYYYY(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	d, err := time.Parse("01022006", s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

func parseMoney(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
