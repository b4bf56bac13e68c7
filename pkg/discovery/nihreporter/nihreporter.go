// Package nihreporter implements the NIH Reporter API discovery source: a
// structured record API client that POSTs a criteria document and pages
// through results, matching spec §4.2's requirement for "a structured
// record API client (NIH-Reporter-style POST+criteria)".
package nihreporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/grantradar/grantradar/pkg/httpx"
	"github.com/grantradar/grantradar/pkg/models"
)

const (
	sourceName = "nih_reporter"
	pageSize   = 50
	baseURL    = "https://api.reporter.nih.gov/v2/projects/search"
)

// Client fetches active NIH-funded projects via the Reporter API's
// criteria-based search.
type Client struct {
	http    *httpx.Client
	baseURL string
}

// New builds a Client. baseURL overrides the production endpoint for tests.
func New(http *httpx.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = nihReporterBaseURL()
	}
	return &Client{http: http, baseURL: baseURL}
}

func nihReporterBaseURL() string { return baseURL }

// Source identifies this fetcher to the shared discovery.Agent.
func (c *Client) Source() string { return sourceName }

type searchRequest struct {
	Criteria struct {
		DateRange struct {
			FromDate string `json:"from_date"`
			ToDate   string `json:"to_date,omitempty"`
		} `json:"project_start_date"`
	} `json:"criteria"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

type searchResponse struct {
	Results []project `json:"results"`
	Meta    struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type project struct {
	CoreProjectNum   string  `json:"core_project_num"`
	ProjectTitle     string  `json:"project_title"`
	AbstractText     string  `json:"abstract_text"`
	AgencyIcAdmin    agency  `json:"agency_ic_admin"`
	AwardAmount      float64 `json:"award_amount"`
	ProjectStartDate string  `json:"project_start_date"`
	ProjectEndDate   string  `json:"project_end_date"`
	OrganizationName string  `json:"organization_name"`
}

type agency struct {
	Name string `json:"name"`
}

// Fetch POSTs a criteria document filtering on project_start_date >=
// lastCheck, paging until a page comes back short of pageSize.
func (c *Client) Fetch(ctx context.Context, lastCheck time.Time) ([]models.DiscoveredGrant, error) {
	var grants []models.DiscoveredGrant

	for offset := 0; ; offset += pageSize {
		var body searchRequest
		body.Criteria.DateRange.FromDate = lastCheck.Format("2006-01-02")
		body.Offset = offset
		body.Limit = pageSize

		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal NIH Reporter request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build NIH Reporter request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}

		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("fetch NIH Reporter page at offset %d: %w", offset, err)
		}

		var page searchResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode NIH Reporter page at offset %d: %w", offset, decodeErr)
		}

		for _, p := range page.Results {
			grants = append(grants, normalize(p))
		}

		if len(page.Results) < pageSize {
			break
		}
	}

	return grants, nil
}

func normalize(p project) models.DiscoveredGrant {
	now := time.Now().UTC()
	g := models.DiscoveredGrant{
		Source:        sourceName,
		ExternalID:    p.CoreProjectNum,
		Title:         p.ProjectTitle,
		Description:   p.AbstractText,
		URL:           fmt.Sprintf("https://reporter.nih.gov/project-details/%s", p.CoreProjectNum),
		FundingAgency: firstNonEmpty(p.AgencyIcAdmin.Name, "National Institutes of Health"),
		Eligibility:   p.OrganizationName,
		DiscoveredAt:  now,
	}
	if p.AwardAmount > 0 {
		amt := p.AwardAmount
		g.AmountMax = &amt
	}
	if d, err := time.Parse("2006-01-02", p.ProjectEndDate); err == nil {
		g.Deadline = &d
	}
	if d, err := time.Parse("2006-01-02", p.ProjectStartDate); err == nil {
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
