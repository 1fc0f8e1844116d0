// internal/scraping/client.go
package scraping

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/errors"
	commonhttp "autoapply-backend/internal/common/http"
	"autoapply-backend/internal/common/validation"
	"autoapply-backend/internal/models"
)

const responseSchemaName = "scraper.response"

// responseSchema is the minimum shape a scraper reply must have before its
// postings are handed to ingest. Individual postings are validated there.
var responseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"jobs"},
	"properties": map[string]interface{}{
		"success": map[string]interface{}{"type": "boolean"},
		"jobs": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "object"},
		},
		"totalJobsFound": map[string]interface{}{"type": "integer", "minimum": 0},
		"platformResults": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"platform"},
			},
		},
		"errors": map[string]interface{}{"type": "array"},
	},
}

type ScrapeSettings struct {
	MaxJobsPerPlatform int      `json:"maxJobsPerPlatform"`
	Platforms          []string `json:"platforms"`
	TimeoutMs          int      `json:"timeoutMs"`
}

type ProfileSummary struct {
	Skills          []string `json:"skills"`
	ExperienceLevel string   `json:"experienceLevel,omitempty"`
	Location        string   `json:"location,omitempty"`
}

type ScrapeRequest struct {
	SessionID      string                `json:"sessionId"`
	UserID         string                `json:"userId"`
	Criteria       models.SearchCriteria `json:"searchCriteria"`
	ProfileSummary ProfileSummary        `json:"userProfile"`
	Settings       ScrapeSettings        `json:"settings"`
}

// ScrapeError is a platform-level failure reported by the scraper itself.
type ScrapeError struct {
	Platform string `json:"platform"`
	Message  string `json:"message"`
}

type ScrapeResponse struct {
	Success         *bool                   `json:"success,omitempty"`
	Jobs            []models.RawPosting     `json:"jobs"`
	PlatformResults []models.PlatformResult `json:"platformResults"`
	TotalJobsFound  int                     `json:"totalJobsFound"`
	Errors          []ScrapeError           `json:"errors"`
	Message         string                  `json:"message,omitempty"`
}

// Scraper fetches raw postings for one session.
type Scraper interface {
	ScrapeJobs(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
}

// HTTPScraper calls the external job-discovery service over HTTP.
type HTTPScraper struct {
	client    *commonhttp.Client
	baseURL   string
	validator *validation.Validator
}

func NewHTTPScraper(cfg config.ScraperConfig) (*HTTPScraper, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scraper base_url is required")
	}
	v := validation.NewValidator()
	if err := v.Register(responseSchemaName, responseSchema); err != nil {
		return nil, fmt.Errorf("register scraper response schema: %w", err)
	}

	client := commonhttp.NewClient(time.Duration(cfg.Timeout) * time.Millisecond)
	if cfg.APIKey != "" {
		client = client.WithHeader("X-API-Key", cfg.APIKey)
	}
	return &HTTPScraper{
		client:    client,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		validator: v,
	}, nil
}

// ScrapeJobs posts the request to {baseURL}/api/scrape. Transport failures,
// non-2xx replies and replies that fail the response schema all surface as
// UPSTREAM_FAILURE.
func (s *HTTPScraper) ScrapeJobs(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	body, err := s.client.DoJSON(ctx, http.MethodPost, s.baseURL+"/api/scrape", req)
	if err != nil {
		var statusErr *commonhttp.StatusError
		if stderrors.As(err, &statusErr) {
			upstream := errors.NewUpstreamError("scraper",
				fmt.Errorf("scraper returned %d: %s", statusErr.StatusCode, truncate(statusErr.Body, 256)))
			upstream.Retryable = statusErr.StatusCode >= 500
			return nil, upstream
		}
		return nil, errors.NewUpstreamError("scraper", err)
	}

	result, err := s.validator.Validate(responseSchemaName, body)
	if err != nil {
		return nil, errors.NewUpstreamError("scraper", fmt.Errorf("malformed response: %w", err))
	}
	if !result.Valid {
		return nil, errors.NewUpstreamError("scraper",
			fmt.Errorf("malformed response: %s", strings.Join(result.GetErrorMessages(), "; ")))
	}

	var resp ScrapeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewUpstreamError("scraper", fmt.Errorf("decode response: %w", err))
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "scraper reported failure"
		}
		return nil, errors.NewUpstreamError("scraper", stderrors.New(msg))
	}
	return &resp, nil
}

// truncate keeps at most n bytes of s without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
