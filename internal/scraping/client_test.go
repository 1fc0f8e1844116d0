package scraping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScraperServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/scrape", r.URL.Path)
		assert.Equal(t, "scraper-key", r.Header.Get("X-API-Key"))

		var req ScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sess-1", req.SessionID)
		assert.Equal(t, []string{"linkedin"}, req.Settings.Platforms)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestScraper(t *testing.T, url string) *HTTPScraper {
	t.Helper()
	s, err := NewHTTPScraper(config.ScraperConfig{BaseURL: url + "/", APIKey: "scraper-key", Timeout: 2000})
	require.NoError(t, err)
	return s
}

var sampleRequest = ScrapeRequest{
	SessionID: "sess-1",
	UserID:    "u1",
	Criteria:  models.SearchCriteria{Keywords: []string{"golang"}},
	Settings:  ScrapeSettings{MaxJobsPerPlatform: 10, Platforms: []string{"linkedin"}, TimeoutMs: 2000},
}

func TestScrapeJobs_Success(t *testing.T) {
	srv := newScraperServer(t, http.StatusOK, `{
		"success": true,
		"jobs": [{"title": "Go Engineer", "company": "Acme", "platform": "linkedin"}],
		"platformResults": [{"platform": "linkedin", "jobsFound": 1, "success": true}],
		"totalJobsFound": 1,
		"errors": [{"platform": "indeed", "message": "captcha"}]
	}`)

	resp, err := newTestScraper(t, srv.URL).ScrapeJobs(context.Background(), sampleRequest)
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "Go Engineer", resp.Jobs[0].Title)
	assert.Equal(t, 1, resp.TotalJobsFound)
	assert.Equal(t, []ScrapeError{{Platform: "indeed", Message: "captcha"}}, resp.Errors)
	assert.True(t, resp.PlatformResults[0].Success)
}

func TestScrapeJobs_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway", retryable: true},
		{name: "client error", status: http.StatusUnauthorized, body: `{"error":"bad key"}`},
		{name: "missing jobs", status: http.StatusOK, body: `{"success": true}`},
		{name: "wrong shape", status: http.StatusOK, body: `{"jobs": "none"}`},
		{name: "not json", status: http.StatusOK, body: `<html></html>`},
		{name: "reported failure", status: http.StatusOK, body: `{"success": false, "jobs": [], "message": "quota exhausted"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newScraperServer(t, tt.status, tt.body)

			_, err := newTestScraper(t, srv.URL).ScrapeJobs(context.Background(), sampleRequest)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeUpstreamFailure, errors.CodeOf(err))
			if tt.retryable {
				assert.True(t, errors.Normalize(err).Retryable)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))

	// "é" is two bytes; cutting at 2 would split it
	got := truncate("aébc", 2)
	assert.Equal(t, "a...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestNewHTTPScraper_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPScraper(config.ScraperConfig{})
	assert.Error(t, err)
}
