package jobs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	status   int
	body     string
	requests []*http.Request
	bodies   []string
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.bodies = append(f.bodies, string(b))
	} else {
		f.bodies = append(f.bodies, "")
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Elastic-Product", "Elasticsearch")
	return &http.Response{
		StatusCode: f.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

func newFakeIndex(t *testing.T, status int, body string) (*ElasticIndex, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{status: status, body: body}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{"http://es.local:9200"},
		Transport: ft,
	})
	require.NoError(t, err)
	return NewElasticIndex(client, "jobs"), ft
}

// ==========================
// Search
// ==========================

func TestElasticSearch(t *testing.T) {
	resp := `{
		"hits": {
			"total": {"value": 7},
			"hits": [
				{"_source": {"id": "j1", "targetUser": "u1", "title": "Go Developer", "matchScore": 90}},
				{"_source": {"id": "j2", "targetUser": "u1", "title": "SRE", "matchScore": 70}}
			]
		}
	}`
	idx, ft := newFakeIndex(t, http.StatusOK, resp)

	result, err := idx.Search(context.Background(), SearchParams{
		TargetUserID: "u1",
		Status:       models.JobStatusActive,
		ReviewStatus: models.ReviewApproved,
		Text:         "go",
		MinScore:     60,
		SortBy:       "salary",
		SortDir:      "desc",
		Limit:        2,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 7, result.Total)
	require.Len(t, result.Jobs, 2)
	assert.Equal(t, "Go Developer", result.Jobs[0].Title)
	assert.Equal(t, 90, result.Jobs[0].MatchScore)

	require.Len(t, ft.requests, 1)
	assert.Equal(t, "/jobs/_search", ft.requests[0].URL.Path)
	assert.Equal(t, "2", ft.requests[0].URL.Query().Get("size"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(ft.bodies[0]), &body))
	filter := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Contains(t, filter, map[string]interface{}{"term": map[string]interface{}{"targetUser": "u1"}})
	assert.Contains(t, filter, map[string]interface{}{"term": map[string]interface{}{"adminReviewStatus": "approved"}})
	assert.Contains(t, ft.bodies[0], `"salary.max":{"order":"desc"}`)
}

func TestElasticSearch_LocationIsCaseInsensitiveSubstring(t *testing.T) {
	idx, ft := newFakeIndex(t, http.StatusOK, `{"hits": {"total": {"value": 0}, "hits": []}}`)

	_, err := idx.Search(context.Background(), SearchParams{Location: " berl*n ", SortBy: "matchScore", SortDir: "desc", Limit: 5})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(ft.bodies[0]), &body))
	filter := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Contains(t, filter, map[string]interface{}{
		"wildcard": map[string]interface{}{
			"location.keyword": map[string]interface{}{"value": `*berl\*n*`, "case_insensitive": true},
		},
	})
}

func TestElasticSearch_ErrorResponse(t *testing.T) {
	idx, _ := newFakeIndex(t, http.StatusInternalServerError, `{"error": "boom"}`)

	_, err := idx.Search(context.Background(), SearchParams{SortBy: "matchScore", SortDir: "desc", Limit: 10})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSearchFailure, errors.CodeOf(err))
}

// ==========================
// Indexing
// ==========================

func TestElasticIndex_IndexAndMarkStatus(t *testing.T) {
	idx, ft := newFakeIndex(t, http.StatusOK, `{"result": "created"}`)

	job := sampleJob("j1", "u1", models.JobStatusActive, models.ReviewPending)
	require.NoError(t, idx.Index(context.Background(), &job))
	require.NoError(t, idx.MarkStatus(context.Background(), []string{"j1", "j2"}, models.JobStatusExpired))
	require.NoError(t, idx.MarkStatus(context.Background(), nil, models.JobStatusExpired))

	require.Len(t, ft.requests, 2)
	assert.Equal(t, http.MethodPut, ft.requests[0].Method)
	assert.Equal(t, "/jobs/_doc/j1", ft.requests[0].URL.Path)
	assert.Contains(t, ft.bodies[0], `"targetUser":"u1"`)

	assert.Equal(t, "/jobs/_update_by_query", ft.requests[1].URL.Path)
	assert.Equal(t, "proceed", ft.requests[1].URL.Query().Get("conflicts"))
	assert.Contains(t, ft.bodies[1], `"status":"expired"`)
}

func TestElasticIndex_SetApplicationStatus(t *testing.T) {
	idx, ft := newFakeIndex(t, http.StatusOK, `{"result": "updated"}`)

	require.NoError(t, idx.SetApplicationStatus(context.Background(), "j1", models.JobInterview))
	require.Len(t, ft.requests, 1)
	assert.Equal(t, "/jobs/_update/j1", ft.requests[0].URL.Path)
	assert.JSONEq(t, `{"doc":{"applicationStatus":"interview"}}`, ft.bodies[0])

	failing, _ := newFakeIndex(t, http.StatusNotFound, `{"error": "document_missing_exception"}`)
	err := failing.SetApplicationStatus(context.Background(), "j404", models.JobApplied)
	assert.Equal(t, errors.ErrCodeSearchFailure, errors.CodeOf(err))
}
