// internal/jobs/elastic.go
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// JobsIndexMapping is applied when the jobs index is created.
const JobsIndexMapping = `{
  "mappings": {
    "properties": {
      "id":                {"type": "keyword"},
      "targetUser":        {"type": "keyword"},
      "title":             {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "company":           {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "location":          {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "description":       {"type": "text"},
      "workType":          {"type": "keyword"},
      "jobType":           {"type": "keyword"},
      "skills":            {"type": "keyword"},
      "status":            {"type": "keyword"},
      "adminReviewStatus": {"type": "keyword"},
      "applicationStatus": {"type": "keyword"},
      "matchScore":        {"type": "integer"},
      "salary": {
        "properties": {
          "min": {"type": "integer"},
          "max": {"type": "integer"},
          "currency": {"type": "keyword"},
          "period": {"type": "keyword"}
        }
      },
      "postedDate": {"type": "date"},
      "createdAt":  {"type": "date"}
    }
  }
}`

var esSortFields = map[string]string{
	"matchScore": "matchScore",
	"postedDate": "postedDate",
	"createdAt":  "createdAt",
	"salary":     "salary.max",
	"title":      "title.keyword",
	"company":    "company.keyword",
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// ElasticIndex is both the Elasticsearch search backend and the write-through indexer.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticIndex(client *elasticsearch.Client, index string) *ElasticIndex {
	if index == "" {
		index = "jobs"
	}
	return &ElasticIndex{client: client, index: index}
}

func (e *ElasticIndex) Index(ctx context.Context, job *models.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: job.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return errors.NewSearchError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchError(fmt.Errorf("index job %s: %s", job.ID, res.String()))
	}
	return nil
}

// MarkStatus sets status on the given documents with a single update_by_query.
func (e *ElasticIndex) MarkStatus(ctx context.Context, ids []string, status models.JobStatus) error {
	if len(ids) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": ids},
		},
		"script": map[string]interface{}{
			"source": "ctx._source.status = params.status",
			"lang":   "painless",
			"params": map[string]interface{}{"status": string(status)},
		},
	})
	if err != nil {
		return err
	}

	req := esapi.UpdateByQueryRequest{
		Index:     []string{e.index},
		Body:      bytes.NewReader(body),
		Conflicts: "proceed",
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return errors.NewSearchError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchError(fmt.Errorf("update_by_query: %s", res.String()))
	}
	return nil
}

// SetApplicationStatus updates the mirrored application status on one job document.
func (e *ElasticIndex) SetApplicationStatus(ctx context.Context, jobID string, status models.JobApplicationStatus) error {
	body, err := json.Marshal(map[string]interface{}{
		"doc": map[string]interface{}{"applicationStatus": string(status)},
	})
	if err != nil {
		return err
	}

	req := esapi.UpdateRequest{
		Index:      e.index,
		DocumentID: jobID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return errors.NewSearchError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchError(fmt.Errorf("update job %s: %s", jobID, res.String()))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.Job `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *ElasticIndex) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	body, err := json.Marshal(buildSearchBody(p))
	if err != nil {
		return nil, errors.NewSearchError(err)
	}

	req := esapi.SearchRequest{
		Index:          []string{e.index},
		Body:           strings.NewReader(string(body)),
		From:           &p.Offset,
		Size:           &p.Limit,
		TrackTotalHits: true,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, errors.NewSearchError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchError(fmt.Errorf("search query failed: %s", res.String()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errors.NewSearchError(fmt.Errorf("decode search response: %w", err))
	}

	result := &SearchResult{Jobs: []models.Job{}, Total: r.Hits.Total.Value, Limit: p.Limit, Offset: p.Offset}
	for _, hit := range r.Hits.Hits {
		result.Jobs = append(result.Jobs, hit.Source)
	}
	return result, nil
}

// buildSearchBody translates search params into a bool query with the same semantics as the SQL backend.
func buildSearchBody(p SearchParams) map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{}

	term := func(field, value string) {
		if value != "" {
			filter = append(filter, map[string]interface{}{"term": map[string]interface{}{field: value}})
		}
	}
	term("targetUser", p.TargetUserID)
	term("status", string(p.Status))
	term("adminReviewStatus", string(p.ReviewStatus))
	term("jobType", string(p.JobType))
	term("workType", string(p.WorkType))

	if text := strings.TrimSpace(p.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"title^3", "company^2", "description"},
				"type":   "best_fields",
			},
		})
	}
	// Case-insensitive substring, like ILIKE on the SQL backend.
	if loc := strings.TrimSpace(p.Location); loc != "" {
		filter = append(filter, map[string]interface{}{
			"wildcard": map[string]interface{}{
				"location.keyword": map[string]interface{}{
					"value":            "*" + wildcardEscaper.Replace(loc) + "*",
					"case_insensitive": true,
				},
			},
		})
	}

	rangeFilter := func(field, op string, value interface{}) {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{field: map[string]interface{}{op: value}},
		})
	}
	if p.SalaryMin > 0 {
		rangeFilter("salary.max", "gte", p.SalaryMin)
	}
	if p.SalaryMax > 0 {
		rangeFilter("salary.min", "lte", p.SalaryMax)
	}
	if p.MinScore > 0 {
		rangeFilter("matchScore", "gte", p.MinScore)
	}
	if p.PostedAfter != nil {
		rangeFilter("postedDate", "gte", p.PostedAfter.Format("2006-01-02T15:04:05Z07:00"))
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{esSortFields[p.SortBy]: map[string]interface{}{"order": p.SortDir}},
			map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
		},
	}
}
