// internal/jobs/search.go
package jobs

import (
	"context"
	"strings"
	"time"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"

	"github.com/gocraft/dbr/v2"
)

// SearchParams filters and orders a job search. Zero values mean "no filter".
type SearchParams struct {
	Text         string
	Location     string
	JobType      models.JobType
	WorkType     models.WorkType
	SalaryMin    int
	SalaryMax    int
	MinScore     int
	PostedAfter  *time.Time
	SortBy       string
	SortDir      string
	Limit        int
	Offset       int
	TargetUserID string
	ReviewStatus models.ReviewStatus
	Status       models.JobStatus
}

type SearchResult struct {
	Jobs   []models.Job `json:"jobs"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// Searcher runs an already normalized search against one backend.
type Searcher interface {
	Search(ctx context.Context, p SearchParams) (*SearchResult, error)
}

// sortColumns whitelists caller sort keys.
var sortColumns = map[string]string{
	"matchScore": "match_score",
	"postedDate": "posted_date",
	"createdAt":  "created_at",
	"salary":     "salary_max",
	"title":      "title",
	"company":    "company",
}

const defaultSort = "matchScore"

func normalizeSort(p *SearchParams) error {
	if p.SortBy == "" {
		p.SortBy = defaultSort
	}
	if _, ok := sortColumns[p.SortBy]; !ok {
		return errors.NewValidationError("unsupported sort key: " + p.SortBy)
	}
	switch strings.ToLower(p.SortDir) {
	case "":
		p.SortDir = "desc"
	case "asc", "desc":
		p.SortDir = strings.ToLower(p.SortDir)
	default:
		return errors.NewValidationError("sort direction must be asc or desc")
	}
	return nil
}

// PostgresSearcher builds the search query with gocraft/dbr.
type PostgresSearcher struct {
	sess *dbr.Session
}

func NewPostgresSearcher(sess *dbr.Session) *PostgresSearcher {
	return &PostgresSearcher{sess: sess}
}

func (s *PostgresSearcher) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	conds := conditions(p)

	countStmt := s.sess.Select("COUNT(*)").From("jobs")
	if len(conds) > 0 {
		countStmt = countStmt.Where(dbr.And(conds...))
	}
	var total int64
	if err := countStmt.LoadOneContext(ctx, &total); err != nil {
		return nil, errors.NewDatabaseError("count jobs", err)
	}

	stmt := s.sess.Select(jobColumns...).From("jobs")
	if len(conds) > 0 {
		stmt = stmt.Where(dbr.And(conds...))
	}
	stmt = stmt.
		OrderDir(sortColumns[p.SortBy], p.SortDir == "asc").
		OrderDir("id", true).
		Limit(uint64(p.Limit)).
		Offset(uint64(p.Offset))

	rows, err := stmt.RowsContext(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("search jobs", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, errors.NewDatabaseError("scan jobs", err)
	}

	return &SearchResult{Jobs: jobs, Total: total, Limit: p.Limit, Offset: p.Offset}, nil
}

func conditions(p SearchParams) []dbr.Builder {
	var conds []dbr.Builder
	if p.TargetUserID != "" {
		conds = append(conds, dbr.Eq("target_user_id", p.TargetUserID))
	}
	if p.Status != "" {
		conds = append(conds, dbr.Eq("status", string(p.Status)))
	}
	if p.ReviewStatus != "" {
		conds = append(conds, dbr.Eq("admin_review_status", string(p.ReviewStatus)))
	}
	if p.JobType != "" {
		conds = append(conds, dbr.Eq("job_type", string(p.JobType)))
	}
	if p.WorkType != "" {
		conds = append(conds, dbr.Eq("work_type", string(p.WorkType)))
	}
	if text := strings.TrimSpace(p.Text); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		conds = append(conds, dbr.Or(
			dbr.Expr("title ILIKE ?", pattern),
			dbr.Expr("company ILIKE ?", pattern),
			dbr.Expr("description ILIKE ?", pattern),
		))
	}
	if loc := strings.TrimSpace(p.Location); loc != "" {
		conds = append(conds, dbr.Expr("location ILIKE ?", "%"+escapeLike(loc)+"%"))
	}
	// salary ranges overlap
	if p.SalaryMin > 0 {
		conds = append(conds, dbr.Gte("salary_max", p.SalaryMin))
	}
	if p.SalaryMax > 0 {
		conds = append(conds, dbr.Lte("salary_min", p.SalaryMax))
	}
	if p.MinScore > 0 {
		conds = append(conds, dbr.Gte("match_score", p.MinScore))
	}
	if p.PostedAfter != nil {
		conds = append(conds, dbr.Gte("posted_date", *p.PostedAfter))
	}
	return conds
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
