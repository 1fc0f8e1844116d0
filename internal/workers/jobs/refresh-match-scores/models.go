// internal/workers/jobs/refresh-match-scores/models.go
package refreshmatchscores

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	UserID  string `json:"userId"`
	Updated int    `json:"updated"`
}
