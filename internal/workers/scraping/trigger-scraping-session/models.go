// internal/workers/scraping/trigger-scraping-session/models.go
package triggerscrapingsession

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	SessionID string `json:"sessionId,omitempty"`
	Initiated bool   `json:"initiated"`
	Reason    string `json:"reason,omitempty"`
}
