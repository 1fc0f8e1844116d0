// internal/workers/application/apply-on-behalf/models.go
package applyonbehalf

import "time"

type Input struct {
	ApplicationID string `json:"applicationId"`
	AdminID       string `json:"adminId,omitempty"` // recorded as appliedBy; defaults to the system actor
	Note          string `json:"note,omitempty"`
}

type Output struct {
	ApplicationID string     `json:"applicationId"`
	Status        string     `json:"status"`
	AppliedBy     string     `json:"appliedBy"`
	AppliedAt     *time.Time `json:"appliedAt,omitempty"`
}
