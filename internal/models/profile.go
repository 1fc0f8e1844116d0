// internal/models/profile.go
package models

// UserProfile is owned by the profile service and consumed read-only here.
type UserProfile struct {
	UserID              string         `json:"userId"`
	Email               string         `json:"email"`
	Phone               string         `json:"phone,omitempty"`
	FullName            string         `json:"fullName"`
	Skills              []string       `json:"skills"`
	ExperienceLevel     string         `json:"experienceLevel"`
	Location            string         `json:"location"`
	Preferences         JobPreferences `json:"jobPreferences"`
	OnboardingCompleted bool           `json:"onboardingCompleted"`
	PackageTier         string         `json:"packageTier"`
}

type JobPreferences struct {
	DesiredRoles       []string    `json:"desiredRoles"`
	PreferredLocations []string    `json:"preferredLocations"`
	PreferredJobTypes  []string    `json:"preferredJobTypes"`
	PreferredWorkTypes []string    `json:"preferredWorkTypes"`
	SalaryRange        SalaryRange `json:"salaryRange"`
}

type SalaryRange struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency"`
}
