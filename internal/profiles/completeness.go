package profiles

import (
	"math"
	"strings"

	"autoapply-backend/internal/models"
)

// Completeness returns the percentage (0-100) of profile sections that are filled in.
func Completeness(p *models.UserProfile) int {
	if p == nil {
		return 0
	}
	checks := []bool{
		strings.TrimSpace(p.FullName) != "",
		strings.TrimSpace(p.Email) != "",
		strings.TrimSpace(p.Phone) != "",
		strings.TrimSpace(p.Location) != "",
		strings.TrimSpace(p.ExperienceLevel) != "",
		len(p.Skills) > 0,
		len(p.Preferences.DesiredRoles) > 0,
		len(p.Preferences.PreferredLocations) > 0,
		len(p.Preferences.PreferredJobTypes) > 0,
		len(p.Preferences.PreferredWorkTypes) > 0,
		p.Preferences.SalaryRange.Min > 0 || p.Preferences.SalaryRange.Max > 0,
	}

	filled := 0
	for _, ok := range checks {
		if ok {
			filled++
		}
	}
	return int(math.Round(float64(filled) * 100 / float64(len(checks))))
}
