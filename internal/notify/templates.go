// internal/notify/templates.go
package notify

import (
	"fmt"
	"strings"

	"autoapply-backend/internal/models"
)

type template struct {
	Subject string
	Body    string
}

var templates = map[models.ApplicationStatus]template{
	models.StatusApplied: {
		Subject: "Your application was submitted",
		Body:    "Hi {{name}}, we submitted your application {{applicationId}}. {{note}}",
	},
	models.StatusInterviewScheduled: {
		Subject: "Interview scheduled",
		Body:    "Hi {{name}}, an interview was scheduled for application {{applicationId}}. {{note}}",
	},
	models.StatusOfferReceived: {
		Subject: "You received an offer",
		Body:    "Congratulations {{name}}! Application {{applicationId}} resulted in an offer. {{note}}",
	},
	models.StatusRejectedByEmployer: {
		Subject: "Application update",
		Body:    "Hi {{name}}, the employer decided not to move forward with application {{applicationId}}. {{note}}",
	},
}

// highPriority statuses also go out by SMS.
var highPriority = map[models.ApplicationStatus]bool{
	models.StatusInterviewScheduled: true,
	models.StatusOfferReceived:      true,
}

func templateFor(status models.ApplicationStatus) template {
	if t, ok := templates[status]; ok {
		return t
	}
	return template{
		Subject: "Application status changed",
		Body:    "Hi {{name}}, application {{applicationId}} is now {{status}}. {{note}}",
	}
}

// render substitutes {{key}} placeholders in one left-to-right pass and drops
// any left unresolved. Substituted values are not scanned again.
func render(tmpl string, data map[string]interface{}) string {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])
		if v, ok := data[rest[start+2:start+end]]; ok && v != nil {
			b.WriteString(fmt.Sprintf("%v", v))
		}
		rest = rest[start+end+2:]
	}
	return strings.TrimSpace(b.String())
}
