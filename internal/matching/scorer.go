// internal/matching/scorer.go
package matching

import (
	"math"
	"strings"

	"autoapply-backend/internal/models"
)

// Factor weights. They sum to MaxScore.
const (
	SkillsWeight   = 40
	LocationWeight = 20
	JobTypeWeight  = 20
	WorkTypeWeight = 20

	MaxScore = 100
)

// Breakdown is the per-factor contribution behind a score.
type Breakdown struct {
	Skills        float64  `json:"skills"`
	Location      int      `json:"location"`
	JobType       int      `json:"jobType"`
	WorkType      int      `json:"workType"`
	Total         int      `json:"total"`
	MatchedSkills []string `json:"matchedSkills,omitempty"`
}

// Score returns the relevance of job to profile in [0,100]. It is pure and deterministic.
func Score(job *models.Job, profile *models.UserProfile) int {
	return Explain(job, profile).Total
}

// Explain computes the score together with its per-factor breakdown.
func Explain(job *models.Job, profile *models.UserProfile) Breakdown {
	if job == nil || profile == nil {
		return Breakdown{}
	}

	skills, matched := skillsFit(job.Skills, profile.Skills)
	b := Breakdown{
		Skills:        skills,
		Location:      locationFit(job, profile.Preferences.PreferredLocations),
		JobType:       membershipFit(string(job.JobType), profile.Preferences.PreferredJobTypes, JobTypeWeight),
		WorkType:      membershipFit(string(job.WorkType), profile.Preferences.PreferredWorkTypes, WorkTypeWeight),
		MatchedSkills: matched,
	}

	sum := b.Skills + float64(b.Location+b.JobType+b.WorkType)
	b.Total = clamp(int(math.Round(sum)), 0, MaxScore)
	return b
}

// Rescore recomputes a job's score. A nil profile keeps the prior score and reports false.
func Rescore(job *models.Job, profile *models.UserProfile) (int, bool) {
	if profile == nil {
		return job.MatchScore, false
	}
	return Score(job, profile), true
}

// skillsFit rewards covering the job's required skills: the denominator is the job's
// distinct skill count, not the profile's.
func skillsFit(jobSkills, profileSkills []string) (float64, []string) {
	required := normalizedSet(jobSkills)
	have := normalizedSet(profileSkills)
	if len(required) == 0 || len(have) == 0 {
		return 0, nil
	}

	var matched []string
	for _, s := range orderedUnique(jobSkills) {
		if _, ok := have[s]; ok {
			matched = append(matched, s)
		}
	}
	return SkillsWeight * float64(len(matched)) / float64(len(required)), matched
}

func locationFit(job *models.Job, preferred []string) int {
	if job.WorkType == models.WorkTypeRemote {
		return LocationWeight
	}
	jobLoc := normalize(job.Location)
	if jobLoc == "" {
		return 0
	}
	for _, p := range preferred {
		pref := normalize(p)
		if pref == "" {
			continue
		}
		if strings.Contains(jobLoc, pref) || strings.Contains(pref, jobLoc) {
			return LocationWeight
		}
	}
	return 0
}

func membershipFit(value string, preferred []string, weight int) int {
	v := normalize(value)
	if v == "" {
		return 0
	}
	for _, p := range preferred {
		if normalize(p) == v {
			return weight
		}
	}
	return 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizedSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		if n := normalize(it); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// orderedUnique keeps first-seen order so breakdowns are stable.
func orderedUnique(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		n := normalize(it)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
