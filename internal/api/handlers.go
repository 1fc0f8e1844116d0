// internal/api/handlers.go
package api

import (
	"net/http"

	"autoapply-backend/internal/applications"
	"autoapply-backend/internal/jobs"
	"autoapply-backend/internal/models"
)

type noteRequest struct {
	Note string `json:"note"`
}

type applicationReviewRequest struct {
	Decision models.ApplicationStatus `json:"decision"`
	Notes    string                   `json:"notes"`
}

type jobReviewRequest struct {
	Decision models.ReviewStatus `json:"decision"`
	Notes    string              `json:"notes"`
}

type jobStatusRequest struct {
	Status models.JobStatus `json:"status"`
}

type userRequest struct {
	UserID string `json:"userId"`
}

// --- Applications ---

func (s *Server) createApplication(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var in applications.CreateInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	in.JobID = r.PathValue("id")
	app, err := s.deps.Applications.Create(r.Context(), actor, in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, app)
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	q := newQuery(r)
	f := applications.ListFilter{
		UserID:          q.str("userId"),
		Status:          models.ApplicationStatus(q.str("status")),
		IncludeArchived: q.boolean("includeArchived"),
		Limit:           q.integer("limit"),
		Offset:          q.integer("offset"),
	}
	if q.err != nil {
		s.writeError(w, q.err)
		return
	}
	apps, err := s.deps.Applications.List(r.Context(), actor, f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"applications": apps, "count": len(apps)})
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	app, err := s.deps.Applications.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) updateApplication(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var upd applications.UserUpdate
	if err := decodeJSON(r, &upd); err != nil {
		s.writeError(w, err)
		return
	}
	app, err := s.deps.Applications.UpdateUserFields(r.Context(), actor, r.PathValue("id"), upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) withdrawApplication(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	app, err := s.deps.Applications.Withdraw(r.Context(), actor, r.PathValue("id"), req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) reviewApplication(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req applicationReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	app, err := s.deps.Applications.Review(r.Context(), actor, r.PathValue("id"), req.Decision, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) applyOnBehalf(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	app, err := s.deps.Applications.ApplyOnBehalf(r.Context(), actor, r.PathValue("id"), req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

func (s *Server) advanceApplication(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var in applications.AdvanceInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	app, err := s.deps.Applications.Advance(r.Context(), actor, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, app)
}

// --- Jobs ---

func (s *Server) searchJobs(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	q := newQuery(r)
	p := jobs.SearchParams{
		Text:         q.str("q"),
		Location:     q.str("location"),
		JobType:      models.JobType(q.str("jobType")),
		WorkType:     models.WorkType(q.str("workType")),
		SalaryMin:    q.integer("salaryMin"),
		SalaryMax:    q.integer("salaryMax"),
		MinScore:     q.integer("minScore"),
		PostedAfter:  q.timestamp("postedAfter"),
		SortBy:       q.str("sortBy"),
		SortDir:      q.str("sortDir"),
		Limit:        q.integer("limit"),
		Offset:       q.integer("offset"),
		TargetUserID: q.str("userId"),
		ReviewStatus: models.ReviewStatus(q.str("reviewStatus")),
		Status:       models.JobStatus(q.str("status")),
	}
	if q.err != nil {
		s.writeError(w, q.err)
		return
	}
	result, err := s.deps.Jobs.Search(r.Context(), actor, p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	job, err := s.deps.Jobs.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) reviewJob(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req jobReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.deps.Jobs.Review(r.Context(), actor, r.PathValue("id"), req.Decision, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) setJobStatus(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req jobStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.deps.Jobs.SetStatus(r.Context(), actor, r.PathValue("id"), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) refreshScores(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.UserID == "" {
		req.UserID = actor.ID
	}
	updated, err := s.deps.Jobs.RefreshScores(r.Context(), actor, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"userId": req.UserID, "updated": updated})
}

// --- Scraping ---

func (s *Server) triggerScraping(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.deps.Scraping.Trigger(r.Context(), actor, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) scrapingHistory(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	q := newQuery(r)
	userID, limit := q.str("userId"), q.integer("limit")
	if q.err != nil {
		s.writeError(w, q.err)
		return
	}
	sessions, err := s.deps.Scraping.History(r.Context(), actor, userID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) getScrapingSession(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	session, err := s.deps.Scraping.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) cancelScrapingSession(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	session, err := s.deps.Scraping.Cancel(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

// --- Stats ---

func (s *Server) applicationStats(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	summary, err := s.deps.Stats.ApplicationStats(r.Context(), actor, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) jobStats(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	summary, err := s.deps.Stats.JobStats(r.Context(), actor, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) scrapingStats(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	q := newQuery(r)
	userID, days := q.str("userId"), q.integer("days")
	if q.err != nil {
		s.writeError(w, q.err)
		return
	}
	summary, err := s.deps.Stats.ScrapingStats(r.Context(), actor, userID, days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}
