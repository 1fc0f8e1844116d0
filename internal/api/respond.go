// internal/api/respond.go
package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"autoapply-backend/internal/common/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error *errors.StandardError `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	std := errors.Normalize(err)
	status := errors.HTTPStatus(std.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{"code": std.Code, "error": err.Error()})
	}
	s.writeJSON(w, status, errorBody{Error: std})
}

// decodeJSON reads an optional JSON body into v. Unknown fields are rejected.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// query reads typed query parameters, keeping the first parse error.
type query struct {
	values url.Values
	err    error
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) str(name string) string {
	return q.values.Get(name)
}

func (q *query) integer(name string) int {
	raw := q.values.Get(name)
	if raw == "" || q.err != nil {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.err = errors.NewValidationError(name + " must be an integer")
	}
	return n
}

func (q *query) boolean(name string) bool {
	raw := q.values.Get(name)
	if raw == "" || q.err != nil {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.err = errors.NewValidationError(name + " must be a boolean")
	}
	return b
}

func (q *query) timestamp(name string) *time.Time {
	raw := q.values.Get(name)
	if raw == "" || q.err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.err = errors.NewValidationError(name + " must be an RFC3339 timestamp")
		return nil
	}
	return &t
}
