package api

import (
	"encoding/json"
	"net/http"

	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/mylog"
	"github.com/mitchellh/mapstructure"
)

var errNoRoute = errors.Wrap(errors.ErrNotFound, "no such route")

type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidParams):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, mylog.Err(err))
		message = errors.ErrInternal.Error()
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, mylog.Err(err))
	}

	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to write response", mylog.Err(err))
	}
}

func (s *server) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, body)
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(errors.ErrInvalidParams, "invalid request body: %v", err)
	}
	return nil
}

// decodeQuery fills out from the URL query string. Values are weakly typed
// so "limit=5" decodes into an int field.
func decodeQuery(r *http.Request, out any) error {
	values := make(map[string]any, len(r.URL.Query()))
	for key, v := range r.URL.Query() {
		if len(v) > 0 {
			values[key] = v[0]
		}
	}

	if err := mapstructure.WeakDecode(values, out); err != nil {
		return errors.Wrapf(errors.ErrInvalidParams, "invalid query: %v", err)
	}
	return nil
}
