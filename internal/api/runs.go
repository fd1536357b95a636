package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apprun "github.com/siteqa/siteqa/internal/application/run"
	"github.com/siteqa/siteqa/internal/browser"
	"github.com/siteqa/siteqa/internal/guard"
	"github.com/siteqa/siteqa/internal/infrastructure/stream"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
)

const defaultListLimit = 25

// RunCreateRequest is the body of POST /api/v1/runs. Login fields are
// optional; a login is attempted only when both username and password are
// present.
type RunCreateRequest struct {
	URL              string `json:"url"`
	LoginURL         string `json:"login_url,omitempty"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	UsernameSelector string `json:"username_selector,omitempty"`
	PasswordSelector string `json:"password_selector,omitempty"`
	SubmitSelector   string `json:"submit_selector,omitempty"`
	SuccessIndicator string `json:"success_indicator,omitempty"`
	MaxPages         int    `json:"max_pages,omitempty"`
}

// RunCreated is the 202 response of a started run.
type RunCreated struct {
	ID string `json:"id"`
}

func (req *RunCreateRequest) toRequest() apprun.Request {
	out := apprun.Request{URL: req.URL, MaxPages: req.MaxPages}
	if req.Username != "" && req.Password != "" {
		out.Login = &browser.LoginRequest{
			LoginURL:         req.LoginURL,
			Credentials:      browser.NewCredentials(req.Username, []byte(req.Password)),
			UsernameSelector: req.UsernameSelector,
			PasswordSelector: req.PasswordSelector,
			SubmitSelector:   req.SubmitSelector,
			SuccessIndicator: req.SuccessIndicator,
		}
	}
	req.Password = ""
	return out
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var body RunCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.URL == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	if body.MaxPages < 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("max_pages must not be negative"))
		return
	}

	id, err := s.cfg.Runs.StartRun(r.Context(), body.toRequest())
	if err != nil {
		var blocked *guard.BlockedOriginError
		switch {
		case errors.As(err, &blocked), errors.Is(err, sharedErrors.ErrInvalidInput):
			s.writeError(w, r, http.StatusBadRequest, err)
		default:
			s.writeError(w, r, http.StatusInternalServerError, err)
		}
		return
	}
	s.requestLogger(r).Info("run_accepted", zap.String("run_id", id), zap.String("target", body.URL))
	writeJSON(w, http.StatusAccepted, RunCreated{ID: id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.ListLimit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if q := r.URL.Query().Get("limit"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := s.cfg.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.cfg.Runs.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleRunStream replays the current snapshot, then sends one step event
// per recorded step and a final done event once the run is terminal.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	updates, unsubscribe, err := s.cfg.Runs.Subscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	defer unsubscribe()

	logger := s.requestLogger(r).With(zap.String("run_id", r.PathValue("id")))
	logger.Debug("stream_opened")
	defer logger.Debug("stream_closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if !s.writeEvent(w, "step", snap) {
				return
			}
			if snap.Terminal() {
				s.writeEvent(w, "done", stream.DoneOf(snap))
				flusher.Flush()
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, event string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		s.cfg.Logger.Error("failed to marshal stream event", zap.String("event", event), zap.Error(err))
		return false
	}
	return s.writeStreamChunk(w, []byte("event: "+event+"\n")) &&
		s.writeStreamChunk(w, []byte("data: ")) &&
		s.writeStreamChunk(w, data) &&
		s.writeStreamChunk(w, []byte("\n\n"))
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sharedErrors.ErrRunNotFound) || errors.Is(err, sharedErrors.ErrInvalidInput) ||
		errors.Is(err, sharedErrors.ErrEmptyRunID) {
		s.writeError(w, r, http.StatusNotFound, errors.New("run not found"))
		return
	}
	s.writeError(w, r, http.StatusInternalServerError, err)
}

var _ RunService = (*apprun.Orchestrator)(nil)
