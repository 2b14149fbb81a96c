package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/registry"
	"github.com/brightkite/channelpull/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// submitRequest mirrors the POST /v1/pulls body. Dates arrive as RFC3339
// strings and the delay as a Go duration string; both are converted here so
// the puller only ever sees a well-formed pull.Config.
type submitRequest struct {
	ChannelID            string `json:"channelId"`
	ChannelName          string `json:"channelName"`
	StartDate            string `json:"startDate"`
	EndDate              string `json:"endDate"`
	IncludeThreads       *bool  `json:"includeThreads"`
	BatchSize            int    `json:"batchSize"`
	DelayBetweenRequests string `json:"delayBetweenRequests"`
	UserID               string `json:"userId"`
}

func (req submitRequest) toConfig() (pull.Config, error) {
	cfg := pull.Config{
		ChannelID:      req.ChannelID,
		ChannelName:    req.ChannelName,
		IncludeThreads: true,
		BatchSize:      req.BatchSize,
		UserID:         req.UserID,
	}
	if req.IncludeThreads != nil {
		cfg.IncludeThreads = *req.IncludeThreads
	}
	if req.StartDate != "" {
		t, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			return pull.Config{}, &pull.ValidationError{Field: "startDate", Reason: "must be an RFC3339 timestamp"}
		}
		cfg.StartDate = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			return pull.Config{}, &pull.ValidationError{Field: "endDate", Reason: "must be an RFC3339 timestamp"}
		}
		cfg.EndDate = &t
	}
	if req.DelayBetweenRequests != "" {
		d, err := time.ParseDuration(req.DelayBetweenRequests)
		if err != nil {
			return pull.Config{}, &pull.ValidationError{Field: "delayBetweenRequests", Reason: "must be a duration string such as 1s or 750ms"}
		}
		cfg.DelayBetweenRequests = d
	}
	return cfg, nil
}

type submitResponse struct {
	pull.Job
	EstimatedCompletion time.Time `json:"estimatedCompletion"`
}

// submitPull handles POST /v1/pulls. Success returns 202 with the QUEUED job
// record and an estimated completion time.
func (s *Server) submitPull(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return
	}

	cfg, err := req.toConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	job, eta, err := s.service.StartChannelPull(r.Context(), cfg)
	if err != nil {
		var ve *pull.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, codeValidation, ve.Error())
		case errors.Is(err, registry.ErrConflict), errors.Is(err, registry.ErrCapacity):
			writeError(w, http.StatusConflict, codeConflict, err.Error())
		default:
			s.logger.Error("submit pull failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternal, "failed to start pull")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Job: job, EstimatedCompletion: eta})
}

// getPull handles GET /v1/pulls/{pull_id}.
func (s *Server) getPull(w http.ResponseWriter, r *http.Request) {
	pullID := chi.URLParam(r, "pull_id")
	if pullID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "pull_id is required")
		return
	}
	job, err := s.service.GetProgress(r.Context(), pullID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "pull not found")
			return
		}
		s.logger.Error("get pull failed", zap.String("pull_id", pullID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to load pull")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// listPulls handles GET /v1/pulls?action=. The action discriminator selects
// active jobs (default), the durable history, or one of the channel listings.
func (s *Server) listPulls(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action == "" {
		action = "active"
	}
	switch action {
	case "active":
		writeJSON(w, http.StatusOK, map[string]any{"pulls": jobList(s.service.ListActive())})
	case "all":
		limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		jobs, err := s.service.ListAll(r.Context(), limit, offset)
		if err != nil {
			s.logger.Error("list pulls failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternal, "failed to list pulls")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pulls": jobList(jobs)})
	case "channels":
		channels, err := s.service.ListChannels(r.Context())
		if err != nil {
			s.logger.Error("list channels failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternal, "failed to list channels")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": channelList(channels)})
	case "all_channels":
		channels, err := s.service.ListAllChannels(r.Context())
		if err != nil {
			s.logger.Error("list all channels failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, codeInternal, "failed to list channels")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": channelList(channels)})
	default:
		writeError(w, http.StatusBadRequest, codeBadRequest, "unknown action")
	}
}

// cancelPull handles DELETE /v1/pulls/{pull_id}. Cancelling a terminal job is
// idempotent: it reports cancelled=false with the final status instead of an
// error.
func (s *Server) cancelPull(w http.ResponseWriter, r *http.Request) {
	pullID := chi.URLParam(r, "pull_id")
	if pullID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "pull_id is required")
		return
	}
	if s.service.CancelPull(pullID) {
		writeJSON(w, http.StatusAccepted, map[string]any{"pullId": pullID, "cancelled": true})
		return
	}
	job, err := s.service.GetProgress(r.Context(), pullID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, "pull not found")
			return
		}
		s.logger.Error("cancel pull failed", zap.String("pull_id", pullID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to cancel pull")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pullId":    pullID,
		"cancelled": false,
		"status":    job.Status,
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

// jobList and channelList keep empty results serializing as [] rather than null.
func jobList(jobs []pull.Job) []pull.Job {
	if jobs == nil {
		return []pull.Job{}
	}
	return jobs
}

func channelList(channels []pull.Channel) []pull.Channel {
	if channels == nil {
		return []pull.Channel{}
	}
	return channels
}
