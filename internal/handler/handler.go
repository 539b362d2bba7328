package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appI18n "github.com/edubridge/edubridge/internal/i18n"
	"github.com/edubridge/edubridge/internal/llm"
	"github.com/edubridge/edubridge/internal/model"
	"github.com/edubridge/edubridge/internal/notes"
	"github.com/edubridge/edubridge/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	notes      *notes.Service
	summarizer llm.Summarizer
	config     model.ServerConfig
	logger     *slog.Logger
	validate   *validator.Validate
}

// New creates a new Handler. A nil summarizer falls back to llm.Placeholder.
func New(s *store.Store, svc *notes.Service, sum llm.Summarizer, cfg model.ServerConfig, logger *slog.Logger) (*Handler, error) {
	if s == nil || svc == nil {
		return nil, errors.New("handler: store and notes service are required")
	}
	if sum == nil {
		sum = llm.Placeholder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      s,
		notes:      svc,
		summarizer: sum,
		config:     cfg,
		logger:     logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/incorrect-answers", h.handleMyIncorrectAnswers)
			r.Get("/problems", h.handleListProblems)
			r.Get("/subjects", h.handleListSubjects)
			r.Get("/reports/{reportID}", h.handleGetReport)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleStudent))
				r.Get("/attempts", h.handleListAttempts)
				r.Post("/attempts", h.handleRecordAttempt)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
				r.Get("/students/{userID}/incorrect-answers", h.handleStudentIncorrectAnswers)
				r.Get("/students/{userID}/reports", h.handleListStudentReports)
				r.Post("/reports", h.handleCreateReport)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleListUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				r.Post("/problems", h.handleUploadProblems)
				r.Delete("/problems/{problemID}", h.handleDeleteProblem)
			})
		})
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondJSON encodes v before touching w so a marshal failure never
// leaves a half-written body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respondError writes a localized {"error": ...} body.
func respondError(w http.ResponseWriter, r *http.Request, status int, msgID string) {
	respondJSON(w, status, errorResponse{Error: appI18n.T(r.Context(), msgID)})
}

// handleStoreError maps store errors to HTTP responses.
func (h *Handler) handleStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	h.logger.ErrorContext(r.Context(), msg, "error", err)
	respondError(w, r, http.StatusInternalServerError, "InternalError")
}

// decodeJSON reads a JSON body into dst and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.DebugContext(r.Context(), "invalid request body", "error", err)
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.DebugContext(r.Context(), "request validation failed", "error", err)
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return false
	}
	return true
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}
