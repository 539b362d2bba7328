package handler

import (
	"net/http"

	appI18n "github.com/edubridge/edubridge/internal/i18n"
	"github.com/edubridge/edubridge/internal/model"
)

type notesResponse struct {
	Success bool                          `json:"success"`
	Data    *model.IncorrectAnswersReport `json:"data,omitempty"`
	Error   string                        `json:"error,omitempty"`
}

func (h *Handler) handleMyIncorrectAnswers(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	h.writeNotes(w, r, user.ID)
}

func (h *Handler) handleStudentIncorrectAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	student, err := h.store.GetUserByID(id)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to get student")
		return
	}
	if student == nil || student.Role != model.UserRoleStudent {
		respondError(w, r, http.StatusNotFound, "NotFound")
		return
	}
	h.writeNotes(w, r, student.ID)
}

func (h *Handler) writeNotes(w http.ResponseWriter, r *http.Request, userID int64) {
	report, err := h.notes.Report(r.Context(), userID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build incorrect-answer notes", "user_id", userID, "error", err)
		respondJSON(w, http.StatusInternalServerError, notesResponse{
			Success: false,
			Error:   appI18n.T(r.Context(), "ReportUnavailable"),
		})
		return
	}
	respondJSON(w, http.StatusOK, notesResponse{Success: true, Data: report})
}

func (h *Handler) handleListProblems(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	difficulty := r.URL.Query().Get("difficulty")
	if err := h.validate.Var(difficulty, "omitempty,oneof=easy medium hard"); err != nil {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	problems, err := h.store.ListProblemsFiltered(r.Context(), subject, difficulty)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to list problems")
		return
	}
	// Students see the answer only through their attempt results.
	if user := model.UserFromContext(r.Context()); user.Role == model.UserRoleStudent {
		for i := range problems {
			problems[i].CorrectAnswer = ""
		}
	}
	respondJSON(w, http.StatusOK, problems)
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.store.ListDistinctSubjects(r.Context())
	if err != nil {
		h.handleStoreError(w, r, err, "failed to list subjects")
		return
	}
	respondJSON(w, http.StatusOK, subjects)
}

type attemptRequest struct {
	ProblemID      int64  `json:"problemId" validate:"required,gt=0"`
	SelectedAnswer string `json:"selectedAnswer" validate:"required,max=2000"`
	TimeSpent      *int   `json:"timeSpent" validate:"omitempty,gte=0"`
}

type attemptResponse struct {
	model.Attempt
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Explanation   string `json:"explanation,omitempty"`
}

func (h *Handler) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	user := model.UserFromContext(r.Context())

	attempt, err := h.store.RecordAttempt(r.Context(), user.ID, req.ProblemID, req.SelectedAnswer, req.TimeSpent)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to record attempt")
		return
	}
	h.logger.InfoContext(r.Context(), "attempt recorded",
		"user_id", user.ID, "problem_id", req.ProblemID, "attempt", attempt.AttemptNumber, "correct", attempt.IsCorrect)

	resp := attemptResponse{Attempt: attempt}
	if !attempt.IsCorrect {
		// A failed lookup only costs the explanation; the attempt is stored.
		if p, err := h.store.GetProblem(r.Context(), req.ProblemID); err == nil {
			resp.CorrectAnswer = p.CorrectAnswer
			resp.Explanation = p.Explanation
		}
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	attempts, err := h.store.ListAttempts(r.Context(), user.ID)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to list attempts")
		return
	}
	respondJSON(w, http.StatusOK, attempts)
}
