package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edubridge/edubridge/internal/llm"
	"github.com/edubridge/edubridge/internal/model"
)

type createReportRequest struct {
	StudentID int64 `json:"studentId" validate:"required,gt=0"`
}

// handleCreateReport snapshots a student's notes together with a
// narrative summary and stores it as a progress report.
func (h *Handler) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	author := model.UserFromContext(r.Context())

	student, err := h.store.GetUserByID(req.StudentID)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to get student")
		return
	}
	if student == nil || student.Role != model.UserRoleStudent {
		respondError(w, r, http.StatusNotFound, "NotFound")
		return
	}

	notes, err := h.notes.Report(r.Context(), student.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to build notes for report", "student_id", student.ID, "error", err)
		respondError(w, r, http.StatusInternalServerError, "ReportUnavailable")
		return
	}

	summary, err := h.summarizer.Summarize(r.Context(), *student, *notes)
	if err != nil {
		h.logger.WarnContext(r.Context(), "summarizer failed, using placeholder", "student_id", student.ID, "error", err)
		summary, _ = llm.Placeholder{}.Summarize(r.Context(), *student, *notes)
	}

	report := model.ProgressReport{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		AuthorID:  author.ID,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
		Notes:     *notes,
	}
	if err := h.store.SaveProgressReport(r.Context(), report); err != nil {
		h.handleStoreError(w, r, err, "failed to save progress report")
		return
	}

	h.logger.InfoContext(r.Context(), "progress report created",
		"report_id", report.ID, "student_id", student.ID, "author_id", author.ID)
	respondJSON(w, http.StatusCreated, report)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reportID")
	if err := uuid.Validate(id); err != nil {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	report, err := h.store.GetProgressReport(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to get progress report")
		return
	}

	user := model.UserFromContext(r.Context())
	if user.Role == model.UserRoleStudent && report.StudentID != user.ID {
		respondError(w, r, http.StatusForbidden, "Forbidden")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListStudentReports(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	reports, err := h.store.ListProgressReports(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to list progress reports")
		return
	}
	respondJSON(w, http.StatusOK, reports)
}
