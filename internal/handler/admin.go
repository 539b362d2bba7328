package handler

import (
	"errors"
	"io"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/edubridge/edubridge/internal/i18n"
	"github.com/edubridge/edubridge/internal/model"
	"github.com/edubridge/edubridge/internal/store"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := model.UserRole(r.URL.Query().Get("role"))
	if role != "" && !role.IsValid() {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	users, err := h.store.ListUsers(role)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username" validate:"required,alphanum,min=3,max=32"`
	DisplayName string         `json:"displayName" validate:"max=64"`
	Password    string         `json:"password" validate:"required,min=8,max=72"`
	Role        model.UserRole `json:"role" validate:"required,oneof=student teacher admin"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	existing, err := h.store.GetUserByUsername(req.Username)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to check username")
		return
	}
	if existing != nil {
		respondJSON(w, http.StatusConflict, errorResponse{Error: appI18n.T(r.Context(), "UsernameTaken")})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to hash password", "error", err)
		respondError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	user := model.User{
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	}
	user.ID, err = h.store.CreateUser(user)
	if err != nil {
		h.handleStoreError(w, r, err, "failed to create user")
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userID")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if self := model.UserFromContext(r.Context()); self.ID == id {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		h.handleStoreError(w, r, err, "failed to toggle user active")
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil || user == nil {
		h.handleStoreError(w, r, store.ErrNotFound, "toggled user vanished")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type uploadResponse struct {
	Imported int    `json:"imported"`
	Message  string `json:"message"`
}

func (h *Handler) handleUploadProblems(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}

	file, header, err := r.FormFile("problems_file")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read upload", "error", err)
		respondError(w, r, http.StatusInternalServerError, "InternalError")
		return
	}

	n, err := h.store.ImportProblems(header.Filename, data)
	switch {
	case errors.Is(err, store.ErrAlreadyImported), errors.Is(err, store.ErrImportChanged):
		respondJSON(w, http.StatusConflict, errorResponse{Error: appI18n.T(r.Context(), "UploadDuplicate")})
		return
	case errors.Is(err, store.ErrInvalidImport):
		h.logger.WarnContext(r.Context(), "problem upload rejected", "filename", header.Filename, "error", err)
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	case err != nil:
		h.handleStoreError(w, r, err, "failed to import problems")
		return
	}

	h.logger.InfoContext(r.Context(), "uploaded problems via admin", "filename", header.Filename, "count", n)
	respondJSON(w, http.StatusCreated, uploadResponse{
		Imported: n,
		Message:  appI18n.Tp(r.Context(), "ProblemsImported", n),
	})
}

func (h *Handler) handleDeleteProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "problemID")
	if !ok {
		respondError(w, r, http.StatusBadRequest, "InvalidRequest")
		return
	}
	if err := h.store.DeleteProblem(id); err != nil {
		h.handleStoreError(w, r, err, "failed to delete problem")
		return
	}
	h.logger.InfoContext(r.Context(), "problem deleted", "problem_id", id)
	w.WriteHeader(http.StatusNoContent)
}
