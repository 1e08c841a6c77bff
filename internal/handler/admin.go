package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/model"
)

var errUserNotFound = errors.New("user not found")

const maxCatalogBytes = 10 << 20

// handleUploadCatalog accepts a catalog document either as the raw body or
// as a multipart "catalog_file" field. The file name keys de-duplication.
func (h *Handler) handleUploadCatalog(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	var data []byte
	var err error

	r.Body = http.MaxBytesReader(w, r.Body, maxCatalogBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxCatalogBytes); err != nil {
			writeError(w, r, errBadRequest)
			return
		}
		file, header, ferr := r.FormFile("catalog_file")
		if ferr != nil {
			writeError(w, r, errBadRequest)
			return
		}
		defer file.Close()
		if name == "" {
			name = header.Filename
		}
		data, err = io.ReadAll(file)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		writeError(w, r, errBadRequest)
		return
	}
	if name == "" {
		name = "upload.json"
	}

	res, err := h.importer.Import(r.Context(), name, data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("uploaded catalog via admin", "name", name, "questions", res.Questions, "exams", res.Exams, "skipped", res.Skipped)
	writeJSON(w, http.StatusOK, res)
}

type userView struct {
	ID          string         `json:"id"`
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Role        model.UserRole `json:"role"`
	ClassID     string         `json:"class_id,omitempty"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
}

func viewOf(u model.User) userView {
	return userView{
		ID: u.ID, Username: u.Username, DisplayName: u.DisplayName,
		Role: u.Role, ClassID: u.ClassID, Active: u.Active, CreatedAt: u.CreatedAt,
	}
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

type createUserRequest struct {
	Username    string `json:"username" validate:"required,max=64"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Role        string `json:"role" validate:"required,oneof=student teacher admin"`
	ClassID     string `json:"class_id" validate:"max=64"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}
	u := model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         model.UserRole(req.Role),
		ClassID:      strings.TrimSpace(req.ClassID),
		Active:       true,
	}
	id, err := h.store.CreateUser(r.Context(), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.store.GetUserByID(r.Context(), id)
	if err == nil && created == nil {
		err = errUserNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*created))
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) handleSetUserActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "userID")
	if err := h.store.SetUserActive(r.Context(), id, *req.Active); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			err = errUserNotFound
		}
		writeError(w, r, err)
		return
	}
	slog.Info("user active flag changed", "user_id", id, "active", *req.Active)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": *req.Active})
}
