package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examhall/internal/answer"
	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/catalog"
	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/grading"
	"github.com/pavelanni/examhall/internal/handler/views"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/review"
	"github.com/pavelanni/examhall/internal/store"
)

// Config holds the server settings the handlers need.
type Config struct {
	JWTSecret      string
	TokenTTL       time.Duration
	SubmitGrace    time.Duration
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	tokens   *auth.Tokens
	login    *auth.Authenticator
	grader   *grading.Service
	reviews  *review.Service
	importer *catalog.Importer
	validate *validator.Validate
	cfg      Config
	now      func() time.Time
}

// New creates a new Handler.
func New(s *store.Store, cfg Config) (*Handler, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	h := &Handler{
		store:    s,
		tokens:   tokens,
		login:    auth.NewAuthenticator(s, tokens),
		reviews:  review.NewService(s),
		importer: catalog.NewImporter(s),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
		now:      time.Now,
	}
	h.grader = grading.NewService(s, grading.WithGrace(cfg.SubmitGrace), grading.WithClock(func() time.Time { return h.now() }))
	return h, nil
}

// Router builds the full middleware stack around Routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(h.cfg.RequestTimeout))
	if len(h.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Authorization", "Content-Type"},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware)
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/auth/login", h.handleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAuth)

		pr.Get("/api/exams", h.handleListExams)
		pr.With(requireRole(model.UserRoleStudent)).Get("/api/exams/{examID}/attempt", h.handleAttempt)
		pr.With(requireRole(model.UserRoleStudent)).Post("/api/exams/{examID}/submit", h.handleSubmit)
		pr.Get("/api/exams/{examID}/review", h.handleReview)

		pr.With(requireRole(model.UserRoleTeacher, model.UserRoleAdmin)).Post("/api/admin/catalog", h.handleUploadCatalog)
		pr.Route("/api/admin/users", func(ar chi.Router) {
			ar.Use(requireRole(model.UserRoleAdmin))
			ar.Get("/", h.handleListUsers)
			ar.Post("/", h.handleCreateUser)
			ar.Patch("/{userID}", h.handleSetUserActive)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	exams, err := h.store.ListExams(r.Context())
	if err != nil {
		writeError(w, r, fmt.Errorf("list exams: %w", err))
		return
	}
	now := h.now()
	if id.Role.IsStaff() {
		writeJSON(w, http.StatusOK, map[string]any{"exams": eligibility.Authoring(exams, now)})
		return
	}

	records, err := h.records(r, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	scores, err := h.store.UserScores(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, fmt.Errorf("user scores: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, eligibility.Partition(id, exams, records, scores, now))
}

func (h *Handler) records(r *http.Request, userID string) (eligibility.Records, error) {
	scored, err := h.store.UserScoredAnswers(r.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("scored answers: %w", err)
	}
	return eligibility.RecordsFrom(scored), nil
}

func (h *Handler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	examID := chi.URLParam(r, "examID")

	exam, err := h.store.GetExam(r.Context(), examID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		writeError(w, r, fmt.Errorf("get exam: %w", err))
		return
	}
	records, err := h.records(r, id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	now := h.now()
	if err := eligibility.Check(id, exam, records, now); err != nil {
		writeError(w, r, err)
		return
	}

	questions, err := h.store.ExamQuestions(r.Context(), examID)
	if err != nil {
		writeError(w, r, fmt.Errorf("exam questions: %w", err))
		return
	}
	payload := model.AttemptPayload{
		ExamID:    exam.ID,
		Title:     exam.Title,
		EndAt:     exam.EndAt,
		ServerNow: now,
		Questions: make([]model.AttemptQuestion, 0, len(questions)),
	}
	for _, q := range questions {
		aq := answer.AttemptView(q)
		aq.Mark = answer.NormalizeMark(aq.Mark)
		payload.Questions = append(payload.Questions, aq)
	}
	slog.Info("attempt started", "exam_id", exam.ID, "user_id", id.UserID, "questions", len(payload.Questions))
	writeJSON(w, http.StatusOK, payload)
}

type submitBody struct {
	Answers []model.AnswerInput `json:"answers" validate:"dive"`
	Auto    bool                `json:"auto"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitBody
	if !h.decode(w, r, &body) {
		return
	}
	res, err := h.grader.Submit(r.Context(), model.SubmitRequest{
		ExamID:   chi.URLParam(r, "examID"),
		Identity: identity(r),
		Answers:  body.Answers,
		Auto:     body.Auto,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	userID := id.UserID
	if other := r.URL.Query().Get("user_id"); other != "" && other != id.UserID {
		if !id.Role.IsStaff() {
			writeError(w, r, errForbidden)
			return
		}
		userID = other
	}

	rv, err := h.reviews.Review(r.Context(), userID, chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := views.ReviewPage(rv).Render(r.Context(), w); err != nil {
			slog.Error("render error", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

// decode reads a JSON body and validates it. It writes the error response
// itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		slog.Debug("bad request body", "path", r.URL.Path, "error", err)
		writeError(w, r, errBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, r, validationError(err))
		return false
	}
	return true
}
