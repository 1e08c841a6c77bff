package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Authentication required."})
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid username or password."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "tok"})
	})
	mux.HandleFunc("GET /api/exams/{id}/attempt", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "e1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Exam not found."})
			return
		}
		writeJSON(w, http.StatusOK, model.AttemptPayload{
			ExamID: "e1", Title: "T",
			EndAt:     time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
			ServerNow: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
			Questions: []model.AttemptQuestion{{ID: "q1", Type: model.TypeTrueFalse, Options: []string{"True", "False"}}},
		})
	}))
	mux.HandleFunc("POST /api/exams/{id}/submit", authed(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Answers []model.AnswerInput `json:"answers"`
			Auto    bool                `json:"auto"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || len(in.Answers) == 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "No answers were provided."})
			return
		}
		for _, a := range in.Answers {
			if a.QuestionID != "q1" {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"message":            "Question " + a.QuestionID + " is not part of this exam.",
					"valid_question_ids": []string{"q1"},
				})
				return
			}
		}
		if r.Header.Get("Accept-Language") != "ru" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "expected ru"})
			return
		}
		writeJSON(w, http.StatusOK, model.SubmitResult{ExamID: r.PathValue("id"), TotalMarks: 1, EarnedMarks: 1, Score: 100, Submitted: in.Auto})
	}))
	mux.HandleFunc("GET /api/exams", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available":[{"exam":{"id":"e1","title":"T"},"status":"available","score":0}],"upcoming":[],"completed":[]}`))
	}))
	mux.HandleFunc("GET /api/exams/{id}/review", authed(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginAndLoad(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL+"/", "")
	ctx := context.Background()

	if _, err := c.LoadAttempt(ctx, "e1"); err == nil {
		t.Fatal("expected 401 before login")
	}
	if _, err := c.Login(ctx, "ann", "bad"); err == nil {
		t.Fatal("expected login failure")
	} else {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid username or password." {
			t.Errorf("login error = %#v", err)
		}
	}

	tok, err := c.Login(ctx, "ann", "pw")
	if err != nil || tok != "tok" || c.Token() != "tok" {
		t.Fatalf("Login = %q, %v", tok, err)
	}

	p, err := c.LoadAttempt(ctx, "e1")
	if err != nil {
		t.Fatalf("LoadAttempt: %v", err)
	}
	if p.EndAt.Sub(p.ServerNow) != time.Hour || len(p.Questions) != 1 || p.Questions[0].Type != model.TypeTrueFalse {
		t.Errorf("payload = %+v", p)
	}

	_, err = c.LoadAttempt(ctx, "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("missing exam error = %v", err)
	}
}

func TestSubmit(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, "tok", WithLang("ru"))
	res, err := c.Submit(context.Background(), model.SubmitRequest{
		ExamID:  "e1",
		Auto:    true,
		Answers: []model.AnswerInput{{QuestionID: "q1", Answer: "True"}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.ExamID != "e1" || res.Score != 100 || !res.Submitted {
		t.Errorf("result = %+v", res)
	}

	_, err = c.Submit(context.Background(), model.SubmitRequest{ExamID: "e1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("empty submit error = %v", err)
	}
	if apiErr != nil && apiErr.Valid != nil {
		t.Errorf("empty submit Valid = %v, want nil", apiErr.Valid)
	}

	_, err = c.Submit(context.Background(), model.SubmitRequest{
		ExamID:  "e1",
		Answers: []model.AnswerInput{{QuestionID: "q9", Answer: "x"}},
	})
	apiErr = nil
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown question error = %v", err)
	}
	if len(apiErr.Valid) != 1 || apiErr.Valid[0] != "q1" {
		t.Errorf("Valid = %v, want [q1]", apiErr.Valid)
	}
}

func TestExamsAndReviewError(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, "tok")
	l, err := c.Exams(context.Background())
	if err != nil {
		t.Fatalf("Exams: %v", err)
	}
	if len(l.Available) != 1 || l.Available[0].Exam.ID != "e1" {
		t.Errorf("lists = %+v", l)
	}

	_, err = c.Review(context.Background(), "e1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Internal Server Error" {
		t.Errorf("review error = %v", err)
	}
}
