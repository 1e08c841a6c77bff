// Package client talks to an examhall server over its JSON API. It provides
// the loader, submitter and reviewer a session.Machine needs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/review"
)

// APIError is a non-2xx response. Message is the server's localized text.
// Valid lists the exam's question ids when a submission named an unknown one.
type APIError struct {
	StatusCode int
	Message    string
	Valid      []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

type Client struct {
	base  string
	token string
	lang  string
	http  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithLang asks the server for messages in lang.
func WithLang(lang string) Option { return func(c *Client) { c.lang = lang } }

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.lang != "" {
		req.Header.Set("Accept-Language", c.lang)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg struct {
			Message string   `json:"message"`
			Valid   []string `json:"valid_question_ids"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msg); err == nil && msg.Message != "" {
			apiErr.Message = msg.Message
			apiErr.Valid = msg.Valid
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/auth/login",
		map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// Exams returns the caller's partitioned exam lists.
func (c *Client) Exams(ctx context.Context) (eligibility.Lists, error) {
	var l eligibility.Lists
	err := c.do(ctx, http.MethodGet, "/api/exams", nil, &l)
	return l, err
}

// LoadAttempt fetches the questions and deadline of an exam.
func (c *Client) LoadAttempt(ctx context.Context, examID string) (*model.AttemptPayload, error) {
	var p model.AttemptPayload
	if err := c.do(ctx, http.MethodGet, "/api/exams/"+url.PathEscape(examID)+"/attempt", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Submit sends the answers. The identity travels in the bearer token.
func (c *Client) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	var res model.SubmitResult
	body := struct {
		Answers []model.AnswerInput `json:"answers"`
		Auto    bool                `json:"auto"`
	}{req.Answers, req.Auto}
	if err := c.do(ctx, http.MethodPost, "/api/exams/"+url.PathEscape(req.ExamID)+"/submit", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Review fetches the caller's reconstructed attempt.
func (c *Client) Review(ctx context.Context, examID string) (*review.Review, error) {
	var rv review.Review
	if err := c.do(ctx, http.MethodGet, "/api/exams/"+url.PathEscape(examID)+"/review", nil, &rv); err != nil {
		return nil, err
	}
	return &rv, nil
}
