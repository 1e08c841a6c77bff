// Package session runs a single timed exam attempt on the client: it loads
// and shuffles the questions, counts down against the server deadline,
// collects answers and submits them once, by hand or at expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/review"
)

// State is a machine state.
type State string

const (
	StateIdle           State = "idle"
	StateLoading        State = "loading"
	StateActive         State = "active"
	StateSubmitting     State = "submitting"
	StateExpired        State = "expired"
	StateAutoSubmitting State = "auto_submitting"
	StateSubmitted      State = "submitted"
	StateReviewing      State = "reviewing"
)

// live reports whether the state holds an attempt that must not be lost.
func (s State) live() bool {
	switch s {
	case StateLoading, StateActive, StateSubmitting, StateExpired, StateAutoSubmitting:
		return true
	}
	return false
}

var (
	ErrAttemptActive     = errors.New("another exam attempt is in progress")
	ErrNotActive         = errors.New("no active exam attempt")
	ErrUnknownQuestion   = errors.New("question is not part of this attempt")
	ErrSubmitInFlight    = errors.New("submission already in progress")
	ErrLeaveConfirmation = errors.New("leaving discards the attempt and needs confirmation")
	ErrSubmitCancelled   = errors.New("submission cancelled")
	ErrIdentityMissing   = errors.New("identity could not be resolved")
	ErrNotReviewing      = errors.New("not reviewing")
	ErrReviewOpen        = errors.New("close the review before starting an exam")
)

// Loader fetches the attempt payload for an exam the caller may start.
type Loader interface {
	LoadAttempt(ctx context.Context, examID string) (*model.AttemptPayload, error)
}

// Submitter sends a finalized answer set to the grading service.
type Submitter interface {
	Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error)
}

// Reviewer fetches a reconstructed past attempt.
type Reviewer interface {
	Review(ctx context.Context, examID string) (*review.Review, error)
}

// ConfirmKind tells the Confirm callback what is being confirmed.
type ConfirmKind string

const ConfirmSubmit ConfirmKind = "ConfirmSubmit"

// Notice is a user-facing message. ID is an i18n message id.
type Notice struct {
	ID   string
	Data map[string]any
	// Count is set for pluralized notices.
	Count int
}

const (
	NoticeSubmitted       = "NoticeSubmitted"
	NoticeAutoSubmitted   = "NoticeAutoSubmitted"
	NoticeTimeUp          = "NoticeTimeUp"
	NoticeTabHidden       = "NoticeTabHidden"
	NoticeLeaveWarning    = "NoticeLeaveWarning"
	NoticeAttemptActive   = "NoticeAttemptActive"
	NoticeSubmitFailed    = "NoticeSubmitFailed"
	NoticeIdentityMissing = "NoticeIdentityMissing"
)

// Options wires a Machine. Loader, Submitter and Identity are required.
type Options struct {
	Loader    Loader
	Submitter Submitter
	Reviewer  Reviewer
	// Identity resolves the caller from the local credential at submit time.
	Identity func() (model.Identity, error)
	// Confirm asks the user before a manual submit; nil means yes.
	Confirm func(ConfirmKind) bool
	Notify  func(Notice)
	Clock   Clock
	// Rand drives the shuffle; nil uses the global source.
	Rand *rand.Rand
	// SubmitTimeout bounds the auto-submit request.
	SubmitTimeout time.Duration
}

// Machine owns at most one attempt at a time. It is safe for concurrent use
// by an input loop and its own countdown goroutine.
type Machine struct {
	opts Options

	mu          sync.Mutex
	state       State
	examID      string
	title       string
	deadline    time.Time
	remaining   time.Duration
	questions   []model.AttemptQuestion
	answers     map[string]string
	tabSwitches int
	ticker      Ticker
	stopTick    chan struct{}
	result      *model.SubmitResult
	lastErr     error
	review      *review.Review
	catalog     eligibility.Lists
	pending     []Notice
}

func New(opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 30 * time.Second
	}
	return &Machine{opts: opts, state: StateIdle}
}

// unlock releases the mutex and then delivers queued notices, so callbacks
// may call back into the machine.
func (m *Machine) unlock() {
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	if m.opts.Notify == nil {
		return
	}
	for _, n := range pending {
		m.opts.Notify(n)
	}
}

func (m *Machine) notice(n Notice) {
	m.pending = append(m.pending, n)
}

// Start loads an exam and enters Active. Only one attempt may be live, and
// an open review must be closed first.
func (m *Machine) Start(ctx context.Context, examID string) error {
	m.mu.Lock()
	if m.state == StateReviewing {
		m.unlock()
		return ErrReviewOpen
	}
	if m.state.live() {
		m.notice(Notice{ID: NoticeAttemptActive})
		m.unlock()
		return ErrAttemptActive
	}
	m.resetLocked()
	m.state = StateLoading
	m.examID = examID
	m.unlock()

	payload, err := m.opts.Loader.LoadAttempt(ctx, examID)

	m.mu.Lock()
	defer m.unlock()
	if err != nil {
		m.state = StateIdle
		m.examID = ""
		m.lastErr = err
		return fmt.Errorf("load exam %s: %w", examID, err)
	}

	qs := make([]model.AttemptQuestion, len(payload.Questions))
	copy(qs, payload.Questions)
	swap := func(i, j int) { qs[i], qs[j] = qs[j], qs[i] }
	if m.opts.Rand != nil {
		m.opts.Rand.Shuffle(len(qs), swap)
	} else {
		rand.Shuffle(len(qs), swap)
	}

	now := m.opts.Clock.Now()
	m.deadline = payload.EndAt
	if !payload.ServerNow.IsZero() {
		// Trust the server's view of how much time is left, not the local clock.
		m.deadline = now.Add(payload.EndAt.Sub(payload.ServerNow))
	}
	m.title = payload.Title
	m.questions = qs
	m.answers = make(map[string]string, len(qs))
	m.remaining = Remaining(now, m.deadline)
	m.state = StateActive

	m.ticker = m.opts.Clock.NewTicker(time.Second)
	m.stopTick = make(chan struct{})
	go m.run(m.ticker, m.stopTick)
	return nil
}

func (m *Machine) run(t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			m.tick()
		}
	}
}

// tick recomputes the countdown from the clock and auto-submits at zero.
func (m *Machine) tick() {
	m.mu.Lock()
	if m.state != StateActive {
		m.unlock()
		return
	}
	m.remaining = Remaining(m.opts.Clock.Now(), m.deadline)
	if m.remaining > 0 {
		m.unlock()
		return
	}
	m.state = StateExpired
	m.stopTimerLocked()
	m.notice(Notice{ID: NoticeTimeUp})
	m.unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.SubmitTimeout)
	defer cancel()
	m.mu.Lock()
	if m.state != StateExpired {
		m.unlock()
		return
	}
	_, _ = m.submitLocked(ctx, true)
}

func (m *Machine) stopTimerLocked() {
	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.stopTick)
	m.ticker, m.stopTick = nil, nil
}

// Answer records the answer text for a question of the active attempt.
func (m *Machine) Answer(questionID, text string) error {
	m.mu.Lock()
	defer m.unlock()
	if m.state != StateActive {
		return ErrNotActive
	}
	for _, q := range m.questions {
		if q.ID == questionID {
			m.answers[questionID] = text
			return nil
		}
	}
	return ErrUnknownQuestion
}

// Submit sends the attempt. From Active it asks for confirmation first; from
// Expired it retries the automatic submission without asking.
func (m *Machine) Submit(ctx context.Context) (*model.SubmitResult, error) {
	m.mu.Lock()
	switch m.state {
	case StateSubmitting, StateAutoSubmitting:
		m.unlock()
		return nil, ErrSubmitInFlight
	case StateExpired:
		return m.submitLocked(ctx, true)
	case StateActive:
	default:
		m.unlock()
		return nil, ErrNotActive
	}
	m.unlock()

	if m.opts.Confirm != nil && !m.opts.Confirm(ConfirmSubmit) {
		return nil, ErrSubmitCancelled
	}

	m.mu.Lock()
	switch m.state {
	case StateActive:
		return m.submitLocked(ctx, false)
	case StateSubmitting, StateAutoSubmitting:
		m.unlock()
		return nil, ErrSubmitInFlight
	case StateExpired:
		// Time ran out while the user was confirming.
		return m.submitLocked(ctx, true)
	}
	m.unlock()
	return nil, ErrNotActive
}

// submitLocked is entered with the mutex held and releases it. The network
// call runs unlocked; the Submitting states keep a second submit out.
func (m *Machine) submitLocked(ctx context.Context, auto bool) (*model.SubmitResult, error) {
	prev := m.state
	var id model.Identity
	var err error
	if m.opts.Identity == nil {
		err = ErrIdentityMissing
	} else {
		id, err = m.opts.Identity()
	}
	if err != nil {
		m.lastErr = fmt.Errorf("%w: %v", ErrIdentityMissing, err)
		m.notice(Notice{ID: NoticeIdentityMissing})
		err = m.lastErr
		m.unlock()
		return nil, err
	}

	req := model.SubmitRequest{
		ExamID:   m.examID,
		Identity: id,
		Auto:     auto,
		Answers:  make([]model.AnswerInput, 0, len(m.questions)),
	}
	for _, q := range m.questions {
		req.Answers = append(req.Answers, model.AnswerInput{QuestionID: q.ID, Answer: m.answers[q.ID]})
	}
	if auto {
		m.state = StateAutoSubmitting
	} else {
		m.state = StateSubmitting
	}
	m.unlock()

	res, err := m.opts.Submitter.Submit(ctx, req)

	m.mu.Lock()
	defer m.unlock()
	if err != nil {
		m.state = prev
		m.lastErr = err
		m.notice(Notice{ID: NoticeSubmitFailed, Data: map[string]any{"Error": err.Error()}})
		return nil, err
	}

	m.stopTimerLocked()
	m.state = StateSubmitted
	m.result = res
	m.lastErr = nil
	m.markCompletedLocked(m.examID, res.Score)
	m.discardLocked()
	id2 := NoticeSubmitted
	if auto {
		id2 = NoticeAutoSubmitted
	}
	m.notice(Notice{ID: id2, Data: map[string]any{"Score": res.Score}})
	return res, nil
}

// markCompletedLocked moves the exam from the local available list to the
// completed list without refetching the catalog.
func (m *Machine) markCompletedLocked(examID string, score float64) {
	for i, e := range m.catalog.Available {
		if e.Exam.ID != examID {
			continue
		}
		m.catalog.Available = append(m.catalog.Available[:i:i], m.catalog.Available[i+1:]...)
		e.Status, e.Score = eligibility.StatusCompleted, score
		m.catalog.Completed = append([]eligibility.Entry{e}, m.catalog.Completed...)
		return
	}
}

func (m *Machine) discardLocked() {
	m.questions = nil
	m.answers = nil
	m.remaining = 0
	m.deadline = time.Time{}
}

func (m *Machine) resetLocked() {
	m.discardLocked()
	m.examID, m.title = "", ""
	m.tabSwitches = 0
	m.result = nil
	m.lastErr = nil
	m.review = nil
}

// Leave asks to navigate away. While an attempt is live it raises a warning
// and returns ErrLeaveConfirmation; the caller must then call ConfirmLeave.
func (m *Machine) Leave() error {
	m.mu.Lock()
	defer m.unlock()
	if m.state.live() {
		m.notice(Notice{ID: NoticeLeaveWarning})
		return ErrLeaveConfirmation
	}
	if m.state == StateReviewing || m.state == StateSubmitted {
		m.resetLocked()
		m.state = StateIdle
	}
	return nil
}

// ConfirmLeave discards the live attempt and stops the countdown. It cannot
// interrupt a submission in flight.
func (m *Machine) ConfirmLeave() error {
	m.mu.Lock()
	defer m.unlock()
	switch m.state {
	case StateSubmitting, StateAutoSubmitting:
		return ErrSubmitInFlight
	case StateLoading:
		return ErrAttemptActive
	}
	m.stopTimerLocked()
	m.resetLocked()
	m.state = StateIdle
	return nil
}

// Hidden records that the exam view lost visibility. It only warns.
func (m *Machine) Hidden() {
	m.mu.Lock()
	defer m.unlock()
	if m.state != StateActive && m.state != StateExpired {
		return
	}
	m.tabSwitches++
	m.notice(Notice{ID: NoticeTabHidden, Count: m.tabSwitches})
}

// OpenReview shows a past attempt. It is reachable from Idle or Submitted,
// never while an attempt is live.
func (m *Machine) OpenReview(ctx context.Context, examID string) (*review.Review, error) {
	m.mu.Lock()
	if m.state.live() {
		m.notice(Notice{ID: NoticeAttemptActive})
		m.unlock()
		return nil, ErrAttemptActive
	}
	m.unlock()
	if m.opts.Reviewer == nil {
		return nil, errors.New("review is not available")
	}

	rv, err := m.opts.Reviewer.Review(ctx, examID)

	m.mu.Lock()
	defer m.unlock()
	if err != nil {
		m.lastErr = err
		return nil, err
	}
	if m.state.live() {
		return nil, ErrAttemptActive
	}
	m.resetLocked()
	m.state = StateReviewing
	m.examID, m.title = rv.ExamID, rv.Title
	m.review = rv
	return rv, nil
}

// CloseReview returns from Reviewing to Idle.
func (m *Machine) CloseReview() error {
	m.mu.Lock()
	defer m.unlock()
	if m.state != StateReviewing {
		return ErrNotReviewing
	}
	m.resetLocked()
	m.state = StateIdle
	return nil
}

// SetCatalog replaces the local available/upcoming/completed view.
func (m *Machine) SetCatalog(l eligibility.Lists) {
	m.mu.Lock()
	defer m.unlock()
	m.catalog = l
}

// Snapshot is a consistent copy of the machine's observable state.
type Snapshot struct {
	State       State
	ExamID      string
	Title       string
	Remaining   time.Duration
	Questions   []model.AttemptQuestion
	Answers     map[string]string
	TabSwitches int
	Result      *model.SubmitResult
	Err         error
	Review      *review.Review
	Catalog     eligibility.Lists
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.unlock()
	s := Snapshot{
		State:       m.state,
		ExamID:      m.examID,
		Title:       m.title,
		Remaining:   m.remaining,
		Questions:   append([]model.AttemptQuestion(nil), m.questions...),
		TabSwitches: m.tabSwitches,
		Result:      m.result,
		Err:         m.lastErr,
		Review:      m.review,
		Catalog: eligibility.Lists{
			Available: append([]eligibility.Entry(nil), m.catalog.Available...),
			Upcoming:  append([]eligibility.Entry(nil), m.catalog.Upcoming...),
			Completed: append([]eligibility.Entry(nil), m.catalog.Completed...),
		},
	}
	if m.answers != nil {
		s.Answers = make(map[string]string, len(m.answers))
		for k, v := range m.answers {
			s.Answers[k] = v
		}
	}
	if m.state == StateActive {
		s.Remaining = Remaining(m.opts.Clock.Now(), m.deadline)
	}
	return s
}
