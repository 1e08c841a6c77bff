package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examhall/internal/answer"
	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/client"
	"github.com/pavelanni/examhall/internal/eligibility"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/review"
	"github.com/pavelanni/examhall/internal/session"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take an exam in the terminal against a running server",
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.String("server", "http://localhost:8080", "Server base URL")
	f.String("token", "", "Identity token (or set EXAMHALL_TOKEN)")
	f.String("username", "", "Log in with this username when no token is given")
	f.String("password", "", "Password for --username")
	f.String("exam-id", "", "Exam to take; without it the exam lists are printed")
	f.Bool("review", false, "Show the review of a completed exam instead of taking it")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	addLogFlags(cmd)
	return cmd
}

// terminal is the line-oriented front end of a session.Machine.
type terminal struct {
	ctx context.Context
	in  *bufio.Scanner
	out io.Writer
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) readLine() (string, bool) {
	if !t.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(t.in.Text()), true
}

func (t *terminal) confirm(kind session.ConfirmKind) bool {
	t.printf("%s [y/N] ", appI18n.T(t.ctx, string(kind)))
	line, ok := t.readLine()
	if !ok {
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes", "д", "да":
		return true
	}
	return false
}

func (t *terminal) notify(n session.Notice) {
	var msg string
	switch {
	case n.Count > 0:
		msg = appI18n.Tp(t.ctx, n.ID, n.Count)
	case n.Data != nil:
		msg = appI18n.Td(t.ctx, n.ID, n.Data)
	default:
		msg = appI18n.T(t.ctx, n.ID)
	}
	t.printf("\n*** %s\n", msg)
}

func runTake(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	t := &terminal{
		ctx: appI18n.WithLang(ctx, lang),
		in:  bufio.NewScanner(os.Stdin),
		out: cmd.OutOrStdout(),
	}

	c := client.New(v.GetString("server"), v.GetString("token"), client.WithLang(lang))
	if c.Token() == "" {
		if v.GetString("username") == "" {
			return errors.New("either --token or --username is required")
		}
		if _, err := c.Login(ctx, v.GetString("username"), v.GetString("password")); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	m := session.New(session.Options{
		Loader:    c,
		Submitter: c,
		Reviewer:  c,
		Identity:  func() (model.Identity, error) { return auth.PeekIdentity(c.Token()) },
		Confirm:   t.confirm,
		Notify:    t.notify,
	})

	lists, err := c.Exams(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	m.SetCatalog(lists)

	examID := v.GetString("exam-id")
	if examID == "" {
		t.printLists(lists)
		return nil
	}
	if v.GetBool("review") {
		rv, err := m.OpenReview(ctx, examID)
		if err != nil {
			return err
		}
		t.printReview(rv)
		return m.CloseReview()
	}
	return t.take(m, examID)
}

func (t *terminal) printLists(l eligibility.Lists) {
	section := func(titleID string, entries []eligibility.Entry) {
		t.printf("%s:\n", appI18n.T(t.ctx, titleID))
		for _, e := range entries {
			line := fmt.Sprintf("  %-12s %s", e.Exam.ID, e.Exam.Title)
			switch {
			case e.Missed:
				line += " (" + appI18n.T(t.ctx, "Missed") + ")"
			case e.Status == eligibility.StatusCompleted:
				line += fmt.Sprintf(" %.1f%%", e.Score)
			case e.Status == eligibility.StatusNotStarted:
				line += " " + e.Exam.StartAt.Local().Format(time.DateTime)
			default:
				line += " " + e.Exam.EndAt.Local().Format(time.DateTime)
			}
			t.printf("%s\n", line)
		}
	}
	section("Available", l.Available)
	section("Upcoming", l.Upcoming)
	section("Completed", l.Completed)
}

// take runs one attempt. Lines are read until every question has been
// visited; ":submit" submits early and ":leave" abandons the attempt.
func (t *terminal) take(m *session.Machine, examID string) error {
	if err := m.Start(t.ctx, examID); err != nil {
		return err
	}
	snap := m.Snapshot()
	t.printf("%s\n", snap.Title)

	for i, q := range snap.Questions {
		if m.Snapshot().State != session.StateActive {
			break
		}
		t.printQuestion(m, i, len(snap.Questions), q)
		line, ok := t.readLine()
		if !ok || t.ctx.Err() != nil {
			return t.leave(m)
		}
		switch line {
		case ":leave":
			return t.leave(m)
		case ":submit":
			return t.submit(m)
		case "":
			continue
		}
		if err := m.Answer(q.ID, choiceText(q, line)); err != nil {
			// The countdown ran out while the answer was typed.
			break
		}
	}
	return t.submit(m)
}

func (t *terminal) printQuestion(m *session.Machine, i, total int, q model.AttemptQuestion) {
	remaining := time.Duration(session.Seconds(m.Snapshot().Remaining)) * time.Second
	t.printf("\n%s  |  %s\n%s\n",
		appI18n.Td(t.ctx, "QuestionHeader", map[string]any{"N": i + 1, "Total": total}),
		appI18n.Td(t.ctx, "TimeRemaining", map[string]any{"Time": remaining.String()}),
		q.Text)
	for j, o := range q.Options {
		t.printf("  %s) %s\n", answer.Letter(j), o)
	}
	t.printf("> ")
}

// choiceText turns a letter typed for a choice question, in either case,
// into the option text the server compares against.
func choiceText(q model.AttemptQuestion, line string) string {
	if q.Type == model.TypeFillBlank {
		return line
	}
	if i, ok := answer.LetterIndex(strings.ToUpper(line)); ok && i < len(q.Options) {
		return q.Options[i]
	}
	return line
}

func (t *terminal) submit(m *session.Machine) error {
	for {
		snap := m.Snapshot()
		switch snap.State {
		case session.StateSubmitted:
			t.printResult(snap.Result)
			return nil
		case session.StateSubmitting, session.StateAutoSubmitting:
			time.Sleep(100 * time.Millisecond)
			continue
		case session.StateIdle:
			return nil
		}

		_, err := m.Submit(t.ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, session.ErrSubmitInFlight):
			continue
		case errors.Is(err, session.ErrSubmitCancelled):
			t.printf("%s\n", appI18n.Tp(t.ctx, "QuestionsAnswered", len(m.Snapshot().Answers)))
			t.printf(":submit / :leave > ")
			line, ok := t.readLine()
			if !ok || line == ":leave" {
				return t.leave(m)
			}
		default:
			// The attempt is kept; ask before retrying.
			t.printf("retry? [y/N] ")
			line, ok := t.readLine()
			if !ok || !strings.EqualFold(line, "y") {
				return err
			}
		}
	}
}

func (t *terminal) leave(m *session.Machine) error {
	if err := m.Leave(); errors.Is(err, session.ErrLeaveConfirmation) {
		return m.ConfirmLeave()
	}
	return nil
}

func (t *terminal) printResult(res *model.SubmitResult) {
	if res == nil {
		return
	}
	t.printf("%s\n", appI18n.Td(t.ctx, "ScoreLine", map[string]any{
		"Earned": res.EarnedMarks, "Total": res.TotalMarks, "Score": res.Score,
	}))
}

func (t *terminal) printReview(rv *review.Review) {
	t.printf("%s\n", appI18n.Td(t.ctx, "ReviewTitle", map[string]any{"Title": rv.Title}))
	for i, it := range rv.Items {
		mark := appI18n.T(t.ctx, "Incorrect")
		if it.Correct {
			mark = appI18n.T(t.ctx, "Correct")
		}
		given := it.Answer
		if given == "" {
			given = appI18n.T(t.ctx, "NoAnswer")
		}
		t.printf("\n%s  [%s]\n%s\n  %s: %s\n  %s: %s\n",
			appI18n.Td(t.ctx, "QuestionHeader", map[string]any{"N": i + 1, "Total": len(rv.Items)}),
			mark, it.Text,
			appI18n.T(t.ctx, "YourAnswer"), given,
			appI18n.T(t.ctx, "CorrectAnswer"), it.CorrectText)
	}
	t.printf("\n%s\n", appI18n.Td(t.ctx, "ScoreLine", map[string]any{
		"Earned": rv.EarnedMarks, "Total": rv.TotalMarks, "Score": rv.Score,
	}))
}
