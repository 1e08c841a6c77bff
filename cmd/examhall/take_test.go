package main

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/session"
)

func TestChoiceText(t *testing.T) {
	mc := model.AttemptQuestion{ID: "q1", Type: model.TypeMultipleChoice, Options: []string{"London", "Paris", "Rome"}}
	tf := model.AttemptQuestion{ID: "q2", Type: model.TypeTrueFalse, Options: []string{"True", "False"}}
	fb := model.AttemptQuestion{ID: "q3", Type: model.TypeFillBlank}

	tests := []struct {
		q    model.AttemptQuestion
		line string
		want string
	}{
		{mc, "b", "Paris"},
		{mc, "B", "Paris"},
		{mc, "D", "D"},
		{mc, "Rome", "Rome"},
		{tf, "a", "True"},
		{tf, "False", "False"},
		{fb, "a", "a"},
	}
	for _, tt := range tests {
		if got := choiceText(tt.q, tt.line); got != tt.want {
			t.Errorf("choiceText(%s, %q) = %q, want %q", tt.q.ID, tt.line, got, tt.want)
		}
	}
}

func TestConfirm(t *testing.T) {
	var out strings.Builder
	term := &terminal{
		ctx: context.Background(),
		in:  bufio.NewScanner(strings.NewReader("y\nno\n")),
		out: &out,
	}
	if !term.confirm(session.ConfirmSubmit) {
		t.Error("y not accepted")
	}
	if term.confirm(session.ConfirmSubmit) {
		t.Error("no accepted")
	}
	if term.confirm(session.ConfirmSubmit) {
		t.Error("EOF accepted")
	}
}
