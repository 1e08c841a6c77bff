package answer

import (
	"errors"
	"testing"

	"github.com/pavelanni/examhall/internal/model"
)

func mcq(answer string) model.Question {
	return model.Question{
		ID: "q1", Text: "Capital of the UK?",
		OptionA: "Paris", OptionB: "London", OptionC: "Berlin", OptionD: "Madrid",
		Answer: answer, Mark: 1,
	}
}

func TestInferAllOccupancyPatterns(t *testing.T) {
	texts := [4]string{"one", "two", "three", "four"}
	for mask := 0; mask < 16; mask++ {
		var slots [4]string
		n := 0
		for i := 0; i < 4; i++ {
			if mask&(1<<i) != 0 {
				slots[i] = texts[i]
				n++
			}
		}
		q := model.Question{OptionA: slots[0], OptionB: slots[1], OptionC: slots[2], OptionD: slots[3]}
		want := model.TypeFillBlank
		if n == 4 {
			want = model.TypeMultipleChoice
		}
		first, second := Infer(q), Infer(q)
		if first != second {
			t.Errorf("mask %04b: inference not deterministic: %q then %q", mask, first, second)
		}
		if first != want {
			t.Errorf("mask %04b: Infer() = %q, want %q", mask, first, want)
		}
	}
}

func TestInferTrueFalse(t *testing.T) {
	tests := []struct {
		name  string
		slots [4]string
		want  model.QuestionType
	}{
		{"A/B true false", [4]string{"True", "False", "", ""}, model.TypeTrueFalse},
		{"lower case", [4]string{"false", "true", "", ""}, model.TypeTrueFalse},
		{"non adjacent slots", [4]string{"TRUE", "", "", "False"}, model.TypeTrueFalse},
		{"padded", [4]string{" True ", " False", "", ""}, model.TypeTrueFalse},
		{"both true", [4]string{"True", "True", "", ""}, model.TypeFillBlank},
		{"yes no", [4]string{"Yes", "No", "", ""}, model.TypeFillBlank},
		{"three with true false", [4]string{"True", "False", "Maybe", ""}, model.TypeFillBlank},
		{"whitespace only counts empty", [4]string{"True", "False", "  ", ""}, model.TypeTrueFalse},
		{"four incl true false", [4]string{"True", "False", "x", "y"}, model.TypeMultipleChoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := model.Question{OptionA: tt.slots[0], OptionB: tt.slots[1], OptionC: tt.slots[2], OptionD: tt.slots[3]}
			if got := Infer(q); got != tt.want {
				t.Errorf("Infer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveIndex(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   int
		ok     bool
	}{
		{"letter", "B", 1, true},
		{"lower letter is text", "d", 0, false},
		{"padded letter", " C ", 2, true},
		{"exact text", "Berlin", 2, true},
		{"padded text", "  Madrid ", 3, true},
		{"text is case sensitive", "berlin", 0, false},
		{"no match defaults to zero", "Rome", 0, false},
		{"empty", "", 0, false},
		{"letter out of range", "E", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveIndex(mcq(tt.answer))
			if got != tt.want || ok != tt.ok {
				t.Errorf("ResolveIndex(%q) = (%d, %v), want (%d, %v)", tt.answer, got, ok, tt.want, tt.ok)
			}
		})
	}

	// A lowercase key that is also an option's text resolves to that option.
	q := model.Question{OptionA: "x", OptionB: "y", OptionC: "a", OptionD: "b", Answer: "a"}
	if got, ok := ResolveIndex(q); got != 2 || !ok {
		t.Errorf("ResolveIndex(options x,y,a,b; key a) = (%d, %v), want (2, true)", got, ok)
	}
	k := Resolve(q)
	if !Matches(k, "a") || Matches(k, "x") {
		t.Errorf("key a: Matches(a)=%v Matches(x)=%v, want true false", Matches(k, "a"), Matches(k, "x"))
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"T", true, false},
		{" True ", true, false},
		{"false", false, false},
		{"F", false, false},
		{"yes", false, true},
		{"", false, true},
		{"A", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBool(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnrecognizedBool) {
					t.Fatalf("ParseBool(%q) err = %v, want ErrUnrecognizedBool", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBool(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolveTrueFalse(t *testing.T) {
	q := model.Question{OptionA: "True", OptionB: "False", Answer: "f"}
	k := Resolve(q)
	if k.Type != model.TypeTrueFalse {
		t.Fatalf("type = %q", k.Type)
	}
	if k.Index != 1 || k.Text != "False" || !k.Resolved {
		t.Errorf("got index %d text %q resolved %v", k.Index, k.Text, k.Resolved)
	}
	if k.Bool == nil || *k.Bool {
		t.Errorf("expected Bool=false, got %v", k.Bool)
	}

	// A letter is not a valid boolean but still resolves at grading time.
	k = Resolve(model.Question{OptionA: "True", OptionB: "False", Answer: "A"})
	if k.Text != "True" || k.Bool == nil || !*k.Bool {
		t.Errorf("letter fallback: got text %q bool %v", k.Text, k.Bool)
	}
}

func TestResolveUnresolvedFlag(t *testing.T) {
	k := Resolve(mcq("Rome"))
	if k.Resolved {
		t.Error("expected unresolved key")
	}
	if k.Index != 0 || k.Text != "Paris" {
		t.Errorf("expected fallback to option A, got %d %q", k.Index, k.Text)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name      string
		q         model.Question
		submitted string
		want      bool
	}{
		{"mcq correct", mcq("B"), "London", true},
		{"mcq case varied", mcq("B"), "london", true},
		{"mcq padded", mcq("B"), "  LONDON ", true},
		{"mcq wrong", mcq("B"), "Paris", false},
		{"mcq letter is not text", mcq("B"), "B", false},
		{"mcq empty", mcq("B"), "", false},
		{"tf correct", model.Question{OptionA: "True", OptionB: "False", Answer: "true"}, "True", true},
		{"tf wrong", model.Question{OptionA: "True", OptionB: "False", Answer: "true"}, "False", false},
		{"fill correct", model.Question{Answer: "Photosynthesis"}, "photosynthesis ", true},
		{"fill wrong", model.Question{Answer: "Photosynthesis"}, "respiration", false},
		{"fill blank key never matches", model.Question{Answer: "  "}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(Resolve(tt.q), tt.submitted); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.submitted, got, tt.want)
			}
		})
	}
}

func TestChoiceIndex(t *testing.T) {
	k := Resolve(mcq("B"))
	if got := ChoiceIndex(k, "berlin"); got != 2 {
		t.Errorf("ChoiceIndex(berlin) = %d, want 2", got)
	}
	if got := ChoiceIndex(k, "Rome"); got != -1 {
		t.Errorf("ChoiceIndex(Rome) = %d, want -1", got)
	}
	if got := ChoiceIndex(k, ""); got != -1 {
		t.Errorf("ChoiceIndex(empty) = %d, want -1", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       model.Question
		wantErr error
	}{
		{"valid mcq", mcq("B"), nil},
		{"unresolvable mcq is tolerated", mcq("Rome"), nil},
		{"valid tf", model.Question{Text: "Sky is blue", OptionA: "True", OptionB: "False", Answer: "T"}, nil},
		{"tf bad literal", model.Question{Text: "Sky is blue", OptionA: "True", OptionB: "False", Answer: "yes"}, ErrUnrecognizedBool},
		{"empty prompt", model.Question{Text: " ", Answer: "x"}, ErrEmptyPrompt},
		{"negative mark", model.Question{Text: "x", Answer: "x", Mark: -1}, ErrNegativeMark},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.q)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeMark(t *testing.T) {
	if NormalizeMark(0) != 1 {
		t.Error("zero mark should default to 1")
	}
	if NormalizeMark(2.5) != 2.5 {
		t.Error("non-zero mark should be kept")
	}
}

func TestAttemptViewHidesAnswer(t *testing.T) {
	aq := AttemptView(mcq("B"))
	if aq.Type != model.TypeMultipleChoice || len(aq.Options) != 4 {
		t.Fatalf("unexpected view: %+v", aq)
	}
	fill := AttemptView(model.Question{ID: "f", Text: "2+2?", Answer: "4"})
	if fill.Options != nil {
		t.Errorf("fill-in view should have no options, got %v", fill.Options)
	}
}

func TestLetter(t *testing.T) {
	for i, want := range []string{"A", "B", "C", "D"} {
		if got := Letter(i); got != want {
			t.Errorf("Letter(%d) = %q, want %q", i, got, want)
		}
		if idx, ok := LetterIndex(want); !ok || idx != i {
			t.Errorf("LetterIndex(%q) = %d, %v", want, idx, ok)
		}
	}
	if _, ok := LetterIndex("b"); ok {
		t.Error(`LetterIndex("b") should not be a letter code`)
	}
	if Letter(4) != "" {
		t.Error("Letter(4) should be empty")
	}
}
