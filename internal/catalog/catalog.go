// Package catalog loads question banks and exams from JSON files, checks
// them the way an authoring tool would, and writes them to the store.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examhall/internal/answer"
	"github.com/pavelanni/examhall/internal/model"
)

// File is the catalog document.
type File struct {
	Questions []QuestionDoc `json:"questions" validate:"dive"`
	Exams     []ExamDoc     `json:"exams" validate:"dive"`
}

type QuestionDoc struct {
	ID      string  `json:"id" validate:"required,max=64"`
	Text    string  `json:"text"`
	OptionA string  `json:"option_a,omitempty"`
	OptionB string  `json:"option_b,omitempty"`
	OptionC string  `json:"option_c,omitempty"`
	OptionD string  `json:"option_d,omitempty"`
	Answer  string  `json:"answer"`
	Mark    float64 `json:"mark"`
}

type ExamDoc struct {
	ID          string    `json:"id" validate:"required,max=64"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Grade       string    `json:"grade,omitempty"`
	ClassIDs    []string  `json:"class_ids,omitempty"`
	ClassID     string    `json:"class_id,omitempty"`
	QuestionIDs []string  `json:"question_ids" validate:"dive,required"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required"`
}

// ValidationError lists every problem found in a catalog file.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid catalog: " + strings.Join(e.Problems, "; ")
}

// Store is the persistence the importer needs.
type Store interface {
	ImportCatalog(ctx context.Context, questions []model.Question, exams []model.Exam) error
	QuestionIDs(ctx context.Context, ids []string) (map[string]bool, error)
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// Result summarizes one import.
type Result struct {
	Name      string `json:"name"`
	Questions int    `json:"questions"`
	Exams     int    `json:"exams"`
	Skipped   bool   `json:"skipped"`
}

type Importer struct {
	store    Store
	validate *validator.Validate
}

func NewImporter(s Store) *Importer {
	return &Importer{store: s, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Parse decodes a catalog document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &f, nil
}

// ImportFile reads path and imports it under that name.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Name: path}, fmt.Errorf("read %s: %w", path, err)
	}
	return im.Import(ctx, path, data)
}

// Import validates and stores a catalog document. A document whose hash
// matches the last import of the same name is skipped; a changed one is
// imported again as upserts.
func (im *Importer) Import(ctx context.Context, name string, data []byte) (Result, error) {
	res := Result{Name: name}
	hash := sha256sum(data)
	stored, err := im.store.GetImportedFileHash(ctx, name)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == hash {
		slog.Info("catalog file unchanged, skipping", "name", name)
		res.Skipped = true
		return res, nil
	}

	f, err := Parse(data)
	if err != nil {
		return res, err
	}
	questions, exams, err := im.check(ctx, f)
	if err != nil {
		return res, err
	}
	if err := im.store.ImportCatalog(ctx, questions, exams); err != nil {
		return res, fmt.Errorf("import %s: %w", name, err)
	}
	if err := im.store.SetImportedFileHash(ctx, name, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", name, err)
	}
	if stored != "" {
		slog.Info("catalog file changed, re-imported", "name", name)
	}
	res.Questions, res.Exams = len(questions), len(exams)
	return res, nil
}

// check validates the whole document and converts it to model values with
// normalized marks. All problems are reported together.
func (im *Importer) check(ctx context.Context, f *File) ([]model.Question, []model.Exam, error) {
	var problems []string
	if err := im.validate.Struct(f); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return nil, nil, err
		}
		for _, fe := range ve {
			problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
	}

	inFile := make(map[string]bool, len(f.Questions))
	questions := make([]model.Question, 0, len(f.Questions))
	for _, d := range f.Questions {
		if inFile[d.ID] {
			problems = append(problems, fmt.Sprintf("question %s: duplicate id", d.ID))
			continue
		}
		inFile[d.ID] = true
		q := model.Question{
			ID: d.ID, Text: d.Text,
			OptionA: d.OptionA, OptionB: d.OptionB, OptionC: d.OptionC, OptionD: d.OptionD,
			Answer: d.Answer, Mark: d.Mark,
		}
		if err := answer.Validate(q); err != nil {
			problems = append(problems, fmt.Sprintf("question %s: %v", d.ID, err))
			continue
		}
		q.Mark = answer.NormalizeMark(q.Mark)
		questions = append(questions, q)
	}

	var external []string
	seenExam := map[string]bool{}
	for _, d := range f.Exams {
		if seenExam[d.ID] {
			problems = append(problems, fmt.Sprintf("exam %s: duplicate id", d.ID))
		}
		seenExam[d.ID] = true
		if d.StartAt.After(d.EndAt) {
			problems = append(problems, fmt.Sprintf("exam %s: start_at is after end_at", d.ID))
		}
		inExam := make(map[string]bool, len(d.QuestionIDs))
		for _, qid := range d.QuestionIDs {
			if qid != "" && inExam[qid] {
				problems = append(problems, fmt.Sprintf("exam %s: duplicate question %s", d.ID, qid))
				continue
			}
			inExam[qid] = true
			if qid != "" && !inFile[qid] {
				external = append(external, qid)
			}
		}
	}

	if len(external) > 0 {
		known, err := im.store.QuestionIDs(ctx, external)
		if err != nil {
			return nil, nil, fmt.Errorf("look up questions: %w", err)
		}
		for _, d := range f.Exams {
			for _, qid := range d.QuestionIDs {
				if qid != "" && !inFile[qid] && !known[qid] {
					problems = append(problems, fmt.Sprintf("exam %s: unknown question %s", d.ID, qid))
				}
			}
		}
	}

	if len(problems) > 0 {
		return nil, nil, &ValidationError{Problems: problems}
	}

	exams := make([]model.Exam, 0, len(f.Exams))
	for _, d := range f.Exams {
		exams = append(exams, model.Exam{
			ID: d.ID, Title: d.Title, Description: d.Description,
			Subject: d.Subject, Grade: d.Grade,
			ClassIDs: d.ClassIDs, ClassID: d.ClassID,
			QuestionIDs: d.QuestionIDs,
			StartAt:     d.StartAt, EndAt: d.EndAt,
		})
	}
	return questions, exams, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
