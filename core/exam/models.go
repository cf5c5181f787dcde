package exam

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mtihani/core"
)

// Question types
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeEssay          = "essay"
)

type Exam struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Duration    int       `json:"duration"` // minutes
	Category    string    `json:"category"`
	CreatedBy   string    `json:"created_by"`
	IsPublished bool      `json:"is_published"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC

	Questions []Question `json:"questions,omitempty"`
}

type Question struct {
	ID       string `json:"id"`
	ExamID   string `json:"exam_id"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Points   int    `json:"points"`
	Position int    `json:"position"`

	Options []AnswerOption `json:"options,omitempty"`
}

func (q Question) IsChoice() bool {
	return q.Type == TypeSingleChoice || q.Type == TypeMultipleChoice
}

// CorrectOptionIDs returns the ids of all options flagged correct.
func (q Question) CorrectOptionIDs() []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

type AnswerOption struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	Position   int    `json:"position"`
}

// NewExam contains information needed to author a new Exam with its
// question tree; everything is inserted in one shot.
type NewExam struct {
	Title       string        `json:"title" validate:"required"`
	Description string        `json:"description"`
	Duration    int           `json:"duration" validate:"required,min=1"`
	Category    string        `json:"category"`
	Questions   []NewQuestion `json:"questions" validate:"required,min=1,dive"`
}

type NewQuestion struct {
	Text    string      `json:"text" validate:"required"`
	Type    string      `json:"type" validate:"required,oneof=single_choice multiple_choice essay"`
	Points  int         `json:"points" validate:"required,min=1"`
	Options []NewOption `json:"options" validate:"omitempty,dive"`
}

type NewOption struct {
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Description = core.CleanString(ne.Description)
	ne.Category = core.CleanString(ne.Category)
	for i := range ne.Questions {
		ne.Questions[i].Text = core.CleanString(ne.Questions[i].Text)
	}

	if err := validate.Struct(ne); err != nil {
		return err
	}

	// choice questions need a correct option; a single-choice question
	// needs exactly one
	var flds []core.FieldError
	for i, q := range ne.Questions {
		if q.Type == TypeEssay {
			continue
		}
		var correct int
		for _, opt := range q.Options {
			if opt.IsCorrect {
				correct++
			}
		}
		field := fmt.Sprintf("questions[%d].options", i)
		switch {
		case len(q.Options) < 2:
			flds = append(flds, core.FieldError{Field: field, Error: "choice questions need at least 2 options"})
		case correct == 0:
			flds = append(flds, core.FieldError{Field: field, Error: "at least one option must be correct"})
		case q.Type == TypeSingleChoice && correct > 1:
			flds = append(flds, core.FieldError{Field: field, Error: "single choice questions allow exactly one correct option"})
		}
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// UpdateExam defines what may be modified on an existing Exam.
// The question tree is immutable once attempts may exist against it.
type UpdateExam struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    int    `json:"duration" validate:"omitempty,min=1"`
	Category    string `json:"category"`
	IsPublished *bool  `json:"is_published"`
	IsActive    *bool  `json:"is_active"`
}

func (ue *UpdateExam) Validate(validate *validator.Validate, origExam Exam) error {
	if title := core.CleanString(ue.Title); title != "" {
		ue.Title = title
	} else {
		ue.Title = origExam.Title
	}
	if desc := core.CleanString(ue.Description); desc != "" {
		ue.Description = desc
	} else {
		ue.Description = origExam.Description
	}
	if cat := core.CleanString(ue.Category); cat != "" {
		ue.Category = cat
	} else {
		ue.Category = origExam.Category
	}
	if ue.Duration == 0 {
		ue.Duration = origExam.Duration
	}
	return validate.Struct(ue)
}
