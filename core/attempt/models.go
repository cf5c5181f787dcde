package attempt

import "time"

// Attempt statuses. `in-progress --submit--> completed` is the only
// transition; completed is terminal.
const (
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

type Attempt struct {
	ID          string     `json:"id"`
	ExamID      string     `json:"exam_id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	Score       *float64   `json:"score"` // percentage, set on completion
	StartedAt   time.Time  `json:"started_at"`   // UTC
	CompletedAt *time.Time `json:"completed_at"` // UTC, set on completion
}

// Answer is a single graded submission row; written once during
// submission, never mutated after.
type Answer struct {
	ID            string  `json:"id"`
	AttemptID     string  `json:"attempt_id"`
	QuestionID    string  `json:"question_id"`
	Value         string  `json:"value"`
	IsCorrect     *bool   `json:"is_correct"` // nil for essay questions
	PointsAwarded float64 `json:"points_awarded"`
}

// Result is what a submission returns.
type Result struct {
	Score          float64 `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	CorrectAnswers int     `json:"correct_answers"`
}

// CompletedAttempt is a row of a user's results list.
type CompletedAttempt struct {
	ID          string    `json:"id"`
	ExamID      string    `json:"exam_id"`
	ExamTitle   string    `json:"exam_title"`
	Score       float64   `json:"score"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// AnswerDetail is an Answer joined with its Question for result review.
type AnswerDetail struct {
	QuestionID    string  `json:"question_id"`
	QuestionText  string  `json:"question_text"`
	QuestionType  string  `json:"question_type"`
	Points        int     `json:"points"`
	Value         string  `json:"value"`
	IsCorrect     *bool   `json:"is_correct"`
	PointsAwarded float64 `json:"points_awarded"`
}

// ResultDetail is a completed attempt with its graded answers.
type ResultDetail struct {
	Attempt   Attempt        `json:"attempt"`
	ExamTitle string         `json:"exam_title"`
	Answers   []AnswerDetail `json:"answers"`
}
