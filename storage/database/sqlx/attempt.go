package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mtihani/core/attempt"
)

type attemptRepository struct {
	db *sqlx.DB
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *sqlx.DB) attempt.Repository {
	return &attemptRepository{db: db}
}

type (
	attemptRow struct {
		ID          string       `db:"id"`
		ExamID      string       `db:"exam_id"`
		UserID      string       `db:"user_id"`
		Status      string       `db:"status"`
		Score       null.Float64 `db:"score"`
		StartedAt   time.Time    `db:"started_at"`
		CompletedAt null.Time    `db:"completed_at"`
	}

	completedAttemptRow struct {
		ID          string    `db:"id"`
		ExamID      string    `db:"exam_id"`
		ExamTitle   string    `db:"exam_title"`
		Score       float64   `db:"score"`
		StartedAt   time.Time `db:"started_at"`
		CompletedAt time.Time `db:"completed_at"`
	}

	answerDetailRow struct {
		QuestionID    string    `db:"question_id"`
		QuestionText  string    `db:"question_text"`
		QuestionType  string    `db:"question_type"`
		Points        int       `db:"points"`
		Value         string    `db:"value"`
		IsCorrect     null.Bool `db:"is_correct"`
		PointsAwarded float64   `db:"points_awarded"`
	}
)

func (row attemptRow) toAttempt() attempt.Attempt {
	return attempt.Attempt{
		ID:          row.ID,
		ExamID:      row.ExamID,
		UserID:      row.UserID,
		Status:      row.Status,
		Score:       row.Score.Ptr(),
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt.Ptr(),
	}
}

func (repo *attemptRepository) GetLatestAttempt(ctx context.Context, examID, userID string) (attempt.Attempt, error) {
	q := `
	SELECT * FROM attempt
	WHERE exam_id = $1 AND user_id = $2
	ORDER BY started_at DESC
	LIMIT 1`

	var row attemptRow
	if err := repo.db.GetContext(ctx, &row, q, examID, userID); err != nil {
		return attempt.Attempt{}, trapNoRowsErr(err, attempt.ErrNotFound, "getting latest attempt")
	}
	return row.toAttempt(), nil
}

func (repo *attemptRepository) CreateAttempt(ctx context.Context, att attempt.Attempt) (attempt.Attempt, error) {
	att.ID = uuid.New().String()

	// the partial unique index caps live attempts at one per (exam, user);
	// a lost creation race falls back to the surviving row
	q := `
	INSERT INTO attempt (id, exam_id, user_id, status, score, started_at, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (exam_id, user_id) WHERE status = 'in-progress' DO NOTHING`
	res, err := repo.db.ExecContext(ctx, q,
		att.ID, att.ExamID, att.UserID, att.Status,
		null.Float64FromPtr(att.Score), att.StartedAt, null.TimeFromPtr(att.CompletedAt),
	)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "creating attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repo.GetLatestAttempt(ctx, att.ExamID, att.UserID)
	}
	return att, nil
}

func (repo *attemptRepository) CompleteAttempt(ctx context.Context, att attempt.Attempt, answers []attempt.Answer) (attempt.Attempt, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// guarded flip; whichever submission lands first wins
	q := `
	UPDATE attempt SET status = $1, score = $2, completed_at = $3
	WHERE id = $4 AND status = $5`
	res, err := tx.ExecContext(ctx, q,
		att.Status, null.Float64FromPtr(att.Score), null.TimeFromPtr(att.CompletedAt),
		att.ID, attempt.StatusInProgress,
	)
	if err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "completing attempt")
	}
	if n, err := res.RowsAffected(); err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "completing attempt")
	} else if n == 0 {
		return attempt.Attempt{}, attempt.ErrNoActiveAttempt
	}

	answerQ := `
	INSERT INTO answer (id, attempt_id, question_id, value, is_correct, points_awarded)
	VALUES ($1, $2, $3, $4, $5, $6)`
	for _, ans := range answers {
		_, err = tx.ExecContext(ctx, answerQ,
			uuid.New().String(), att.ID, ans.QuestionID, ans.Value,
			null.BoolFromPtr(ans.IsCorrect), ans.PointsAwarded,
		)
		if err != nil {
			return attempt.Attempt{}, errors.Wrap(err, "inserting answer")
		}
	}

	if err = tx.Commit(); err != nil {
		return attempt.Attempt{}, errors.Wrap(err, "committing attempt")
	}
	return att, nil
}

func (repo *attemptRepository) GetAttempt(ctx context.Context, id string) (attempt.Attempt, error) {
	var row attemptRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM attempt WHERE id = $1`, id); err != nil {
		return attempt.Attempt{}, trapNoRowsErr(err, attempt.ErrNotFound, "getting attempt")
	}
	return row.toAttempt(), nil
}

func (repo *attemptRepository) QueryCompletedAttempts(ctx context.Context, userID string) ([]attempt.CompletedAttempt, error) {
	q := `
	SELECT a.id, a.exam_id, e.title AS exam_title, a.score, a.started_at, a.completed_at
	FROM attempt a
	JOIN exam e ON e.id = a.exam_id
	WHERE a.user_id = $1 AND a.status = $2
	ORDER BY a.completed_at DESC`

	var rows []completedAttemptRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID, attempt.StatusCompleted); err != nil {
		return nil, errors.Wrap(err, "querying completed attempts")
	}

	atts := make([]attempt.CompletedAttempt, 0, len(rows))
	for _, row := range rows {
		atts = append(atts, attempt.CompletedAttempt{
			ID:          row.ID,
			ExamID:      row.ExamID,
			ExamTitle:   row.ExamTitle,
			Score:       row.Score,
			StartedAt:   row.StartedAt,
			CompletedAt: row.CompletedAt,
		})
	}
	return atts, nil
}

func (repo *attemptRepository) QueryAttemptAnswers(ctx context.Context, attemptID string) ([]attempt.AnswerDetail, error) {
	// missing attempt is a distinct condition from an attempt with no answers
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT true FROM attempt WHERE id = $1`, attemptID); err != nil {
		return nil, trapNoRowsErr(err, attempt.ErrNotFound, "getting attempt")
	}

	q := `
	SELECT ans.question_id, q.text AS question_text, q.type AS question_type,
	       q.points, ans.value, ans.is_correct, ans.points_awarded
	FROM answer ans
	JOIN question q ON q.id = ans.question_id
	WHERE ans.attempt_id = $1
	ORDER BY q."position" ASC`

	var rows []answerDetailRow
	if err := repo.db.SelectContext(ctx, &rows, q, attemptID); err != nil {
		return nil, errors.Wrap(err, "querying attempt answers")
	}

	details := make([]attempt.AnswerDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, attempt.AnswerDetail{
			QuestionID:    row.QuestionID,
			QuestionText:  row.QuestionText,
			QuestionType:  row.QuestionType,
			Points:        row.Points,
			Value:         row.Value,
			IsCorrect:     row.IsCorrect.Ptr(),
			PointsAwarded: row.PointsAwarded,
		})
	}
	return details, nil
}
