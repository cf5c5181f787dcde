package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/attempt"
	"github.com/trezcool/mtihani/core/exam"
)

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) exam.Repository {
	return &examRepository{db: db}
}

type (
	examRow struct {
		ID          string    `db:"id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		Duration    int       `db:"duration"`
		Category    string    `db:"category"`
		CreatedBy   string    `db:"created_by"`
		IsPublished bool      `db:"is_published"`
		IsActive    bool      `db:"is_active"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	questionRow struct {
		ID       string `db:"id"`
		ExamID   string `db:"exam_id"`
		Text     string `db:"text"`
		Type     string `db:"type"`
		Points   int    `db:"points"`
		Position int    `db:"position"`
	}

	optionRow struct {
		ID         string `db:"id"`
		QuestionID string `db:"question_id"`
		Text       string `db:"text"`
		IsCorrect  bool   `db:"is_correct"`
		Position   int    `db:"position"`
	}
)

func (row examRow) toExam() exam.Exam {
	return exam.Exam{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Duration:    row.Duration,
		Category:    row.Category,
		CreatedBy:   row.CreatedBy,
		IsPublished: row.IsPublished,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

var examOrderingFields = map[string]bool{
	"title":      true,
	"category":   true,
	"created_at": true,
	"updated_at": true,
}

func examOrderBy(ordering []core.DBOrdering) string {
	for _, ord := range ordering {
		if examOrderingFields[ord.Field] {
			return ord.String()
		}
	}
	return "created_at DESC"
}

func (repo *examRepository) CreateExam(ctx context.Context, ex exam.Exam) (exam.Exam, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	ex.ID = uuid.New().String()
	examQ := `
	INSERT INTO exam (id, title, description, duration, category, created_by, is_published, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = tx.ExecContext(ctx, examQ,
		ex.ID, ex.Title, ex.Description, ex.Duration, ex.Category,
		ex.CreatedBy, ex.IsPublished, ex.IsActive, ex.CreatedAt, ex.UpdatedAt,
	)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}

	questionQ := `
	INSERT INTO question (id, exam_id, text, type, points, "position")
	VALUES ($1, $2, $3, $4, $5, $6)`
	optionQ := `
	INSERT INTO answer_option (id, question_id, text, is_correct, "position")
	VALUES ($1, $2, $3, $4, $5)`

	for i := range ex.Questions {
		q := &ex.Questions[i]
		q.ID = uuid.New().String()
		q.ExamID = ex.ID
		if _, err = tx.ExecContext(ctx, questionQ, q.ID, q.ExamID, q.Text, q.Type, q.Points, q.Position); err != nil {
			return exam.Exam{}, errors.Wrap(err, "inserting question")
		}
		for j := range q.Options {
			opt := &q.Options[j]
			opt.ID = uuid.New().String()
			opt.QuestionID = q.ID
			if _, err = tx.ExecContext(ctx, optionQ, opt.ID, opt.QuestionID, opt.Text, opt.IsCorrect, opt.Position); err != nil {
				return exam.Exam{}, errors.Wrap(err, "inserting answer option")
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return exam.Exam{}, errors.Wrap(err, "committing exam")
	}
	return ex, nil
}

func (repo *examRepository) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	var row examRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM exam WHERE id = $1`, id); err != nil {
		return exam.Exam{}, trapNoRowsErr(err, exam.ErrNotFound, "getting exam")
	}
	ex := row.toExam()

	var qRows []questionRow
	q := `SELECT * FROM question WHERE exam_id = $1 ORDER BY "position" ASC`
	if err := repo.db.SelectContext(ctx, &qRows, q, id); err != nil {
		return exam.Exam{}, errors.Wrap(err, "querying questions")
	}
	if len(qRows) == 0 {
		return ex, nil
	}

	qIDs := make([]string, 0, len(qRows))
	for _, qr := range qRows {
		qIDs = append(qIDs, qr.ID)
	}
	optQ, args, err := sqlx.In(`SELECT * FROM answer_option WHERE question_id IN (?) ORDER BY "position" ASC`, qIDs)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "building options query")
	}
	var optRows []optionRow
	if err = repo.db.SelectContext(ctx, &optRows, repo.db.Rebind(optQ), args...); err != nil {
		return exam.Exam{}, errors.Wrap(err, "querying answer options")
	}

	optsByQuestion := make(map[string][]exam.AnswerOption, len(qRows))
	for _, or := range optRows {
		optsByQuestion[or.QuestionID] = append(optsByQuestion[or.QuestionID], exam.AnswerOption{
			ID:         or.ID,
			QuestionID: or.QuestionID,
			Text:       or.Text,
			IsCorrect:  or.IsCorrect,
			Position:   or.Position,
		})
	}
	for _, qr := range qRows {
		ex.Questions = append(ex.Questions, exam.Question{
			ID:       qr.ID,
			ExamID:   qr.ExamID,
			Text:     qr.Text,
			Type:     qr.Type,
			Points:   qr.Points,
			Position: qr.Position,
			Options:  optsByQuestion[qr.ID],
		})
	}
	return ex, nil
}

func (repo *examRepository) QueryExamsByOwner(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]exam.Exam, error) {
	q := `SELECT * FROM exam WHERE created_by = $1 ORDER BY ` + examOrderBy(ordering)

	var rows []examRow
	if err := repo.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, row := range rows {
		exams = append(exams, row.toExam())
	}
	return exams, nil
}

func (repo *examRepository) QueryAvailableExams(ctx context.Context, userID string) ([]exam.Exam, error) {
	q := `
	SELECT e.* FROM exam e
	WHERE e.is_published AND e.is_active
	  AND NOT EXISTS (
	      SELECT 1 FROM attempt a
	      WHERE a.exam_id = e.id AND a.user_id = $1 AND a.status = $2
	  )
	ORDER BY e.created_at DESC`

	var rows []examRow
	if err := repo.db.SelectContext(ctx, &rows, q, userID, attempt.StatusCompleted); err != nil {
		return nil, errors.Wrap(err, "querying available exams")
	}
	exams := make([]exam.Exam, 0, len(rows))
	for _, row := range rows {
		exams = append(exams, row.toExam())
	}
	return exams, nil
}

func (repo *examRepository) UpdateExam(ctx context.Context, ex exam.Exam, isPublished, isActive *bool) (exam.Exam, error) {
	// only save set fields
	var sets []string
	var args []interface{}
	set := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}

	if ex.Title != "" {
		set("title", ex.Title)
	}
	if ex.Description != "" {
		set("description", ex.Description)
	}
	if ex.Category != "" {
		set("category", ex.Category)
	}
	if ex.Duration != 0 {
		set("duration", ex.Duration)
	}
	if isPublished != nil {
		set("is_published", *isPublished)
	}
	if isActive != nil {
		set("is_active", *isActive)
	}
	if !ex.UpdatedAt.IsZero() {
		set("updated_at", ex.UpdatedAt)
	}
	if len(sets) == 0 {
		return repo.GetExam(ctx, ex.ID)
	}

	q := fmt.Sprintf(`UPDATE exam SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, ex.ID)

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "updating exam")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exam.Exam{}, exam.ErrNotFound
	}
	return repo.GetExam(ctx, ex.ID)
}

func (repo *examRepository) DeleteExamsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM exam WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting exams")
	}
	return nil
}
