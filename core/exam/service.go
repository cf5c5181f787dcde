package exam

import (
	"context"
	"errors"
	"time"

	"github.com/trezcool/mtihani/core"
)

var (
	// errors
	ErrNotFound = errors.New("exam not found")
)

type (
	Repository interface {
		// CreateExam inserts the exam and its whole question tree atomically.
		CreateExam(ctx context.Context, ex Exam) (Exam, error)
		// GetExam loads the exam with its questions and options,
		// including correctness flags; callers decide what to expose.
		GetExam(ctx context.Context, id string) (Exam, error)
		QueryExamsByOwner(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Exam, error)
		// QueryAvailableExams returns published, active exams the user has
		// not completed yet.
		QueryAvailableExams(ctx context.Context, userID string) ([]Exam, error)
		UpdateExam(ctx context.Context, ex Exam, isPublished, isActive *bool) (Exam, error)
		DeleteExamsByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, ownerID string, ne NewExam) (Exam, error)
		GetByID(ctx context.Context, id string) (Exam, error)
		QueryByOwner(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Exam, error)
		QueryAvailable(ctx context.Context, userID string) ([]Exam, error)
		Update(ctx context.Context, id string, ue UpdateExam) (Exam, error)
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ownerID string, ne NewExam) (Exam, error) {
	now := time.Now().UTC()
	ex := Exam{
		Title:       ne.Title,
		Description: ne.Description,
		Duration:    ne.Duration,
		Category:    ne.Category,
		CreatedBy:   ownerID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, nq := range ne.Questions {
		q := Question{
			Text:     nq.Text,
			Type:     nq.Type,
			Points:   nq.Points,
			Position: i,
		}
		for j, no := range nq.Options {
			q.Options = append(q.Options, AnswerOption{
				Text:      no.Text,
				IsCorrect: no.IsCorrect,
				Position:  j,
			})
		}
		ex.Questions = append(ex.Questions, q)
	}
	return svc.repo.CreateExam(ctx, ex)
}

func (svc *service) GetByID(ctx context.Context, id string) (Exam, error) {
	return svc.repo.GetExam(ctx, id)
}

func (svc *service) QueryByOwner(ctx context.Context, ownerID string, ordering []core.DBOrdering) ([]Exam, error) {
	return svc.repo.QueryExamsByOwner(ctx, ownerID, ordering)
}

func (svc *service) QueryAvailable(ctx context.Context, userID string) ([]Exam, error) {
	return svc.repo.QueryAvailableExams(ctx, userID)
}

func (svc *service) Update(ctx context.Context, id string, ue UpdateExam) (Exam, error) {
	ex := Exam{
		ID:          id,
		Title:       ue.Title,
		Description: ue.Description,
		Duration:    ue.Duration,
		Category:    ue.Category,
		UpdatedAt:   time.Now().UTC(),
	}
	return svc.repo.UpdateExam(ctx, ex, ue.IsPublished, ue.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteExamsByID(ctx, ids...)
}
