package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/attempt"
	"github.com/trezcool/mtihani/core/exam"
)

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) exam.Repository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateExam(_ context.Context, ex exam.Exam) (exam.Exam, error) {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()

	ex.ID = uuid.New().String()
	for i := range ex.Questions {
		q := &ex.Questions[i]
		q.ID = uuid.New().String()
		q.ExamID = ex.ID
		for j := range q.Options {
			q.Options[j].ID = uuid.New().String()
			q.Options[j].QuestionID = q.ID
		}
	}
	repo.db.exam.table[ex.ID] = &ex
	return ex, nil
}

func (repo *examRepository) GetExam(_ context.Context, id string) (exam.Exam, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	if ex, ok := repo.db.exam.table[id]; ok {
		return *ex, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) QueryExamsByOwner(_ context.Context, ownerID string, ordering []core.DBOrdering) ([]exam.Exam, error) {
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	exams := make([]exam.Exam, 0)
	for _, ex := range repo.db.exam.table {
		if ex.CreatedBy == ownerID {
			flat := *ex
			flat.Questions = nil // list views skip the tree
			exams = append(exams, flat)
		}
	}
	sortExams(exams, ordering)
	return exams, nil
}

func (repo *examRepository) QueryAvailableExams(_ context.Context, userID string) ([]exam.Exam, error) {
	completed := make(map[string]bool)
	repo.db.attempt.RLock()
	for _, att := range repo.db.attempt.table {
		if att.UserID == userID && att.Status == attempt.StatusCompleted {
			completed[att.ExamID] = true
		}
	}
	repo.db.attempt.RUnlock()

	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	exams := make([]exam.Exam, 0)
	for _, ex := range repo.db.exam.table {
		if ex.IsPublished && ex.IsActive && !completed[ex.ID] {
			flat := *ex
			flat.Questions = nil
			exams = append(exams, flat)
		}
	}
	sortExams(exams, nil)
	return exams, nil
}

func sortExams(exams []exam.Exam, ordering []core.DBOrdering) {
	ord := core.DBOrdering{Field: "created_at", Ascending: false}
	if len(ordering) > 0 {
		ord = ordering[0]
	}
	sort.SliceStable(exams, func(i, j int) bool {
		var less bool
		switch ord.Field {
		case "title":
			less = exams[i].Title < exams[j].Title
		default:
			less = exams[i].CreatedAt.Before(exams[j].CreatedAt)
		}
		if !ord.Ascending {
			return !less
		}
		return less
	})
}

func (repo *examRepository) UpdateExam(_ context.Context, ex exam.Exam, isPublished, isActive *bool) (exam.Exam, error) {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()

	// only save set fields
	origEx, ok := repo.db.exam.table[ex.ID]
	if !ok {
		return exam.Exam{}, exam.ErrNotFound
	}
	if ex.Title != "" {
		origEx.Title = ex.Title
	}
	if ex.Description != "" {
		origEx.Description = ex.Description
	}
	if ex.Category != "" {
		origEx.Category = ex.Category
	}
	if ex.Duration != 0 {
		origEx.Duration = ex.Duration
	}
	if isPublished != nil {
		origEx.IsPublished = *isPublished
	}
	if isActive != nil {
		origEx.IsActive = *isActive
	}
	if !ex.UpdatedAt.IsZero() {
		origEx.UpdatedAt = ex.UpdatedAt
	}

	repo.db.exam.table[ex.ID] = origEx
	return *origEx, nil
}

func (repo *examRepository) DeleteExamsByID(_ context.Context, ids ...string) error {
	repo.db.exam.Lock()
	defer repo.db.exam.Unlock()
	for _, id := range ids {
		delete(repo.db.exam.table, id)
	}
	return nil
}
