package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/mtihani/core/attempt"
)

type attemptRepository struct {
	db *DB
}

var _ attempt.Repository = (*attemptRepository)(nil) // interface compliance check

func NewAttemptRepository(db *DB) attempt.Repository {
	return &attemptRepository{db: db}
}

func (repo *attemptRepository) GetLatestAttempt(_ context.Context, examID, userID string) (attempt.Attempt, error) {
	repo.db.attempt.RLock()
	defer repo.db.attempt.RUnlock()

	var latest *attempt.Attempt
	for _, att := range repo.db.attempt.table {
		if att.ExamID != examID || att.UserID != userID {
			continue
		}
		if latest == nil || att.StartedAt.After(latest.StartedAt) {
			latest = att
		}
	}
	if latest == nil {
		return attempt.Attempt{}, attempt.ErrNotFound
	}
	return *latest, nil
}

func (repo *attemptRepository) CreateAttempt(_ context.Context, att attempt.Attempt) (attempt.Attempt, error) {
	repo.db.attempt.Lock()
	defer repo.db.attempt.Unlock()

	att.ID = uuid.New().String()
	repo.db.attempt.table[att.ID] = &att
	return att, nil
}

func (repo *attemptRepository) CompleteAttempt(_ context.Context, att attempt.Attempt, answers []attempt.Answer) (attempt.Attempt, error) {
	repo.db.attempt.Lock()
	defer repo.db.attempt.Unlock()

	// guarded flip; same semantics as the SQL repo's
	// `UPDATE .. WHERE status = 'in-progress'`
	orig, ok := repo.db.attempt.table[att.ID]
	if !ok || orig.Status != attempt.StatusInProgress {
		return attempt.Attempt{}, attempt.ErrNoActiveAttempt
	}

	rows := make([]attempt.Answer, 0, len(answers))
	for _, ans := range answers {
		ans.ID = uuid.New().String()
		ans.AttemptID = att.ID
		rows = append(rows, ans)
	}

	orig.Status = att.Status
	orig.Score = att.Score
	orig.CompletedAt = att.CompletedAt
	repo.db.attempt.table[att.ID] = orig
	repo.db.attempt.answers[att.ID] = rows
	return *orig, nil
}

func (repo *attemptRepository) GetAttempt(_ context.Context, id string) (attempt.Attempt, error) {
	repo.db.attempt.RLock()
	defer repo.db.attempt.RUnlock()

	if att, ok := repo.db.attempt.table[id]; ok {
		return *att, nil
	}
	return attempt.Attempt{}, attempt.ErrNotFound
}

func (repo *attemptRepository) QueryCompletedAttempts(_ context.Context, userID string) ([]attempt.CompletedAttempt, error) {
	repo.db.attempt.RLock()
	defer repo.db.attempt.RUnlock()
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	rows := make([]attempt.CompletedAttempt, 0)
	for _, att := range repo.db.attempt.table {
		if att.UserID != userID || att.Status != attempt.StatusCompleted {
			continue
		}
		row := attempt.CompletedAttempt{
			ID:        att.ID,
			ExamID:    att.ExamID,
			StartedAt: att.StartedAt,
		}
		if att.Score != nil {
			row.Score = *att.Score
		}
		if att.CompletedAt != nil {
			row.CompletedAt = *att.CompletedAt
		}
		if ex, ok := repo.db.exam.table[att.ExamID]; ok {
			row.ExamTitle = ex.Title
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CompletedAt.After(rows[j].CompletedAt) })
	return rows, nil
}

func (repo *attemptRepository) QueryAttemptAnswers(_ context.Context, attemptID string) ([]attempt.AnswerDetail, error) {
	repo.db.attempt.RLock()
	defer repo.db.attempt.RUnlock()
	repo.db.exam.RLock()
	defer repo.db.exam.RUnlock()

	att, ok := repo.db.attempt.table[attemptID]
	if !ok {
		return nil, attempt.ErrNotFound
	}

	// index the exam's questions for the join
	type qInfo struct {
		text     string
		typ      string
		points   int
		position int
	}
	questions := make(map[string]qInfo)
	if ex, ok := repo.db.exam.table[att.ExamID]; ok {
		for _, q := range ex.Questions {
			questions[q.ID] = qInfo{text: q.Text, typ: q.Type, points: q.Points, position: q.Position}
		}
	}

	rows := make([]attempt.AnswerDetail, 0, len(repo.db.attempt.answers[attemptID]))
	for _, ans := range repo.db.attempt.answers[attemptID] {
		q := questions[ans.QuestionID]
		rows = append(rows, attempt.AnswerDetail{
			QuestionID:    ans.QuestionID,
			QuestionText:  q.text,
			QuestionType:  q.typ,
			Points:        q.points,
			Value:         ans.Value,
			IsCorrect:     ans.IsCorrect,
			PointsAwarded: ans.PointsAwarded,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return questions[rows[i].QuestionID].position < questions[rows[j].QuestionID].position
	})
	return rows, nil
}
