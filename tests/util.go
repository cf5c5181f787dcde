package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/mtihani/core/attempt"
	"github.com/trezcool/mtihani/core/exam"
	"github.com/trezcool/mtihani/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, cin, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		CIN:       cin,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateExam persists an exam tree owned by ownerID. Pass published=false
// to keep it hidden from takers.
func CreateExam(
	t *testing.T,
	repo exam.Repository,
	ownerID, title string,
	published bool,
	questions ...exam.Question,
) exam.Exam {
	t.Helper()

	now := time.Now().UTC()
	ex := exam.Exam{
		Title:       title,
		Duration:    30,
		CreatedBy:   ownerID,
		IsPublished: published,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		Questions:   questions,
	}
	ex, err := repo.CreateExam(context.Background(), ex)
	if err != nil {
		t.Fatalf("CreateExam() failed: %v", err)
	}
	return ex
}

// ChoiceQuestion builds a choice question whose options are flagged
// correct at the given indexes.
func ChoiceQuestion(typ, text string, points, position int, optionTexts []string, correct ...int) exam.Question {
	q := exam.Question{
		Text:     text,
		Type:     typ,
		Points:   points,
		Position: position,
	}
	correctSet := make(map[int]bool, len(correct))
	for _, i := range correct {
		correctSet[i] = true
	}
	for i, txt := range optionTexts {
		q.Options = append(q.Options, exam.AnswerOption{
			Text:      txt,
			IsCorrect: correctSet[i],
			Position:  i,
		})
	}
	return q
}

func EssayQuestion(text string, points, position int) exam.Question {
	return exam.Question{
		Text:     text,
		Type:     exam.TypeEssay,
		Points:   points,
		Position: position,
	}
}

func CreateAttempt(t *testing.T, repo attempt.Repository, examID, userID string) attempt.Attempt {
	t.Helper()

	att, err := repo.CreateAttempt(context.Background(), attempt.Attempt{
		ExamID:    examID,
		UserID:    userID,
		Status:    attempt.StatusInProgress,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateAttempt() failed: %v", err)
	}
	return att
}
