package attempt

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/mtihani/core/exam"
	"github.com/trezcool/mtihani/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("attempt not found")
	ErrAlreadyCompleted = errors.New("exam already completed")
	ErrNoActiveAttempt  = errors.New("no active exam attempt found")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// GetLatestAttempt returns the most recent attempt for the
		// (exam, user) pair; ErrNotFound when none exists.
		GetLatestAttempt(ctx context.Context, examID, userID string) (Attempt, error)
		CreateAttempt(ctx context.Context, att Attempt) (Attempt, error)
		// CompleteAttempt persists the answer rows and flips the attempt to
		// completed as one atomic unit. The status flip is guarded on the
		// attempt still being in-progress: a lost race fails with
		// ErrNoActiveAttempt and writes nothing.
		CompleteAttempt(ctx context.Context, att Attempt, answers []Answer) (Attempt, error)
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		QueryCompletedAttempts(ctx context.Context, userID string) ([]CompletedAttempt, error)
		QueryAttemptAnswers(ctx context.Context, attemptID string) ([]AnswerDetail, error)
	}

	Service interface {
		StartOrResume(ctx context.Context, examID, userID string) (Attempt, error)
		Submit(ctx context.Context, examID, userID string, answers map[string]string) (Result, error)
		QueryCompleted(ctx context.Context, userID string) ([]CompletedAttempt, error)
		GetResult(ctx context.Context, attemptID string, requester user.User) (ResultDetail, error)
	}

	service struct {
		repo    Repository
		examSvc exam.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, examSvc exam.Service) Service {
	return &service{
		repo:    repo,
		examSvc: examSvc,
	}
}

// StartOrResume returns the user's live attempt at the exam, creating one
// if none exists. Resuming is idempotent; a completed attempt blocks any
// further access (retakes are not permitted).
func (svc *service) StartOrResume(ctx context.Context, examID, userID string) (Attempt, error) {
	ex, err := svc.examSvc.GetByID(ctx, examID)
	if err != nil {
		return Attempt{}, err
	}
	if !ex.IsPublished || !ex.IsActive {
		// hidden from takers; indistinguishable from a missing exam
		return Attempt{}, exam.ErrNotFound
	}

	latest, err := svc.repo.GetLatestAttempt(ctx, examID, userID)
	if err != nil {
		if err == ErrNotFound {
			return svc.repo.CreateAttempt(ctx, Attempt{
				ExamID:    examID,
				UserID:    userID,
				Status:    StatusInProgress,
				StartedAt: nowFunc().UTC(),
			})
		}
		return Attempt{}, err
	}
	if latest.Status == StatusCompleted {
		return Attempt{}, ErrAlreadyCompleted
	}
	return latest, nil
}

// Submit grades the exam against the submitted answers and completes the
// live attempt. Every question gets exactly one Answer row (missing
// submissions are recorded as empty); essay questions are never
// auto-scored. The attempt update and answer inserts commit atomically;
// whichever of two concurrent submissions lands first wins, the other
// fails with ErrNoActiveAttempt.
func (svc *service) Submit(ctx context.Context, examID, userID string, answers map[string]string) (Result, error) {
	att, err := svc.repo.GetLatestAttempt(ctx, examID, userID)
	if err != nil {
		if err == ErrNotFound {
			return Result{}, ErrNoActiveAttempt
		}
		return Result{}, err
	}
	if att.Status != StatusInProgress {
		return Result{}, ErrNoActiveAttempt
	}

	ex, err := svc.examSvc.GetByID(ctx, examID)
	if err != nil {
		return Result{}, err
	}

	var totalPoints, earnedPoints float64
	var correctCount int
	rows := make([]Answer, 0, len(ex.Questions))

	for _, q := range ex.Questions {
		val := answers[q.ID]
		row := Answer{
			AttemptID:  att.ID,
			QuestionID: q.ID,
			Value:      val,
		}
		if q.IsChoice() {
			correct := grade(q, val)
			row.IsCorrect = &correct
			if correct {
				row.PointsAwarded = float64(q.Points)
				earnedPoints += float64(q.Points)
				correctCount++
			}
		}
		totalPoints += float64(q.Points)
		rows = append(rows, row)
	}

	var score float64
	if totalPoints > 0 {
		score = 100 * earnedPoints / totalPoints
	}

	now := nowFunc().UTC()
	att.Status = StatusCompleted
	att.Score = &score
	att.CompletedAt = &now

	if _, err = svc.repo.CompleteAttempt(ctx, att, rows); err != nil {
		return Result{}, err
	}
	return Result{
		Score:          score,
		TotalQuestions: len(ex.Questions),
		CorrectAnswers: correctCount,
	}, nil
}

func (svc *service) QueryCompleted(ctx context.Context, userID string) ([]CompletedAttempt, error) {
	return svc.repo.QueryCompletedAttempts(ctx, userID)
}

// GetResult loads a completed attempt with its graded answers. Visible to
// the attempt owner, the exam creator and admins only; anyone else gets
// ErrNotFound.
func (svc *service) GetResult(ctx context.Context, attemptID string, requester user.User) (ResultDetail, error) {
	att, err := svc.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return ResultDetail{}, err
	}
	ex, err := svc.examSvc.GetByID(ctx, att.ExamID)
	if err != nil {
		return ResultDetail{}, err
	}
	if !(att.UserID == requester.ID || ex.CreatedBy == requester.ID || requester.IsAdmin()) {
		return ResultDetail{}, ErrNotFound
	}

	answers, err := svc.repo.QueryAttemptAnswers(ctx, att.ID)
	if err != nil {
		return ResultDetail{}, err
	}
	return ResultDetail{
		Attempt:   att,
		ExamTitle: ex.Title,
		Answers:   answers,
	}, nil
}

// grade decides choice-question correctness. Single choice is an exact
// match on the correct option id; multiple choice is exact set equality
// between the comma-separated submitted ids and the correct ids — partial
// matches score nothing.
func grade(q exam.Question, val string) bool {
	correct := q.CorrectOptionIDs()
	if q.Type == exam.TypeSingleChoice {
		return len(correct) == 1 && val == correct[0]
	}

	submitted := splitIDs(val)
	if len(submitted) != len(correct) {
		return false
	}
	sort.Strings(submitted)
	sort.Strings(correct)
	for i := range correct {
		if submitted[i] != correct[i] {
			return false
		}
	}
	return true
}

func splitIDs(val string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, id := range strings.Split(val, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
