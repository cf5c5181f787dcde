package attempt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mtihani/core/attempt"
	"github.com/trezcool/mtihani/core/exam"
	"github.com/trezcool/mtihani/core/user"
	dummydb "github.com/trezcool/mtihani/storage/database/dummy"
	testutil "github.com/trezcool/mtihani/tests"
)

type testDeps struct {
	examRepo    exam.Repository
	attemptRepo attempt.Repository
	examSvc     exam.Service
	svc         attempt.Service
}

func setup(t *testing.T) testDeps {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	examRepo := dummydb.NewExamRepository(db)
	attemptRepo := dummydb.NewAttemptRepository(db)
	examSvc := exam.NewService(examRepo)
	return testDeps{
		examRepo:    examRepo,
		attemptRepo: attemptRepo,
		examSvc:     examSvc,
		svc:         attempt.NewService(attemptRepo, examSvc),
	}
}

// correctOptionID returns the id of the first correct option of the
// question at the given position.
func correctOptionID(t *testing.T, ex exam.Exam, position int) string {
	t.Helper()
	for _, q := range ex.Questions {
		if q.Position == position {
			ids := q.CorrectOptionIDs()
			require.NotEmpty(t, ids)
			return ids[0]
		}
	}
	t.Fatalf("no question at position %d", position)
	return ""
}

func wrongOptionID(t *testing.T, ex exam.Exam, position int) string {
	t.Helper()
	for _, q := range ex.Questions {
		if q.Position == position {
			for _, opt := range q.Options {
				if !opt.IsCorrect {
					return opt.ID
				}
			}
		}
	}
	t.Fatalf("no wrong option at position %d", position)
	return ""
}

func TestService_StartOrResume(t *testing.T) {
	deps := setup(t)
	ctx := context.Background()

	q := testutil.ChoiceQuestion(exam.TypeSingleChoice, "2+2?", 1, 0, []string{"3", "4"}, 1)

	t.Run("missing exam", func(t *testing.T) {
		_, err := deps.svc.StartOrResume(ctx, "nope", "stu1")
		assert.Equal(t, exam.ErrNotFound, err)
	})

	t.Run("unpublished exam is hidden", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Draft", false, q)
		_, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		assert.Equal(t, exam.ErrNotFound, err)
	})

	t.Run("inactive exam is hidden", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Archived", true, q)
		inactive := false
		_, err := deps.examRepo.UpdateExam(ctx, exam.Exam{ID: ex.ID}, nil, &inactive)
		require.NoError(t, err)

		_, err = deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		assert.Equal(t, exam.ErrNotFound, err)
	})

	t.Run("start then resume is idempotent", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Maths", true, q)

		att, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		require.NoError(t, err)
		assert.Equal(t, attempt.StatusInProgress, att.Status)
		assert.Nil(t, att.Score)
		assert.Nil(t, att.CompletedAt)
		assert.False(t, att.StartedAt.IsZero())

		resumed, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		require.NoError(t, err)
		assert.Equal(t, att.ID, resumed.ID)
		assert.Equal(t, att.StartedAt, resumed.StartedAt)
	})

	t.Run("completed attempt blocks retake", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Physics", true, q)

		_, err := deps.svc.StartOrResume(ctx, ex.ID, "stu2")
		require.NoError(t, err)
		_, err = deps.svc.Submit(ctx, ex.ID, "stu2", nil)
		require.NoError(t, err)

		_, err = deps.svc.StartOrResume(ctx, ex.ID, "stu2")
		assert.Equal(t, attempt.ErrAlreadyCompleted, err)
	})
}

func TestService_Submit(t *testing.T) {
	deps := setup(t)
	ctx := context.Background()

	t.Run("no active attempt", func(t *testing.T) {
		q := testutil.ChoiceQuestion(exam.TypeSingleChoice, "2+2?", 1, 0, []string{"3", "4"}, 1)
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Maths", true, q)

		_, err := deps.svc.Submit(ctx, ex.ID, "stu1", nil)
		assert.Equal(t, attempt.ErrNoActiveAttempt, err)
	})

	t.Run("half right scores 50", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Maths", true,
			testutil.ChoiceQuestion(exam.TypeSingleChoice, "2+2?", 1, 0, []string{"3", "4"}, 1),
			testutil.ChoiceQuestion(exam.TypeSingleChoice, "3+3?", 1, 1, []string{"6", "7"}, 0),
		)
		ex, err := deps.examSvc.GetByID(ctx, ex.ID)
		require.NoError(t, err)

		att, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		require.NoError(t, err)

		res, err := deps.svc.Submit(ctx, ex.ID, "stu1", map[string]string{
			ex.Questions[0].ID: correctOptionID(t, ex, 0),
			ex.Questions[1].ID: wrongOptionID(t, ex, 1),
		})
		require.NoError(t, err)
		assert.Equal(t, 50.0, res.Score)
		assert.Equal(t, 2, res.TotalQuestions)
		assert.Equal(t, 1, res.CorrectAnswers)

		// the attempt is completed with the score recorded
		refreshed, err := deps.attemptRepo.GetAttempt(ctx, att.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt.StatusCompleted, refreshed.Status)
		require.NotNil(t, refreshed.Score)
		assert.Equal(t, 50.0, *refreshed.Score)
		assert.NotNil(t, refreshed.CompletedAt)

		// one answer row per question
		answers, err := deps.attemptRepo.QueryAttemptAnswers(ctx, att.ID)
		require.NoError(t, err)
		assert.Len(t, answers, 2)
	})

	t.Run("second submit fails and writes nothing", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Chemistry", true,
			testutil.ChoiceQuestion(exam.TypeSingleChoice, "H2O?", 1, 0, []string{"water", "salt"}, 0),
		)
		ex, err := deps.examSvc.GetByID(ctx, ex.ID)
		require.NoError(t, err)

		att, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		require.NoError(t, err)
		_, err = deps.svc.Submit(ctx, ex.ID, "stu1", map[string]string{ex.Questions[0].ID: correctOptionID(t, ex, 0)})
		require.NoError(t, err)

		_, err = deps.svc.Submit(ctx, ex.ID, "stu1", map[string]string{ex.Questions[0].ID: correctOptionID(t, ex, 0)})
		assert.Equal(t, attempt.ErrNoActiveAttempt, err)

		answers, err := deps.attemptRepo.QueryAttemptAnswers(ctx, att.ID)
		require.NoError(t, err)
		assert.Len(t, answers, 1)
	})

	t.Run("essay questions are never auto-scored", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Literature", true,
			testutil.EssayQuestion("Discuss.", 2, 0),
		)
		ex, err := deps.examSvc.GetByID(ctx, ex.ID)
		require.NoError(t, err)

		att, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		require.NoError(t, err)

		res, err := deps.svc.Submit(ctx, ex.ID, "stu1", map[string]string{ex.Questions[0].ID: "a fine essay"})
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, 1, res.TotalQuestions)
		assert.Equal(t, 0, res.CorrectAnswers)

		answers, err := deps.attemptRepo.QueryAttemptAnswers(ctx, att.ID)
		require.NoError(t, err)
		require.Len(t, answers, 1)
		assert.Nil(t, answers[0].IsCorrect)
		assert.Equal(t, 0.0, answers[0].PointsAwarded)
		assert.Equal(t, "a fine essay", answers[0].Value)
	})

	t.Run("missing answers are recorded empty", func(t *testing.T) {
		ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Biology", true,
			testutil.ChoiceQuestion(exam.TypeSingleChoice, "DNA?", 1, 0, []string{"yes", "no"}, 0),
			testutil.EssayQuestion("Explain.", 1, 1),
		)
		att, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
		require.NoError(t, err)

		_, err = deps.svc.Submit(ctx, ex.ID, "stu1", nil)
		require.NoError(t, err)

		answers, err := deps.attemptRepo.QueryAttemptAnswers(ctx, att.ID)
		require.NoError(t, err)
		require.Len(t, answers, 2)
		for _, ans := range answers {
			assert.Equal(t, "", ans.Value)
		}
	})

	t.Run("multiple choice requires the exact set", func(t *testing.T) {
		newExam := func() exam.Exam {
			ex := testutil.CreateExam(t, deps.examRepo, "tea1", "Geography", true,
				testutil.ChoiceQuestion(exam.TypeMultipleChoice, "Oceans?", 2, 0,
					[]string{"Pacific", "Sahara", "Atlantic"}, 0, 2),
			)
			ex, err := deps.examSvc.GetByID(ctx, ex.ID)
			require.NoError(t, err)
			return ex
		}

		tests := []struct {
			name    string
			value   func(ex exam.Exam) string
			correct bool
		}{
			{
				name: "exact set in any order",
				value: func(ex exam.Exam) string {
					ids := ex.Questions[0].CorrectOptionIDs()
					return ids[1] + " , " + ids[0]
				},
				correct: true,
			},
			{
				name: "duplicates collapse",
				value: func(ex exam.Exam) string {
					ids := ex.Questions[0].CorrectOptionIDs()
					return ids[0] + "," + ids[0] + "," + ids[1]
				},
				correct: true,
			},
			{
				name: "partial set scores nothing",
				value: func(ex exam.Exam) string {
					return ex.Questions[0].CorrectOptionIDs()[0]
				},
				correct: false,
			},
			{
				name: "extra wrong pick scores nothing",
				value: func(ex exam.Exam) string {
					ids := ex.Questions[0].CorrectOptionIDs()
					return ids[0] + "," + ids[1] + "," + wrongOptionID(t, ex, 0)
				},
				correct: false,
			},
		}
		for i, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ex := newExam()
				userID := "mc-stu" + string(rune('a'+i))

				_, err := deps.svc.StartOrResume(ctx, ex.ID, userID)
				require.NoError(t, err)

				res, err := deps.svc.Submit(ctx, ex.ID, userID, map[string]string{
					ex.Questions[0].ID: tt.value(ex),
				})
				require.NoError(t, err)
				if tt.correct {
					assert.Equal(t, 100.0, res.Score)
					assert.Equal(t, 1, res.CorrectAnswers)
				} else {
					assert.Equal(t, 0.0, res.Score)
					assert.Equal(t, 0, res.CorrectAnswers)
				}
			})
		}
	})
}

func TestService_GetResult(t *testing.T) {
	deps := setup(t)
	ctx := context.Background()

	ex := testutil.CreateExam(t, deps.examRepo, "tea1", "History", true,
		testutil.ChoiceQuestion(exam.TypeSingleChoice, "1960?", 1, 0, []string{"independence", "nothing"}, 0),
	)
	ex, err := deps.examSvc.GetByID(ctx, ex.ID)
	require.NoError(t, err)

	att, err := deps.svc.StartOrResume(ctx, ex.ID, "stu1")
	require.NoError(t, err)
	_, err = deps.svc.Submit(ctx, ex.ID, "stu1", map[string]string{ex.Questions[0].ID: correctOptionID(t, ex, 0)})
	require.NoError(t, err)

	tests := []struct {
		name      string
		requester user.User
		wantErr   error
	}{
		{name: "attempt owner", requester: user.User{ID: "stu1", Role: user.RoleStudent}},
		{name: "exam creator", requester: user.User{ID: "tea1", Role: user.RoleTeacher}},
		{name: "admin", requester: user.User{ID: "adm1", Role: user.RoleAdmin}},
		{name: "stranger", requester: user.User{ID: "stu2", Role: user.RoleStudent}, wantErr: attempt.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := deps.svc.GetResult(ctx, att.ID, tt.requester)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "History", res.ExamTitle)
			assert.Equal(t, att.ID, res.Attempt.ID)
			require.Len(t, res.Answers, 1)
			require.NotNil(t, res.Answers[0].IsCorrect)
			assert.True(t, *res.Answers[0].IsCorrect)
			assert.Equal(t, 1.0, res.Answers[0].PointsAwarded)
		})
	}
}

func TestService_QueryCompleted(t *testing.T) {
	deps := setup(t)
	ctx := context.Background()

	q := testutil.ChoiceQuestion(exam.TypeSingleChoice, "2+2?", 1, 0, []string{"3", "4"}, 1)
	ex1 := testutil.CreateExam(t, deps.examRepo, "tea1", "Maths", true, q)
	ex2 := testutil.CreateExam(t, deps.examRepo, "tea1", "Physics", true, q)

	_, err := deps.svc.StartOrResume(ctx, ex1.ID, "stu1")
	require.NoError(t, err)
	_, err = deps.svc.Submit(ctx, ex1.ID, "stu1", nil)
	require.NoError(t, err)

	// ex2 is started but never submitted
	_, err = deps.svc.StartOrResume(ctx, ex2.ID, "stu1")
	require.NoError(t, err)

	completed, err := deps.svc.QueryCompleted(ctx, "stu1")
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, ex1.ID, completed[0].ExamID)
	assert.Equal(t, "Maths", completed[0].ExamTitle)
	assert.False(t, completed[0].CompletedAt.IsZero())
}
