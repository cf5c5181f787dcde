package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/user"
	emailsvc "github.com/trezcool/mtihani/services/email"
	dummydb "github.com/trezcool/mtihani/storage/database/dummy"
	testutil "github.com/trezcool/mtihani/tests"
)

func setup(t *testing.T) (user.Service, user.Repository, *emailsvc.ServiceMock) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewServiceMock()
	svc := user.NewServiceMock(repo, mailSvc, core.NewConfig())
	return svc, repo, mailSvc
}

func TestService_CheckUniqueness(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Tina Teach", "tina@test.cd", "22222222", "LePass123", user.RoleTeacher, true)

	tests := []struct {
		name      string
		cin       string
		email     string
		excluded  []user.User
		wantField string
	}{
		{name: "both free", cin: "33333333", email: "free@test.cd"},
		{name: "taken CIN", cin: "22222222", email: "free@test.cd", wantField: "cin"},
		{name: "taken email", cin: "33333333", email: "tina@test.cd", wantField: "email"},
		{name: "CIN wins when both are taken", cin: "22222222", email: "tina@test.cd", wantField: "cin"},
		{name: "own values are excluded", cin: "22222222", email: "tina@test.cd", excluded: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.cin, tt.email, tt.excluded...)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_Enrollment(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()

	teacher := testutil.CreateUser(t, repo, "Tina Teach", "tina@test.cd", "22222222", "LePass123", user.RoleTeacher, true)
	stu1 := testutil.CreateUser(t, repo, "Zoe Last", "zoe@test.cd", "33333333", "LePass123", user.RoleStudent, true)
	stu2 := testutil.CreateUser(t, repo, "Ali Prime", "ali@test.cd", "44444444", "LePass123", user.RoleStudent, true)

	t.Run("by CIN", func(t *testing.T) {
		students, err := svc.EnrollStudentsByCIN(ctx, teacher.ID, []string{" 33333333 ", "44444444"})
		require.NoError(t, err)
		assert.Len(t, students, 2)
	})

	t.Run("class is sorted by name", func(t *testing.T) {
		students, err := svc.QueryStudents(ctx, teacher.ID)
		require.NoError(t, err)
		require.Len(t, students, 2)
		assert.Equal(t, stu2.ID, students[0].ID)
		assert.Equal(t, stu1.ID, students[1].ID)
	})

	t.Run("enrolling again is harmless", func(t *testing.T) {
		_, err := svc.EnrollStudentsByEmail(ctx, teacher.ID, []string{"zoe@test.cd"})
		require.NoError(t, err)

		students, err := svc.QueryStudents(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Len(t, students, 2)
	})

	t.Run("bad identifiers are reported without aborting the rest", func(t *testing.T) {
		other := testutil.CreateUser(t, repo, "New Kid", "kid@test.cd", "55555555", "LePass123", user.RoleStudent, true)

		students, err := svc.EnrollStudentsByCIN(ctx, teacher.ID, []string{"55555555", "00000000", "22222222"})
		require.Len(t, students, 1)
		assert.Equal(t, other.ID, students[0].ID)

		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 2)
		assert.Equal(t, core.FieldError{Field: "00000000", Error: user.ErrNotFound.Error()}, vErr.Fields[0])
		assert.Equal(t, core.FieldError{Field: "22222222", Error: "not a student account"}, vErr.Fields[1])

		all, err := svc.QueryStudents(ctx, teacher.ID)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestService_ResetPassword(t *testing.T) {
	svc, repo, mailSvc := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Zoe Last", "zoe@test.cd", "33333333", "LePass123", user.RoleStudent, true)

	t.Run("garbage uid", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: "!!!", Token: "nope", Password: "NewPass123"})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "invalid token", vErr.Error())
	})

	t.Run("bad token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: user.EncodeUID(usr), Token: "nope", Password: "NewPass123"})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "invalid token", vErr.Error())
	})

	t.Run("request sends a mail to known accounts only", func(t *testing.T) {
		mailSvc.Reset()
		assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "ghost@test.cd"))
		assert.Empty(t, mailSvc.SentMessages)

		require.NoError(t, svc.RequestPasswordReset(ctx, "zoe@test.cd"))
		require.Len(t, mailSvc.SentMessages, 1)
		assert.Contains(t, mailSvc.SentMessages[0].Body, "password-reset?uid=")
	})
}
