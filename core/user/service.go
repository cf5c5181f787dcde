package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/mtihani/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrCINExists   = errors.New("a user with this CIN already exists")
)

type (
	Repository interface {
		// CheckUniqueness fails with ErrCINExists or ErrEmailExists when
		// another (non-excluded) user owns the given CIN or email.
		CheckUniqueness(ctx context.Context, cin, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Name, CIN or Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error

		// enrollment
		LinkStudents(ctx context.Context, teacherID string, studentIDs ...string) error
		QueryStudentsByTeacher(ctx context.Context, teacherID string) ([]User, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, cin, email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByCINOrEmail(ctx context.Context, cin string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		QueryStudents(ctx context.Context, teacherID string) ([]User, error)
		EnrollStudentsByCIN(ctx context.Context, teacherID string, cins []string) ([]User, error)
		EnrollStudentsByEmail(ctx context.Context, teacherID string, emails []string) ([]User, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	secretKey = []byte(conf.SecretKey)
	passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, cin, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, cin, email, exclUsers...); err != nil {
		var field string
		switch err {
		case ErrCINExists:
			field = "cin"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		CIN:       nu.CIN,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByCINOrEmail(ctx context.Context, cin string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{CINOrEmail: core.CleanString(cin, true /* lower */)})
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		Name:      uu.Name,
		Email:     uu.Email,
		CIN:       uu.CIN,
		Role:      uu.Role,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr, nil)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	url := fmt.Sprintf("%s/password-reset?uid=%s&token=%s", svc.conf.FrontendBaseURL, EncodeUID(usr), makeToken(usr))
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: fmt.Sprintf("Password reset on %s", svc.conf.AppName),
		Body: fmt.Sprintf(
			"You're receiving this email because you requested a password reset for your account.\n\n"+
				"Please follow this link to set a new password: %s\n\n"+
				"If you did not request this, you can safely ignore this email.", url),
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	uid, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if err == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr, nil)
	return err
}

func (svc *service) QueryStudents(ctx context.Context, teacherID string) ([]User, error) {
	return svc.repo.QueryStudentsByTeacher(ctx, teacherID)
}

func (svc *service) EnrollStudentsByCIN(ctx context.Context, teacherID string, cins []string) ([]User, error) {
	get := func(ctx context.Context, cin string) (User, error) {
		return svc.repo.GetUser(ctx, GetFilter{CIN: core.CleanString(cin)})
	}
	return svc.enrollStudents(ctx, teacherID, cins, get)
}

func (svc *service) EnrollStudentsByEmail(ctx context.Context, teacherID string, emails []string) ([]User, error) {
	return svc.enrollStudents(ctx, teacherID, emails, svc.GetByEmail)
}

// enrollStudents links every matched student to the teacher; unknown or
// non-student identifiers are reported as a ValidationError without
// aborting the rest.
func (svc *service) enrollStudents(
	ctx context.Context,
	teacherID string,
	keys []string,
	get func(context.Context, string) (User, error),
) ([]User, error) {
	var flds []core.FieldError
	students := make([]User, 0, len(keys))
	ids := make([]string, 0, len(keys))

	for _, key := range keys {
		usr, err := get(ctx, key)
		if err != nil {
			if err == ErrNotFound {
				flds = append(flds, core.FieldError{Field: key, Error: err.Error()})
				continue
			}
			return nil, err
		}
		if !usr.IsStudent() {
			flds = append(flds, core.FieldError{Field: key, Error: "not a student account"})
			continue
		}
		students = append(students, usr)
		ids = append(ids, usr.ID)
	}

	if len(ids) > 0 {
		if err := svc.repo.LinkStudents(ctx, teacherID, ids...); err != nil {
			return nil, err
		}
		go svc.sendEnrollmentMail(students)
	}
	if flds != nil {
		return students, core.NewValidationError(errors.New("some students could not be enrolled"), flds...)
	}
	return students, nil
}

func (svc *service) sendEnrollmentMail(students []User) {
	msgs := make([]*core.EmailMessage, 0, len(students))
	for _, usr := range students {
		msgs = append(msgs, &core.EmailMessage{
			To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject: fmt.Sprintf("You have been enrolled on %s", svc.conf.AppName),
			Body: fmt.Sprintf(
				"Hello %s,\n\nA teacher added you to their class on %s. "+
					"Newly assigned exams will appear on your dashboard: %s\n",
				usr.Name, svc.conf.AppName, svc.conf.FrontendBaseURL),
		})
	}
	svc.mailSvc.SendMessages(msgs...)
}
