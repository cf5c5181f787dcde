package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	CIN          string    `db:"cin"`
	Role         string    `db:"role"`
	IsActive     bool      `db:"is_active"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (row userRow) toUser() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		CIN:          row.CIN,
		Role:         row.Role,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

// userOrderingFields is the whitelist of sortable columns.
var userOrderingFields = map[string]bool{
	"name":       true,
	"email":      true,
	"cin":        true,
	"role":       true,
	"created_at": true,
	"last_login": true,
}

func userOrderBy(ordering []core.DBOrdering) string {
	for _, ord := range ordering {
		if userOrderingFields[ord.Field] {
			return ord.String()
		}
	}
	return "created_at DESC"
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, cin, email string, excludedUsers ...user.User) error {
	q := `SELECT cin, email FROM "user" WHERE (cin = ? OR lower(email) = lower(?))`
	args := []interface{}{cin, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, usr := range excludedUsers {
			ids = append(ids, usr.ID)
		}
		q += ` AND id NOT IN (?)`
		args = append(args, ids)
	}

	q, inArgs, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}

	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), inArgs...); err != nil {
		return errors.Wrap(err, "checking uniqueness")
	}
	for _, row := range rows {
		if row.CIN == cin {
			return user.ErrCINExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()

	q := `
	INSERT INTO "user" (id, name, email, cin, role, is_active, password_hash, created_at, updated_at, last_login)
	VALUES (:id, :name, :email, :cin, :role, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		CIN:          usr.CIN,
		Role:         usr.Role,
		IsActive:     usr.IsActive,
		PasswordHash: usr.PasswordHash,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
		LastLogin:    null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	}
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	q := `SELECT * FROM "user"`
	var conds []string
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, `(name ILIKE ? OR email ILIKE ? OR cin LIKE ?)`)
			needle := "%" + filter.Search + "%"
			args = append(args, needle, needle, needle)
		}
		if filter.Role != "" {
			conds = append(conds, `role = ?`)
			args = append(args, filter.Role)
		}
		if filter.IsActive != nil {
			conds = append(conds, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY " + userOrderBy(ordering)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}

	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var cond string
	var arg interface{}
	switch {
	case filter.ID != "":
		cond, arg = `id = $1`, filter.ID
	case filter.Email != "":
		cond, arg = `lower(email) = lower($1)`, filter.Email
	case filter.CIN != "":
		cond, arg = `cin = $1`, filter.CIN
	case filter.CINOrEmail != "":
		cond, arg = `(cin = $1 OR lower(email) = lower($1))`, filter.CINOrEmail
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM "user" WHERE `+cond, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	// only save set fields
	var sets []string
	var args []interface{}
	set := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = ?", col))
		args = append(args, val)
	}

	if usr.Name != "" {
		set("name", usr.Name)
	}
	if usr.Email != "" {
		set("email", usr.Email)
	}
	if usr.CIN != "" {
		set("cin", usr.CIN)
	}
	if usr.Role != "" {
		set("role", usr.Role)
	}
	if usr.PasswordHash != nil {
		set("password_hash", usr.PasswordHash)
	}
	if isActive != nil {
		set("is_active", *isActive)
	}
	if !usr.LastLogin.IsZero() {
		set("last_login", usr.LastLogin)
	}
	if !usr.UpdatedAt.IsZero() {
		set("updated_at", usr.UpdatedAt)
	}
	if len(sets) == 0 {
		return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
	}

	q := fmt.Sprintf(`UPDATE "user" SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, usr.ID)

	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "building delete query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo *userRepository) LinkStudents(ctx context.Context, teacherID string, studentIDs ...string) error {
	if len(studentIDs) == 0 {
		return nil
	}

	vals := make([]string, 0, len(studentIDs))
	args := make([]interface{}, 0, 2*len(studentIDs))
	for _, id := range studentIDs {
		vals = append(vals, "(?, ?)")
		args = append(args, teacherID, id)
	}
	q := fmt.Sprintf(
		`INSERT INTO teacher_student (teacher_id, student_id) VALUES %s ON CONFLICT DO NOTHING`,
		strings.Join(vals, ", "),
	)
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "linking students")
	}
	return nil
}

func (repo *userRepository) QueryStudentsByTeacher(ctx context.Context, teacherID string) ([]user.User, error) {
	q := `
	SELECT u.* FROM "user" u
	JOIN teacher_student ts ON ts.student_id = u.id
	WHERE ts.teacher_id = $1
	ORDER BY u.name ASC`

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]user.User, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toUser())
	}
	return students, nil
}

// trapNoRowsErr converts sql.ErrNoRows into the domain's not-found error.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}
