package dummydb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, cin, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.query() {
		if excluded[usr.ID] {
			continue
		}
		if usr.CIN == cin {
			return user.ErrCINExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.New().String()
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := repo.query()

	if filter != nil {
		// users with search keyword matching any Name, CIN or Email ?
		if filter.Search != "" {
			var filtered []user.User
			needle := strings.ToLower(filter.Search)
			for _, u := range users {
				if strings.Contains(strings.ToLower(u.Name), needle) ||
					strings.Contains(strings.ToLower(u.Email), needle) ||
					strings.Contains(u.CIN, filter.Search) {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
		if users != nil && filter.Role != "" {
			var filtered []user.User
			for _, u := range users {
				if u.Role == filter.Role {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
		if users != nil && filter.IsActive != nil {
			var filtered []user.User
			for _, u := range users {
				if u.IsActive == *filter.IsActive {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
		if users != nil && !filter.CreatedFrom.IsZero() {
			var filtered []user.User
			timeUTC := filter.CreatedFrom.UTC()
			for _, u := range users {
				if !u.CreatedAt.Before(timeUTC) {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
		if users != nil && !filter.CreatedTo.IsZero() {
			var filtered []user.User
			timeUTC := filter.CreatedTo.UTC()
			for _, u := range users {
				if !u.CreatedAt.After(timeUTC) {
					filtered = append(filtered, u)
				}
			}
			users = filtered
		}
	}

	sortUsers(users, ordering)
	return users, nil
}

// sortUsers orders on the fields the API exposes; defaults to newest first.
func sortUsers(users []user.User, ordering []core.DBOrdering) {
	ord := core.DBOrdering{Field: "created_at", Ascending: false}
	if len(ordering) > 0 {
		ord = ordering[0]
	}
	sort.SliceStable(users, func(i, j int) bool {
		var less bool
		switch ord.Field {
		case "name":
			less = users[i].Name < users[j].Name
		case "email":
			less = users[i].Email < users[j].Email
		default:
			less = users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		if !ord.Ascending {
			return !less
		}
		return less
	})
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.query() {
		switch {
		case filter.Email != "" && usr.Email == filter.Email:
			return usr, nil
		case filter.CIN != "" && usr.CIN == filter.CIN:
			return usr, nil
		case filter.CINOrEmail != "" && (usr.CIN == filter.CINOrEmail || usr.Email == filter.CINOrEmail):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save set fields
	origUsr, ok := repo.db.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.Name != "" {
		origUsr.Name = usr.Name
	}
	if usr.Email != "" {
		origUsr.Email = usr.Email
	}
	if usr.CIN != "" {
		origUsr.CIN = usr.CIN
	}
	if usr.Role != "" {
		origUsr.Role = usr.Role
	}
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		origUsr.IsActive = *isActive
	}
	if !usr.LastLogin.IsZero() {
		origUsr.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		origUsr.UpdatedAt = usr.UpdatedAt
	}

	repo.db.table[usr.ID] = origUsr
	return *origUsr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func (repo *userRepository) LinkStudents(_ context.Context, teacherID string, studentIDs ...string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	links, ok := repo.db.links[teacherID]
	if !ok {
		links = make(map[string]bool)
		repo.db.links[teacherID] = links
	}
	for _, id := range studentIDs {
		links[id] = true
	}
	return nil
}

func (repo *userRepository) QueryStudentsByTeacher(_ context.Context, teacherID string) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]user.User, 0)
	for id := range repo.db.links[teacherID] {
		if usr, ok := repo.db.table[id]; ok {
			students = append(students, *usr)
		}
	}
	sortUsers(students, []core.DBOrdering{{Field: "name", Ascending: true}})
	return students, nil
}
