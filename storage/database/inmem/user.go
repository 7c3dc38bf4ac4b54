package inmemdb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
)

type userRepository struct {
	mutex sync.RWMutex
	table map[string]*user.User
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository() *userRepository {
	return &userRepository{table: make(map[string]*user.User)}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.table))
	for _, u := range repo.table {
		users = append(users, *u)
	}
	return users
}

func (repo *userRepository) CheckUniqueness(_ context.Context, email, phone string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	excluded := make(map[string]struct{}, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = struct{}{}
	}

	for _, usr := range repo.query() {
		if _, ok := excluded[usr.ID]; ok {
			continue
		}
		if email != "" && strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
		if phone != "" && usr.Phone == phone {
			return user.ErrPhoneExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	usr.ID = uuid.New().String()
	repo.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.query() {
		if filter.Email != "" && strings.EqualFold(usr.Email, filter.Email) {
			return usr, nil
		}
		if filter.Phone != "" && usr.Phone == filter.Phone {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.query() {
		if filter == nil || matches(usr, filter) {
			users = append(users, usr)
		}
	}
	return users, nil
}

func matches(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		kw := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.FirstName), kw) &&
			!strings.Contains(strings.ToLower(usr.LastName), kw) &&
			!strings.Contains(strings.ToLower(usr.Email), kw) &&
			!strings.Contains(strings.ToLower(usr.Phone), kw) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.Active() != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	// only save set fields
	origUsr, ok := repo.table[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.FirstName != "" {
		origUsr.FirstName = usr.FirstName
	}
	if usr.LastName != "" {
		origUsr.LastName = usr.LastName
	}
	if usr.Email != "" {
		origUsr.Email = usr.Email
	}
	if usr.Phone != "" {
		origUsr.Phone = usr.Phone
	}
	if usr.Locale != "" {
		origUsr.Locale = usr.Locale
	}
	if !usr.Birthdate.IsZero() {
		origUsr.Birthdate = usr.Birthdate
	}
	if usr.Roles != nil {
		origUsr.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		origUsr.PasswordHash = usr.PasswordHash
	}
	if usr.IsActive != nil {
		origUsr.IsActive = usr.IsActive
	}
	if usr.EmailConfirmed {
		origUsr.EmailConfirmed = true
	}
	if usr.PhoneVerified {
		origUsr.PhoneVerified = true
	}
	if !usr.LastLogin.IsZero() {
		origUsr.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		origUsr.UpdatedAt = usr.UpdatedAt
	} else {
		origUsr.UpdatedAt = time.Now().UTC()
	}

	repo.table[usr.ID] = origUsr
	return *origUsr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.table[id]; ok {
			delete(repo.table, id)
			cnt++
		}
	}
	return cnt, nil
}
