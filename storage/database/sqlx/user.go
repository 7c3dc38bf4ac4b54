package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
)

const userColumns = `id, first_name, last_name, email, phone, locale, birthdate, marketing_opt_in, ` +
	`is_active, email_confirmed, phone_verified, roles, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func (repo userRepository) scanUser(row scannable) (user.User, error) {
	var (
		usr       user.User
		phone     null.String
		birthdate null.Time
		isActive  null.Bool
		roles     pq.StringArray
		pwdHash   null.Bytes
		lastLogin null.Time
	)
	err := row.Scan(
		&usr.ID, &usr.FirstName, &usr.LastName, &usr.Email, &phone, &usr.Locale, &birthdate,
		&usr.MarketingOptIn, &isActive, &usr.EmailConfirmed, &usr.PhoneVerified, &roles, &pwdHash,
		&usr.CreatedAt, &usr.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return user.User{}, err
	}
	usr.Phone = phone.String
	usr.Birthdate = birthdate.Time
	usr.IsActive = isActive.Ptr()
	usr.Roles = roles
	usr.PasswordHash = pwdHash.Bytes
	usr.LastLogin = lastLogin.Time
	return usr, nil
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUniqueness(ctx context.Context, email, phone string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	excludedIDs := make([]string, 0, len(excludedUsers))
	for _, u := range excludedUsers {
		excludedIDs = append(excludedIDs, u.ID)
	}

	check := func(column, value string, fieldErr error) error {
		if value == "" {
			return nil
		}
		query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM "user" WHERE lower(%s) = lower(?))`, column)
		args := []interface{}{value}
		if len(excludedIDs) > 0 {
			var err error
			query, args, err = sqlx.In(
				fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM "user" WHERE lower(%s) = lower(?) AND id NOT IN (?))`, column),
				value, excludedIDs,
			)
			if err != nil {
				return errors.Wrap(err, "building uniqueness query")
			}
		}

		var exists bool
		if err := exe.QueryRowContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...).Scan(&exists); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if exists {
			return fieldErr
		}
		return nil
	}

	if err := check("email", email, user.ErrEmailExists); err != nil {
		return err
	}
	return check("phone", phone, user.ErrPhoneExists)
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	query := fmt.Sprintf(
		`INSERT INTO "user" (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		userColumns,
	)
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		usr.ID, usr.FirstName, usr.LastName, usr.Email,
		null.NewString(usr.Phone, usr.Phone != ""), usr.Locale,
		null.NewTime(usr.Birthdate, !usr.Birthdate.IsZero()), usr.MarketingOptIn,
		null.BoolFromPtr(usr.IsActive), usr.EmailConfirmed, usr.PhoneVerified,
		pq.StringArray(usr.Roles), null.BytesFrom(usr.PasswordHash),
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)

	var (
		where string
		arg   string
	)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		where, arg = "id = $1", filter.ID
	case filter.Email != "":
		where, arg = "lower(email) = lower($1)", filter.Email
	case filter.Phone != "":
		where, arg = "phone = $1", filter.Phone
	default:
		return user.User{}, user.ErrNotFound
	}

	query := fmt.Sprintf(`SELECT %s FROM "user" WHERE %s`, userColumns, where)
	usr, err := repo.scanUser(exe.QueryRowContext(ctx, query, arg))
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	var (
		conds []string
		args  []interface{}
	)

	if filter != nil {
		// users with a name, email or phone matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			conds = append(conds, "(first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR phone ILIKE ?)")
			args = append(args, val, val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, `id IN (SELECT id FROM "user", UNNEST(roles) user_role WHERE user_role ILIKE ?)`)
				args = append(args, role+"%")
			}
			conds = append(conds, "("+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			conds = append(conds, "is_active = ?")
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			conds = append(conds, "created_at <= ?")
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM "user"`, userColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if len(ordering) > 0 {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		query += " ORDER BY " + strings.Join(orderList, ", ")
	}

	rows, err := repo.getExec(exec).QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	defer func() { _ = rows.Close() }()

	var users []user.User
	for rows.Next() {
		usr, err := repo.scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning user")
		}
		users = append(users, usr)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

// UpdateUser only saves set fields; zero-valued ones keep their stored value.
func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)

	origUsr, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
	if err != nil {
		return user.User{}, err
	}
	merged := mergeUsers(origUsr, usr)

	query := `UPDATE "user" SET first_name = $2, last_name = $3, email = $4, phone = $5, locale = $6, ` +
		`birthdate = $7, marketing_opt_in = $8, is_active = $9, email_confirmed = $10, phone_verified = $11, ` +
		`roles = $12, password_hash = $13, updated_at = $14, last_login = $15 WHERE id = $1`
	_, err = exe.ExecContext(ctx, query,
		merged.ID, merged.FirstName, merged.LastName, merged.Email,
		null.NewString(merged.Phone, merged.Phone != ""), merged.Locale,
		null.NewTime(merged.Birthdate, !merged.Birthdate.IsZero()), merged.MarketingOptIn,
		null.BoolFromPtr(merged.IsActive), merged.EmailConfirmed, merged.PhoneVerified,
		pq.StringArray(merged.Roles), null.BytesFrom(merged.PasswordHash),
		merged.UpdatedAt.UTC(), null.NewTime(merged.LastLogin.UTC(), !merged.LastLogin.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return merged, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := repo.getExec(exec).ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

func mergeUsers(orig, usr user.User) user.User {
	merged := orig
	if usr.FirstName != "" {
		merged.FirstName = usr.FirstName
	}
	if usr.LastName != "" {
		merged.LastName = usr.LastName
	}
	if usr.Email != "" {
		merged.Email = usr.Email
	}
	if usr.Phone != "" {
		merged.Phone = usr.Phone
	}
	if usr.Locale != "" {
		merged.Locale = usr.Locale
	}
	if !usr.Birthdate.IsZero() {
		merged.Birthdate = usr.Birthdate
	}
	if usr.Roles != nil {
		merged.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		merged.PasswordHash = usr.PasswordHash
	}
	if usr.IsActive != nil {
		merged.IsActive = usr.IsActive
	}
	if usr.EmailConfirmed {
		merged.EmailConfirmed = true
	}
	if usr.PhoneVerified {
		merged.PhoneVerified = true
	}
	if !usr.LastLogin.IsZero() {
		merged.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		merged.UpdatedAt = usr.UpdatedAt
	} else {
		merged.UpdatedAt = time.Now().UTC()
	}
	return merged
}
