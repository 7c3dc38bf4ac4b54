package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrPhoneExists = errors.New("a user with this phone number already exists")
)

type (
	Repository interface {
		CheckUniqueness(ctx context.Context, email, phone string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of first name, last name, email or phone.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(email, phone string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, error)
		CreateStudent(ctx context.Context, ns NewStudent, exec ...core.DBExecutor) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByPhone(ctx context.Context, phone string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		Delete(ctx context.Context, ids ...string) error
		SetLastLogin(ctx context.Context, usr User) (User, error)
		ConfirmEmail(ctx context.Context, usr User) (User, error)
		SendConfirmationMail(usr User)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) *service {
	initTokenGen(conf)
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		logger:  logger,
	}
}

func (svc *service) CheckUniqueness(email, phone string, excludedUsers ...User) error {
	if err := svc.repo.CheckUniqueness(context.Background(), email, phone, excludedUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrEmailExists:
			field = "email"
		case ErrPhoneExists:
			field = "phone"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser, exec ...core.DBExecutor) (User, error) {
	now := time.Now().UTC()
	usr := User{
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		Email:     nu.Email,
		Phone:     nu.Phone,
		Locale:    svc.locale(nu.Locale),
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr, exec...)
}

// CreateStudent creates an unconfirmed student account from wizard flow state.
// The PIN digest is stored as-is in the shared credential field.
func (svc *service) CreateStudent(ctx context.Context, ns NewStudent, exec ...core.DBExecutor) (User, error) {
	now := time.Now().UTC()
	usr := User{
		FirstName:      ns.FirstName,
		LastName:       ns.LastName,
		Email:          ns.Email,
		Phone:          ns.Phone,
		Locale:         svc.locale(ns.Locale),
		Birthdate:      ns.Birthdate,
		MarketingOptIn: ns.MarketingOptIn,
		PhoneVerified:  true,
		Roles:          StudentRoles,
		PasswordHash:   ns.PINHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	usr.SetActive(true)
	return svc.repo.CreateUser(ctx, usr, exec...)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByPhone(ctx context.Context, phone string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Phone: core.CleanString(phone)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:        id,
		FirstName: uu.FirstName,
		LastName:  uu.LastName,
		Email:     uu.Email,
		Phone:     uu.Phone,
		Locale:    uu.Locale,
		IsActive:  uu.IsActive,
		Roles:     uu.Roles,
		UpdatedAt: time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ConfirmEmail(ctx context.Context, usr User) (User, error) {
	usr.EmailConfirmed = true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// SendConfirmationMail dispatches the email-confirmation message.
// Fire-and-forget: the EmailService sends concurrently.
func (svc *service) SendConfirmationMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject:      "Confirm your email address",
		TemplateName: "email-confirmation",
		TemplateData: struct {
			User User
			UID  string
		}{usr, EncodeUID(usr)},
	})
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			User  User
			UID   string
			Token string
		}{usr, EncodeUID(usr), makeToken(usr)},
	})
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	uid, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err := verifyToken(usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err := usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

func (svc *service) locale(locale string) string {
	for _, l := range svc.conf.SupportedLocales {
		if locale == l {
			return locale
		}
	}
	return svc.conf.DefaultLocale
}
