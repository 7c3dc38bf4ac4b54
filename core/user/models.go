package user

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/WebgateSystems/akademy/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner:     30,
		RoleAdminPrincipal: 29,
		RoleAdmin:          21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is an account: a person with a unique identity (email, optionally
// phone) and a single hashed credential. A student's 4-digit PIN is stored in
// the same PasswordHash field as a regular password.
type User struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Locale         string    `json:"locale"`
	Birthdate      time.Time `json:"birthdate,omitempty"`
	MarketingOptIn bool      `json:"marketing_opt_in"`
	IsActive       *bool     `json:"is_active"`
	EmailConfirmed bool      `json:"email_confirmed"`
	PhoneVerified  bool      `json:"phone_verified"`
	Roles          []string  `json:"roles"`
	PasswordHash   []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
	LastLogin      time.Time `json:"last_login"` // UTC
}

// Name has a value receiver: the email templates call it on a User value.
func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

func (u *User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// NewUser contains information needed to create a new User via the
// invite-driven registration path or the admin API.
type NewUser struct {
	FirstName       string   `json:"first_name" validate:"required"`
	LastName        string   `json:"last_name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Phone           string   `json:"phone" validate:"omitempty,phone"`
	Locale          string   `json:"locale" validate:"omitempty,alpha,len=2"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirmation" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Locale = core.CleanString(nu.Locale, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email, nu.Phone)
}

// NewStudent contains information gathered by the registration wizard. The
// credential arrives pre-hashed: the wizard hashes the PIN at the set_pin step
// and only ever keeps the digest in flow state.
type NewStudent struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	Locale         string
	Birthdate      time.Time
	MarketingOptIn bool
	PINHash        []byte
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           string   `json:"phone" validate:"omitempty,phone"`
	Locale          string   `json:"locale" validate:"omitempty,alpha,len=2"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirmation" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	if first := core.CleanString(uu.FirstName); first != "" {
		uu.FirstName = first
	} else {
		uu.FirstName = origUsr.FirstName
	}
	if last := core.CleanString(uu.LastName); last != "" {
		uu.LastName = last
	} else {
		uu.LastName = origUsr.LastName
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	if phone := core.CleanString(uu.Phone); phone != "" {
		uu.Phone = phone
	} else {
		uu.Phone = origUsr.Phone
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Email, uu.Phone, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirmation,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type GetFilter struct {
	ID    string
	Email string
	Phone string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// RegisterValidators registers user-specific validation tags.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	registerValidators(validate, translator)
}
