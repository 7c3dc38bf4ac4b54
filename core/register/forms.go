package register

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
)

const birthdateLayout = "02.01.2006" // DD.MM.YYYY

// Profile is the normalized output of the profile step, kept in flow state.
type Profile struct {
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Birthdate      time.Time `json:"birthdate"`
	MarketingOptIn bool      `json:"marketing_opt_in"`
	Locale         string    `json:"locale"`
}

// ProfileForm is the raw profile step submission.
type ProfileForm struct {
	FirstName      string `json:"first_name" form:"first_name" validate:"required"`
	LastName       string `json:"last_name" form:"last_name" validate:"required"`
	Email          string `json:"email" form:"email" validate:"required,email"`
	Phone          string `json:"phone" form:"phone" validate:"required,phone"`
	Birthdate      string `json:"birthdate" form:"birthdate" validate:"required,birthdate"`
	MarketingOptIn bool   `json:"marketing_opt_in" form:"marketing_opt_in"`
	Locale         string `json:"locale" form:"locale" validate:"omitempty,alpha,len=2"`
}

// Validate cleans and validates the submission, including email/phone
// uniqueness, and returns the normalized profile.
func (f *ProfileForm) Validate(validate *validator.Validate, svc user.ServiceInterface) (Profile, error) {
	f.FirstName = core.CleanString(f.FirstName)
	f.LastName = core.CleanString(f.LastName)
	f.Email = core.CleanString(f.Email, true /* lower */)
	f.Phone = core.CleanString(f.Phone)
	f.Birthdate = core.CleanString(f.Birthdate)
	f.Locale = core.CleanString(f.Locale, true /* lower */)

	if err := validate.Struct(f); err != nil {
		return Profile{}, err
	}

	birthdate, err := time.Parse(birthdateLayout, f.Birthdate)
	if err != nil {
		return Profile{}, core.NewValidationError(
			errors.New("invalid birthdate"),
			core.FieldError{Field: "birthdate", Error: "invalid date; expected format DD.MM.YYYY"},
		)
	}

	if err := svc.CheckUniqueness(f.Email, f.Phone); err != nil {
		return Profile{}, err
	}

	return Profile{
		FirstName:      f.FirstName,
		LastName:       f.LastName,
		Email:          f.Email,
		Phone:          f.Phone,
		Birthdate:      birthdate,
		MarketingOptIn: f.MarketingOptIn,
		Locale:         f.Locale,
	}, nil
}

type CodeForm struct {
	Code string `json:"code" form:"code" validate:"required,numeric"`
}

func (f *CodeForm) Validate(validate *validator.Validate) error {
	f.Code = core.CleanString(f.Code)
	return validate.Struct(f)
}

type PINForm struct {
	PIN string `json:"pin" form:"pin" validate:"required,pin"`
}

func (f *PINForm) Validate(validate *validator.Validate) error {
	f.PIN = core.CleanString(f.PIN)
	return validate.Struct(f)
}
