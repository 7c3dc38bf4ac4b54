package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
)

// ErrNoStrategy means no registered strategy could handle the submitted
// credentials; distinct from user.ErrNotFound so callers can surface a
// "missing login fields" error instead of "no such account".
var ErrNoStrategy = errors.New("no applicable authentication strategy")

// Credentials are the raw login fields as submitted. Password carries the
// 4-digit PIN for phone logins: PIN and password share one hashed-credential
// field on the account.
type Credentials struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Strategy decides whether it can handle a set of credentials and resolves
// them to a candidate account.
type Strategy interface {
	Applicable(creds Credentials) bool
	Resolve(ctx context.Context, creds Credentials) (user.User, error)
}

type EmailStrategy struct {
	svc user.ServiceInterface
}

var _ Strategy = (*EmailStrategy)(nil)

func NewEmailStrategy(svc user.ServiceInterface) *EmailStrategy {
	return &EmailStrategy{svc: svc}
}

func (s *EmailStrategy) Applicable(creds Credentials) bool {
	return core.CleanString(creds.Email) != ""
}

func (s *EmailStrategy) Resolve(ctx context.Context, creds Credentials) (user.User, error) {
	return s.svc.GetByEmail(ctx, creds.Email)
}

type PhoneStrategy struct {
	svc user.ServiceInterface
}

var _ Strategy = (*PhoneStrategy)(nil)

func NewPhoneStrategy(svc user.ServiceInterface) *PhoneStrategy {
	return &PhoneStrategy{svc: svc}
}

func (s *PhoneStrategy) Applicable(creds Credentials) bool {
	return core.CleanString(creds.Phone) != ""
}

func (s *PhoneStrategy) Resolve(ctx context.Context, creds Credentials) (user.User, error) {
	return s.svc.GetByPhone(ctx, creds.Phone)
}

// DefaultStrategies returns the strategy priority list: email is checked
// before phone, first match wins.
func DefaultStrategies(svc user.ServiceInterface) []Strategy {
	return []Strategy{
		NewEmailStrategy(svc),
		NewPhoneStrategy(svc),
	}
}

// ResolveUser walks strategies in order and resolves the candidate account
// with the first applicable one. ErrNoStrategy when none applies.
func ResolveUser(ctx context.Context, strategies []Strategy, creds Credentials) (user.User, error) {
	for _, s := range strategies {
		if s.Applicable(creds) {
			return s.Resolve(ctx, creds)
		}
	}
	return user.User{}, ErrNoStrategy
}
