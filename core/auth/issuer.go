package auth

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
)

// Login channels, recorded with every successful login event.
const (
	ChannelAPI        = "api"
	ChannelWeb        = "web"
	ChannelWebStudent = "web_student"
)

var (
	ErrMissingFields   = errors.New("missing login fields")
	ErrAccountNotFound = errors.New("account not found")
	ErrBadCredential   = errors.New("bad credential")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student,omitempty"` // -> STUDENT PORTAL
	IsTeacher    bool     `json:"is_teacher,omitempty"` // -> TEACHER PORTAL
	IsAdmin      bool     `json:"is_admin,omitempty"`   // -> ADMIN PORTAL
	Roles        []string `json:"roles,omitempty"`
}

type (
	// EventSink receives audit events for successful logins.
	EventSink interface {
		LoginSucceeded(usr user.User, channel string)
	}

	// Issuer verifies a resolved account's credential and issues signed,
	// time-bound access tokens.
	Issuer struct {
		strategies []Strategy
		usrSvc     user.ServiceInterface
		conf       *core.Config
		sink       EventSink
	}
)

func NewIssuer(strategies []Strategy, usrSvc user.ServiceInterface, conf *core.Config, sink EventSink) *Issuer {
	return &Issuer{
		strategies: strategies,
		usrSvc:     usrSvc,
		conf:       conf,
		sink:       sink,
	}
}

// Authenticate resolves the identity behind creds, verifies the credential
// against the stored hash and returns the account with a signed token.
func (iss *Issuer) Authenticate(ctx context.Context, creds Credentials, channel string) (user.User, string, error) {
	usr, err := ResolveUser(ctx, iss.strategies, creds)
	if err != nil {
		switch errors.Cause(err) {
		case ErrNoStrategy:
			return user.User{}, "", ErrMissingFields
		case user.ErrNotFound:
			return user.User{}, "", ErrAccountNotFound
		}
		return user.User{}, "", errors.Wrap(err, "resolving user")
	}

	if err := usr.CheckPassword(creds.Password); err != nil {
		return user.User{}, "", ErrBadCredential
	}

	usr, err = iss.usrSvc.SetLastLogin(ctx, usr)
	if err != nil {
		return user.User{}, "", errors.Wrap(err, "setting lastLogin")
	}

	token, err := iss.IssueToken(usr)
	if err != nil {
		return user.User{}, "", errors.Wrap(err, "issuing token")
	}

	if iss.sink != nil {
		iss.sink.LoginSucceeded(usr, channel)
	}
	return usr, token, nil
}

// IssueToken generates a signed JWT token string representing the user Claims.
func (iss *Issuer) IssueToken(usr user.User) (string, error) {
	return GenerateToken(GetUserClaims(usr, iss.conf), iss.conf.SecretKey)
}

func GetUserClaims(usr user.User, conf *core.Config, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	var oriat int64
	if len(origIat) > 0 {
		oriat = origIat[0]
	} else {
		oriat = nownix
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  "Akademy",
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// GenerateToken signs claims with the server secret (HS256).
func GenerateToken(claims *Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// DecodeToken parses and verifies a token string. Expired tokens yield
// (nil, nil): expiry is an expected condition the caller turns into a
// re-login prompt. Any other parse/signature failure is returned as an error.
func DecodeToken(tokenStr, secret string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors == jwt.ValidationErrorExpired {
			return nil, nil
		}
		return nil, errors.Wrap(err, "parsing token")
	}
	return claims, nil
}

// LogSink is an EventSink that writes login events to the app logger.
type LogSink struct {
	Logger core.Logger
}

var _ EventSink = (*LogSink)(nil)

func (s LogSink) LoginSucceeded(usr user.User, channel string) {
	s.Logger.Info("login", map[string]interface{}{
		"user_id": usr.ID,
		"email":   usr.Email,
		"channel": channel,
	})
}
