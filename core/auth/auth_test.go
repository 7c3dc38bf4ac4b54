package auth

import (
	"context"
	"testing"
	"time"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
	emailsvc "github.com/WebgateSystems/akademy/services/email"
	inmemdb "github.com/WebgateSystems/akademy/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) (*Issuer, user.Repository, *core.Config) {
	t.Helper()
	conf := &core.Config{
		AppName:                   "Akademy",
		SecretKey:                 "test-secret",
		DefaultLocale:             "pl",
		SupportedLocales:          []string{"pl", "en", "uk"},
		PasswordResetTimeoutDelta: time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
	repo := inmemdb.NewUserRepository()
	svc := user.NewServiceMock(repo, emailsvc.NewConsoleServiceMock(conf), conf, nopLogger{})
	iss := NewIssuer(DefaultStrategies(svc), svc, conf, nil)
	return iss, repo, conf
}

func createUser(t *testing.T, repo user.Repository, email, phone, pwd string, roles []string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		FirstName: "Jane",
		LastName:  "Kowalska",
		Email:     email,
		Phone:     phone,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return usr
}

func TestResolveUser(t *testing.T) {
	iss, repo, _ := setup(t)
	ctx := context.Background()

	byEmail := createUser(t, repo, "awe@test.pl", "", "S3cur3!pass#1", user.TeacherRoles)
	byPhone := createUser(t, repo, "king@test.pl", "+48500100200", "1234", user.StudentRoles)

	tests := []struct {
		name    string
		creds   Credentials
		wantID  string
		wantErr error
	}{
		{name: "email resolves", creds: Credentials{Email: "awe@test.pl"}, wantID: byEmail.ID},
		{name: "phone resolves", creds: Credentials{Phone: "+48500100200"}, wantID: byPhone.ID},
		{
			// both set: email strategy is tried first
			name:   "email wins over phone",
			creds:  Credentials{Email: "awe@test.pl", Phone: "+48500100200"},
			wantID: byEmail.ID,
		},
		{name: "unknown email", creds: Credentials{Email: "nope@test.pl"}, wantErr: user.ErrNotFound},
		{name: "no fields", creds: Credentials{Password: "lol"}, wantErr: ErrNoStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usr, err := ResolveUser(ctx, iss.strategies, tt.creds)
			if err != tt.wantErr {
				t.Fatalf("ResolveUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && usr.ID != tt.wantID {
				t.Errorf("ResolveUser() ID = %v, want %v", usr.ID, tt.wantID)
			}
		})
	}
}

func TestIssuer_Authenticate(t *testing.T) {
	iss, repo, conf := setup(t)
	ctx := context.Background()

	usr := createUser(t, repo, "awe@test.pl", "", "S3cur3!pass#1", user.TeacherRoles)
	student := createUser(t, repo, "king@test.pl", "+48500100200", "1234", user.StudentRoles)

	tests := []struct {
		name    string
		creds   Credentials
		wantID  string
		wantErr error
	}{
		{
			name:   "email and password",
			creds:  Credentials{Email: "awe@test.pl", Password: "S3cur3!pass#1"},
			wantID: usr.ID,
		},
		{
			name:   "phone and PIN",
			creds:  Credentials{Phone: "+48500100200", Password: "1234"},
			wantID: student.ID,
		},
		{name: "bad password", creds: Credentials{Email: "awe@test.pl", Password: "nope"}, wantErr: ErrBadCredential},
		{name: "bad PIN", creds: Credentials{Phone: "+48500100200", Password: "0000"}, wantErr: ErrBadCredential},
		{name: "unknown account", creds: Credentials{Email: "nope@test.pl", Password: "lol"}, wantErr: ErrAccountNotFound},
		{name: "missing fields", creds: Credentials{Password: "lol"}, wantErr: ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authUsr, token, err := iss.Authenticate(ctx, tt.creds, ChannelAPI)
			if err != tt.wantErr {
				t.Fatalf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if authUsr.ID != tt.wantID {
				t.Errorf("Authenticate() ID = %v, want %v", authUsr.ID, tt.wantID)
			}
			if authUsr.LastLogin.IsZero() {
				t.Error("Authenticate() did not set LastLogin")
			}

			claims, err := DecodeToken(token, conf.SecretKey)
			if err != nil {
				t.Fatalf("DecodeToken() error = %v", err)
			}
			if claims == nil || claims.Subject != tt.wantID {
				t.Errorf("DecodeToken() claims = %+v, want Subject %v", claims, tt.wantID)
			}
		})
	}
}

func TestClaims(t *testing.T) {
	_, repo, conf := setup(t)

	usr := createUser(t, repo, "king@test.pl", "+48500100200", "1234", user.StudentRoles)

	claims := GetUserClaims(usr, conf)
	if !claims.IsStudent || claims.IsTeacher || claims.IsAdmin {
		t.Errorf("portal flags = %v/%v/%v; want student only", claims.IsStudent, claims.IsTeacher, claims.IsAdmin)
	}
	if claims.Email != usr.Email {
		t.Errorf("claims.Email = %v, want %v", claims.Email, usr.Email)
	}
	if claims.OrigIssuedAt != claims.IssuedAt {
		t.Errorf("OrigIssuedAt = %v, want %v", claims.OrigIssuedAt, claims.IssuedAt)
	}
}

func TestDecodeToken(t *testing.T) {
	_, repo, conf := setup(t)

	usr := createUser(t, repo, "awe@test.pl", "", "S3cur3!pass#1", user.TeacherRoles)

	t.Run("expired token is not an error", func(t *testing.T) {
		claims := GetUserClaims(usr, conf)
		claims.ExpiresAt = time.Now().Add(-time.Hour).Unix()
		token, err := GenerateToken(claims, conf.SecretKey)
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		decoded, err := DecodeToken(token, conf.SecretKey)
		if err != nil {
			t.Fatalf("DecodeToken() error = %v; want nil", err)
		}
		if decoded != nil {
			t.Errorf("DecodeToken() claims = %+v; want nil", decoded)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		token, err := GenerateToken(GetUserClaims(usr, conf), conf.SecretKey)
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if _, err := DecodeToken(token, "other-secret"); err == nil {
			t.Error("DecodeToken() error = nil; want signature error")
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if _, err := DecodeToken("not.a.token", conf.SecretKey); err == nil {
			t.Error("DecodeToken() error = nil; want parse error")
		}
	})
}
