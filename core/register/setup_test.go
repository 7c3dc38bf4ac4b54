package register_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/auth"
	"github.com/WebgateSystems/akademy/core/invite"
	"github.com/WebgateSystems/akademy/core/otp"
	"github.com/WebgateSystems/akademy/core/register"
	"github.com/WebgateSystems/akademy/core/school"
	"github.com/WebgateSystems/akademy/core/user"
	emailsvc "github.com/WebgateSystems/akademy/services/email"
	smssvc "github.com/WebgateSystems/akademy/services/sms"
	inmemdb "github.com/WebgateSystems/akademy/storage/database/inmem"
	"github.com/WebgateSystems/akademy/storage/flowstore"
	"github.com/WebgateSystems/akademy/storage/otpstore"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type smsRecorder interface {
	core.SMSService
	Sent() []smssvc.SentSMS
}

type schoolStore interface {
	school.Repository
	school.RoleAssignmentRepository
	school.EnrollmentRepository
}

type env struct {
	conf     *core.Config
	validate *validator.Validate
	usrSvc   user.ServiceInterface
	usrRepo  user.Repository
	invRepo  invite.Repository
	schRepo  schoolStore
	smsSvc   smsRecorder
	wiz      *register.Wizard
	fin      *register.Finalizer
	issuer   *auth.Issuer
}

func setup(t *testing.T) *env {
	t.Helper()

	wd, err := filepath.Abs(filepath.Join("..", ".."))
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	conf := &core.Config{
		TestMode:                  true,
		AppName:                   "Akademy",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromName:           "Akademy",
		DefaultFromAddr:           "noreply@localhost",
		WorkDir:                   wd,
		DefaultLocale:             "pl",
		SupportedLocales:          []string{"pl", "en", "uk"},
		PasswordResetTimeoutDelta: time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		OTP: core.OTPConfig{Length: 4, TTL: 5 * time.Minute, MaxAttempts: 5},
	}

	enLoc := en.New()
	translator, _ := ut.New(enLoc, enLoc).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	usrRepo := inmemdb.NewUserRepository()
	invRepo := inmemdb.NewInviteRepository()
	schRepo := inmemdb.NewSchoolRepository()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf, nopLogger{})
	smsSvc := smssvc.NewConsoleServiceMock()
	otpSvc := otp.NewService(otpstore.NewInMemStore(), smsSvc, conf, nopLogger{})

	return &env{
		conf:     conf,
		validate: validate,
		usrSvc:   usrSvc,
		usrRepo:  usrRepo,
		invRepo:  invRepo,
		schRepo:  schRepo,
		smsSvc:   smsSvc,
		wiz:      register.NewWizard(flowstore.NewInMemStore(), otpSvc, usrSvc, validate, nopLogger{}),
		fin: register.NewFinalizer(nil, invite.NewGate(invRepo), usrSvc, schRepo, schRepo,
			validate, nopLogger{}),
		issuer: auth.NewIssuer(auth.DefaultStrategies(usrSvc), usrSvc, conf, nil),
	}
}

// awaitCode waits for the fire-and-forget SMS dispatch and extracts the code.
func (e *env) awaitCode(t *testing.T, sentBefore int) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if msgs := e.smsSvc.Sent(); len(msgs) > sentBefore {
			body := msgs[len(msgs)-1].Body
			prefix := e.conf.AppName + " verification code: "
			if !strings.HasPrefix(body, prefix) {
				t.Fatalf("unexpected SMS body: %q", body)
			}
			return strings.TrimPrefix(body, prefix)
		}
		if time.Now().After(deadline) {
			t.Fatal("no SMS sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func validProfileForm() register.ProfileForm {
	return register.ProfileForm{
		FirstName:      "Ola",
		LastName:       "Nowak",
		Email:          "ola.nowak@test.pl",
		Phone:          "+48500100200",
		Birthdate:      "02.04.2010",
		MarketingOptIn: true,
		Locale:         "pl",
	}
}
