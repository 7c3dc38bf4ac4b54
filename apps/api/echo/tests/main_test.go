package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/WebgateSystems/akademy/apps/api/echo"
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

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

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

type testEnv struct {
	app     Server
	conf    *core.Config
	usrSvc  user.ServiceInterface
	usrRepo user.Repository
	invRepo invite.Repository
	schRepo schoolStore
	smsSvc  smsRecorder
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	wd, err := filepath.Abs(filepath.Join("..", "..", "..", ".."))
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
			LoginRateLimitPerMin:      5,
		},
		OTP: core.OTPConfig{Length: 4, TTL: 5 * time.Minute, MaxAttempts: 5},
	}

	enLoc := en.New()
	translator, _ := ut.New(enLoc, enLoc).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	// repos & services
	usrRepo := inmemdb.NewUserRepository()
	invRepo := inmemdb.NewInviteRepository()
	schRepo := inmemdb.NewSchoolRepository()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf, nopLogger{})
	smsSvc := smssvc.NewConsoleServiceMock()
	otpSvc := otp.NewService(otpstore.NewInMemStore(), smsSvc, conf, nopLogger{})
	issuer := auth.NewIssuer(auth.DefaultStrategies(usrSvc), usrSvc, conf, nil)
	wiz := register.NewWizard(flowstore.NewInMemStore(), otpSvc, usrSvc, validate, nopLogger{})
	fin := register.NewFinalizer(nil, invite.NewGate(invRepo), usrSvc, schRepo, schRepo,
		validate, nopLogger{})

	app := NewServer(&Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         nopLogger{},
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		Issuer:         issuer,
		Wizard:         wiz,
		Finalizer:      fin,
		SchoolRepo:     schRepo,
	})

	return &testEnv{
		app:     app,
		conf:    conf,
		usrSvc:  usrSvc,
		usrRepo: usrRepo,
		invRepo: invRepo,
		schRepo: schRepo,
		smsSvc:  smsSvc,
	}
}

func (e *testEnv) createUser(t *testing.T, email, phone, pwd string, roles []string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		FirstName: "User",
		LastName:  "Awe",
		Email:     email,
		Phone:     phone,
		Locale:    "pl",
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	usr, err := e.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (e *testEnv) createInvite(t *testing.T, token, kind string, expiresAt time.Time) invite.Invite {
	t.Helper()
	inv, err := e.invRepo.CreateInvite(context.Background(), invite.Invite{
		Token:         token,
		Kind:          kind,
		SchoolID:      "school1",
		SchoolClassID: "class1",
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createInvite() failed: %v", err)
	}
	return inv
}

func (e *testEnv) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := auth.GenerateToken(auth.GetUserClaims(usr, e.conf), e.conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
