package register_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/auth"
	"github.com/WebgateSystems/akademy/core/otp"
	"github.com/WebgateSystems/akademy/core/register"
	"github.com/WebgateSystems/akademy/core/user"
	emailsvc "github.com/WebgateSystems/akademy/services/email"
)

func TestWizard_happyPath(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sess := "sess1"

	// profile
	fs, err := e.wiz.SubmitProfile(ctx, sess, validProfileForm())
	if err != nil {
		t.Fatalf("SubmitProfile() error = %v", err)
	}
	if fs.Profile == nil || fs.Profile.Email != "ola.nowak@test.pl" {
		t.Fatalf("SubmitProfile() profile = %+v", fs.Profile)
	}
	wantBirth := time.Date(2010, 4, 2, 0, 0, 0, 0, time.UTC)
	if !fs.Profile.Birthdate.Equal(wantBirth) {
		t.Errorf("Birthdate = %v, want %v", fs.Profile.Birthdate, wantBirth)
	}

	// phone verification
	if err := e.wiz.StartPhoneVerification(ctx, sess); err != nil {
		t.Fatalf("StartPhoneVerification() error = %v", err)
	}
	code := e.awaitCode(t, 0)

	wrong := "0000"
	if wrong == code {
		wrong = "0001"
	}
	outcome, err := e.wiz.SubmitCode(ctx, sess, register.CodeForm{Code: wrong})
	if err != nil {
		t.Fatalf("SubmitCode() error = %v", err)
	}
	if outcome != otp.OutcomeInvalid {
		t.Errorf("outcome = %v, want %v", outcome, otp.OutcomeInvalid)
	}

	outcome, err = e.wiz.SubmitCode(ctx, sess, register.CodeForm{Code: code})
	if err != nil {
		t.Fatalf("SubmitCode() error = %v", err)
	}
	if outcome != otp.OutcomeOK {
		t.Fatalf("outcome = %v, want %v", outcome, otp.OutcomeOK)
	}
	fs, _ = e.wiz.State(ctx, sess)
	if !fs.PhoneVerified {
		t.Fatal("PhoneVerified = false after OK outcome")
	}

	// PIN
	if err := e.wiz.SubmitPIN(ctx, sess, register.PINForm{PIN: "2468"}); err != nil {
		t.Fatalf("SubmitPIN() error = %v", err)
	}

	// mismatching confirmation does not create an account
	_, err = e.wiz.ConfirmPIN(ctx, sess, register.PINForm{PIN: "1111"})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("ConfirmPIN() error = %v, want ValidationError", err)
	}

	mailsBefore := len(emailsvc.SentMessages)
	usr, err := e.wiz.ConfirmPIN(ctx, sess, register.PINForm{PIN: "2468"})
	if err != nil {
		t.Fatalf("ConfirmPIN() error = %v", err)
	}
	if usr.ID == "" {
		t.Fatal("ConfirmPIN() returned user without ID")
	}
	if !usr.IsStudent() {
		t.Errorf("Roles = %v, want student", usr.Roles)
	}
	if !usr.PhoneVerified {
		t.Error("PhoneVerified = false on created account")
	}
	if usr.EmailConfirmed {
		t.Error("EmailConfirmed = true before confirmation")
	}
	if bcrypt.CompareHashAndPassword(usr.PasswordHash, []byte("2468")) != nil {
		t.Error("stored credential does not match the PIN")
	}
	if len(emailsvc.SentMessages) != mailsBefore+1 {
		t.Errorf("sent mails = %d, want %d", len(emailsvc.SentMessages), mailsBefore+1)
	}

	// terminal step returns the account once, then goes neutral
	done, ok, err := e.wiz.Complete(ctx, sess)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !ok || done.ID != usr.ID {
		t.Fatalf("Complete() = (%v, %v), want (%v, true)", done.ID, ok, usr.ID)
	}
	if _, ok, err = e.wiz.Complete(ctx, sess); err != nil || ok {
		t.Errorf("Complete() after clear = (ok=%v, err=%v), want (false, nil)", ok, err)
	}

	// the new student can log in with phone + PIN
	authUsr, _, err := e.issuer.Authenticate(ctx,
		auth.Credentials{Phone: "+48500100200", Password: "2468"}, auth.ChannelWebStudent)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if authUsr.ID != usr.ID {
		t.Errorf("Authenticate() ID = %v, want %v", authUsr.ID, usr.ID)
	}
}

func TestWizard_stepGating(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// PIN steps before the prior markers exist
	err := e.wiz.SubmitPIN(ctx, "fresh", register.PINForm{PIN: "2468"})
	var rErr *register.RedirectError
	if !errors.As(err, &rErr) || rErr.Step != register.StepProfile {
		t.Fatalf("SubmitPIN() error = %v, want redirect to profile", err)
	}
	_, err = e.wiz.ConfirmPIN(ctx, "fresh", register.PINForm{PIN: "2468"})
	if !errors.As(err, &rErr) || rErr.Step != register.StepProfile {
		t.Fatalf("ConfirmPIN() error = %v, want redirect to profile", err)
	}

	// phone verification without a profile
	err = e.wiz.StartPhoneVerification(ctx, "fresh")
	if !errors.As(err, &rErr) || rErr.Step != register.StepProfile {
		t.Fatalf("StartPhoneVerification() error = %v, want redirect to profile", err)
	}

	// code submission without an issued code reports no_request, not an error
	outcome, err := e.wiz.SubmitCode(ctx, "fresh2", register.CodeForm{Code: "1234"})
	if err != nil {
		t.Fatalf("SubmitCode() error = %v", err)
	}
	if outcome != otp.OutcomeNoRequest {
		t.Errorf("outcome = %v, want %v", outcome, otp.OutcomeNoRequest)
	}

	// the terminal step mid-flow, before any account exists
	if _, err := e.wiz.SubmitProfile(ctx, "midflow", validProfileForm()); err != nil {
		t.Fatalf("SubmitProfile() error = %v", err)
	}
	_, _, err = e.wiz.Complete(ctx, "midflow")
	if !errors.As(err, &rErr) || rErr.Step != register.StepProfile {
		t.Fatalf("Complete() error = %v, want redirect to profile", err)
	}

	// a fresh session renders the neutral page instead
	if _, ok, err := e.wiz.Complete(ctx, "fresh3"); err != nil || ok {
		t.Errorf("Complete() = %v, %v; want no user, nil error", ok, err)
	}
}

func TestWizard_profileResubmitResetsFlow(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	sess := "sess1"

	if _, err := e.wiz.SubmitProfile(ctx, sess, validProfileForm()); err != nil {
		t.Fatalf("SubmitProfile() error = %v", err)
	}
	if err := e.wiz.StartPhoneVerification(ctx, sess); err != nil {
		t.Fatalf("StartPhoneVerification() error = %v", err)
	}
	code := e.awaitCode(t, 0)
	if _, err := e.wiz.SubmitCode(ctx, sess, register.CodeForm{Code: code}); err != nil {
		t.Fatalf("SubmitCode() error = %v", err)
	}
	if err := e.wiz.SubmitPIN(ctx, sess, register.PINForm{PIN: "2468"}); err != nil {
		t.Fatalf("SubmitPIN() error = %v", err)
	}

	// changing the profile invalidates the verified phone and the PIN
	form := validProfileForm()
	form.Phone = "+48500100299"
	fs, err := e.wiz.SubmitProfile(ctx, sess, form)
	if err != nil {
		t.Fatalf("SubmitProfile() error = %v", err)
	}
	if fs.PhoneVerified || fs.PINHash != nil {
		t.Errorf("flow state not reset: %+v", fs)
	}
	if fs.Allowed(register.StepSetPIN) {
		t.Error("set_pin still allowed after profile change")
	}
}

func TestWizard_profileValidation(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// duplicate email
	existing := user.User{Email: "ola.nowak@test.pl", CreatedAt: time.Now().UTC()}
	existing.SetActive(true)
	if _, err := e.usrRepo.CreateUser(ctx, existing); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*register.ProfileForm)
	}{
		{name: "taken email", mutate: func(f *register.ProfileForm) {}},
		{name: "missing first name", mutate: func(f *register.ProfileForm) { f.FirstName = "" }},
		{name: "bad email", mutate: func(f *register.ProfileForm) { f.Email = "nope"; f.Phone = "+48500100201" }},
		{name: "bad phone", mutate: func(f *register.ProfileForm) { f.Email = "a@b.pl"; f.Phone = "abc" }},
		{name: "bad birthdate format", mutate: func(f *register.ProfileForm) {
			f.Email = "a@b.pl"
			f.Phone = "+48500100201"
			f.Birthdate = "2010-04-02"
		}},
		{name: "impossible date", mutate: func(f *register.ProfileForm) {
			f.Email = "a@b.pl"
			f.Phone = "+48500100201"
			f.Birthdate = "31.02.2010"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validProfileForm()
			tt.mutate(&form)
			if _, err := e.wiz.SubmitProfile(ctx, "sess1", form); err == nil {
				t.Error("SubmitProfile() error = nil, want validation failure")
			}
		})
	}
}

func TestWizard_Abandon(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	if _, err := e.wiz.SubmitProfile(ctx, "sess1", validProfileForm()); err != nil {
		t.Fatalf("SubmitProfile() error = %v", err)
	}
	if err := e.wiz.Abandon(ctx, "sess1"); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	fs, err := e.wiz.State(ctx, "sess1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if !fs.Empty() {
		t.Errorf("flow state not cleared: %+v", fs)
	}
}
