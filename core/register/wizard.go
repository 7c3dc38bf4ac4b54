package register

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/otp"
	"github.com/WebgateSystems/akademy/core/user"
)

// Step is a wizard step name. Steps form a strict linear order; entering a
// step requires the completion marker of the one before it.
type Step string

const (
	StepProfile       Step = "profile"
	StepVerifyPhone   Step = "verify_phone"
	StepSetPIN        Step = "set_pin"
	StepSetPINConfirm Step = "set_pin_confirm"
	StepConfirmEmail  Step = "confirm_email" // terminal
)

var errPINMismatch = errors.New("PINs do not match")

// FlowState is the transient, session-scoped record of a wizard's progress.
// It is an explicit value passed into and returned from every step handler;
// the raw PIN never enters it, only the bcrypt digest.
type FlowState struct {
	Profile       *Profile `json:"profile,omitempty"`
	PhoneVerified bool     `json:"phone_verified"`
	PINHash       []byte   `json:"pin_hash,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
}

func (fs *FlowState) Empty() bool {
	return fs.Profile == nil && !fs.PhoneVerified && fs.PINHash == nil && fs.UserID == ""
}

// Allowed reports whether the flow may enter step given its completion
// markers. The terminal step stays accessible on an empty flow so a revisit
// after completion renders a neutral page instead of erroring.
func (fs *FlowState) Allowed(step Step) bool {
	switch step {
	case StepProfile:
		return true
	case StepVerifyPhone:
		return fs.Profile != nil
	case StepSetPIN:
		return fs.Profile != nil && fs.PhoneVerified
	case StepSetPINConfirm:
		return fs.Profile != nil && fs.PhoneVerified && len(fs.PINHash) > 0
	case StepConfirmEmail:
		return fs.UserID != "" || fs.Empty()
	}
	return false
}

type (
	// Store persists flow state keyed by a session identifier. A missing key
	// yields a zero FlowState, not an error.
	Store interface {
		Get(ctx context.Context, sessionID string) (FlowState, error)
		Save(ctx context.Context, sessionID string, fs FlowState) error
		Clear(ctx context.Context, sessionID string) error
	}

	// RedirectError is a structured step failure carrying the step the client
	// should be sent to instead of re-rendering the current one.
	RedirectError struct {
		Step Step
		Err  error
	}

	// Wizard drives the multi-step student signup: profile, phone
	// verification, PIN set and confirm, then account creation and email
	// confirmation. No locking is done per flow: concurrent submissions from
	// one session are last-write-wins.
	Wizard struct {
		store    Store
		otpSvc   otp.ServiceInterface
		usrSvc   user.ServiceInterface
		validate *validator.Validate
		logger   core.Logger
	}
)

func (e *RedirectError) Error() string { return e.Err.Error() }
func (e *RedirectError) Cause() error  { return e.Err }

func NewWizard(
	store Store,
	otpSvc otp.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
	logger core.Logger,
) *Wizard {
	return &Wizard{
		store:    store,
		otpSvc:   otpSvc,
		usrSvc:   usrSvc,
		validate: validate,
		logger:   logger,
	}
}

func (w *Wizard) State(ctx context.Context, sessionID string) (FlowState, error) {
	fs, err := w.store.Get(ctx, sessionID)
	if err != nil {
		return FlowState{}, errors.Wrap(err, "getting flow state")
	}
	return fs, nil
}

// SubmitProfile validates the profile step and records the normalized profile.
// Downstream markers are reset: changing the profile invalidates a previously
// verified phone and any provisional PIN.
func (w *Wizard) SubmitProfile(ctx context.Context, sessionID string, form ProfileForm) (FlowState, error) {
	profile, err := form.Validate(w.validate, w.usrSvc)
	if err != nil {
		return FlowState{}, err
	}

	fs := FlowState{Profile: &profile}
	if err := w.store.Save(ctx, sessionID, fs); err != nil {
		return FlowState{}, errors.Wrap(err, "saving flow state")
	}
	return fs, nil
}

// StartPhoneVerification issues a one-time code to the profile's phone.
// Called on entry to the verify_phone step and on resend; a fresh code
// overwrites the prior one.
func (w *Wizard) StartPhoneVerification(ctx context.Context, sessionID string) error {
	fs, err := w.State(ctx, sessionID)
	if err != nil {
		return err
	}
	if fs.Profile == nil {
		return &RedirectError{Step: StepProfile, Err: errors.New("profile step not completed")}
	}
	if _, err := w.otpSvc.Issue(ctx, sessionID, fs.Profile.Phone); err != nil {
		return errors.Wrap(err, "issuing verification code")
	}
	return nil
}

// SubmitCode verifies the submitted one-time code. On OutcomeOK the verified
// marker is recorded; on any other outcome the flow state is unchanged.
func (w *Wizard) SubmitCode(ctx context.Context, sessionID string, form CodeForm) (otp.Outcome, error) {
	if err := form.Validate(w.validate); err != nil {
		return otp.OutcomeInvalid, err
	}

	outcome, err := w.otpSvc.Verify(ctx, sessionID, form.Code)
	if err != nil {
		return outcome, errors.Wrap(err, "verifying code")
	}
	if outcome != otp.OutcomeOK {
		return outcome, nil
	}

	fs, err := w.State(ctx, sessionID)
	if err != nil {
		return outcome, err
	}
	fs.PhoneVerified = true
	if err := w.store.Save(ctx, sessionID, fs); err != nil {
		return outcome, errors.Wrap(err, "saving flow state")
	}
	return outcome, nil
}

// SubmitPIN records the provisional PIN digest.
func (w *Wizard) SubmitPIN(ctx context.Context, sessionID string, form PINForm) error {
	if err := form.Validate(w.validate); err != nil {
		return err
	}

	fs, err := w.State(ctx, sessionID)
	if err != nil {
		return err
	}
	if !fs.Allowed(StepSetPIN) {
		return &RedirectError{Step: StepProfile, Err: errors.New("prior steps not completed")}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.PIN), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing PIN")
	}
	fs.PINHash = hash
	if err := w.store.Save(ctx, sessionID, fs); err != nil {
		return errors.Wrap(err, "saving flow state")
	}
	return nil
}

// ConfirmPIN requires the re-entered PIN to match the provisional one; on
// match this is the point of account creation. A creation failure that is
// user-correctable (e.g. the email was taken mid-flow) redirects to profile.
func (w *Wizard) ConfirmPIN(ctx context.Context, sessionID string, form PINForm) (user.User, error) {
	if err := form.Validate(w.validate); err != nil {
		return user.User{}, err
	}

	fs, err := w.State(ctx, sessionID)
	if err != nil {
		return user.User{}, err
	}
	if !fs.Allowed(StepSetPINConfirm) {
		return user.User{}, &RedirectError{Step: StepProfile, Err: errors.New("prior steps not completed")}
	}

	if bcrypt.CompareHashAndPassword(fs.PINHash, []byte(form.PIN)) != nil {
		return user.User{}, core.NewValidationError(
			errPINMismatch,
			core.FieldError{Field: "pin", Error: errPINMismatch.Error()},
		)
	}

	usr, err := w.usrSvc.CreateStudent(ctx, user.NewStudent{
		FirstName:      fs.Profile.FirstName,
		LastName:       fs.Profile.LastName,
		Email:          fs.Profile.Email,
		Phone:          fs.Profile.Phone,
		Locale:         fs.Profile.Locale,
		Birthdate:      fs.Profile.Birthdate,
		MarketingOptIn: fs.Profile.MarketingOptIn,
		PINHash:        fs.PINHash,
	})
	if err != nil {
		if _, ok := errors.Cause(err).(*core.ValidationError); ok {
			return user.User{}, &RedirectError{Step: StepProfile, Err: err}
		}
		return user.User{}, errors.Wrap(err, "creating student account")
	}

	fs.UserID = usr.ID
	if err := w.store.Save(ctx, sessionID, fs); err != nil {
		return user.User{}, errors.Wrap(err, "saving flow state")
	}

	w.usrSvc.SendConfirmationMail(usr)
	return usr, nil
}

// Complete looks up the created account and clears the flow state. The bool
// result is false when no account is recorded (a revisit after completion):
// the caller renders a neutral page. An in-progress flow with no account yet
// is an out-of-order entry and redirects like any other gated step.
func (w *Wizard) Complete(ctx context.Context, sessionID string) (user.User, bool, error) {
	fs, err := w.State(ctx, sessionID)
	if err != nil {
		return user.User{}, false, err
	}
	if fs.UserID == "" {
		if !fs.Allowed(StepConfirmEmail) {
			return user.User{}, false, &RedirectError{Step: StepProfile, Err: errors.New("prior steps not completed")}
		}
		return user.User{}, false, nil
	}

	usr, err := w.usrSvc.GetByID(ctx, fs.UserID)
	if err != nil {
		return user.User{}, false, errors.Wrap(err, "finding created user")
	}

	if err := w.store.Clear(ctx, sessionID); err != nil {
		return user.User{}, false, errors.Wrap(err, "clearing flow state")
	}
	return usr, true, nil
}

// Abandon discards an in-progress flow.
func (w *Wizard) Abandon(ctx context.Context, sessionID string) error {
	return errors.Wrap(w.store.Clear(ctx, sessionID), "clearing flow state")
}
