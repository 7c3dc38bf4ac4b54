package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/auth"
	"github.com/WebgateSystems/akademy/core/otp"
	"github.com/WebgateSystems/akademy/core/register"
)

const wizardSessionCookie = "registration_session"

type wizardApi struct {
	wiz      *register.Wizard
	issuer   *auth.Issuer
	validate *validator.Validate
	conf     *core.Config
}

// registerWizardWeb mounts the student signup wizard and the web login under
// the site root, next to the /v1 API.
func registerWizardWeb(
	e *echo.Echo,
	rateLimit echo.MiddlewareFunc,
	wiz *register.Wizard,
	issuer *auth.Issuer,
	validate *validator.Validate,
	conf *core.Config,
) {
	api := wizardApi{
		wiz:      wiz,
		issuer:   issuer,
		validate: validate,
		conf:     conf,
	}

	e.POST("/sign_in", api.signIn, rateLimit)

	rg := e.Group("/register")
	rg.GET("/profile", api.getStep(register.StepProfile))
	rg.POST("/profile", api.postProfile)
	rg.GET("/verify-phone", api.getVerifyPhone)
	rg.POST("/verify-phone", api.postVerifyPhone)
	rg.POST("/verify-phone/resend", api.resendCode)
	rg.GET("/set-pin", api.getStep(register.StepSetPIN))
	rg.POST("/set-pin", api.postSetPIN)
	rg.GET("/set-pin/confirm", api.getStep(register.StepSetPINConfirm))
	rg.POST("/set-pin/confirm", api.postConfirmPIN)
	rg.GET("/confirm-email", api.confirmEmail)
	rg.DELETE("", api.abandon)
}

// signIn logs a user into the web portals. A student payload carries the
// phone + PIN pair; everyone else logs in with email + password.
func (api *wizardApi) signIn(ctx echo.Context) error {
	var data SignInRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignInRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	channel := auth.ChannelWeb
	if data.User.Role == "student" {
		channel = auth.ChannelWebStudent
	}

	usr, token, err := api.issuer.Authenticate(ctx.Request().Context(), data.Credentials(), channel)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}

	setAccessTokenCookie(ctx, token, api.conf)
	return ctx.JSON(http.StatusCreated, echo.Map{"user": usr, "access_token": token})
}

// getStep renders the current wizard position; entering a step out of order
// soft-resets the client to the profile step.
func (api *wizardApi) getStep(step register.Step) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		fs, err := api.wiz.State(ctx.Request().Context(), api.session(ctx))
		if err != nil {
			return err
		}
		if !fs.Allowed(step) {
			return ctx.Redirect(http.StatusSeeOther, stepPath(register.StepProfile))
		}
		return ctx.JSON(http.StatusOK, StepResponse{Step: string(step), Profile: fs.Profile})
	}
}

func (api *wizardApi) postProfile(ctx echo.Context) error {
	var form register.ProfileForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to ProfileForm")
	}

	if _, err := api.wiz.SubmitProfile(ctx.Request().Context(), api.session(ctx), form); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, NextResponse{OK: true, Next: stepPath(register.StepVerifyPhone)})
}

// getVerifyPhone issues a fresh code on entry to the step.
func (api *wizardApi) getVerifyPhone(ctx echo.Context) error {
	if err := api.wiz.StartPhoneVerification(ctx.Request().Context(), api.session(ctx)); err != nil {
		return api.stepError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, StepResponse{Step: string(register.StepVerifyPhone)})
}

func (api *wizardApi) postVerifyPhone(ctx echo.Context) error {
	var form register.CodeForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to CodeForm")
	}

	outcome, err := api.wiz.SubmitCode(ctx.Request().Context(), api.session(ctx), form)
	if err != nil {
		return err
	}
	if outcome != otp.OutcomeOK {
		return ctx.JSON(http.StatusUnprocessableEntity, echo.Map{"error": outcome.String()})
	}
	return ctx.JSON(http.StatusOK, NextResponse{OK: true, Next: stepPath(register.StepSetPIN)})
}

func (api *wizardApi) resendCode(ctx echo.Context) error {
	if err := api.wiz.StartPhoneVerification(ctx.Request().Context(), api.session(ctx)); err != nil {
		return api.stepError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (api *wizardApi) postSetPIN(ctx echo.Context) error {
	var form register.PINForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to PINForm")
	}

	if err := api.wiz.SubmitPIN(ctx.Request().Context(), api.session(ctx), form); err != nil {
		return api.stepError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, NextResponse{OK: true, Next: stepPath(register.StepSetPINConfirm)})
}

func (api *wizardApi) postConfirmPIN(ctx echo.Context) error {
	var form register.PINForm
	if err := ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to PINForm")
	}

	if _, err := api.wiz.ConfirmPIN(ctx.Request().Context(), api.session(ctx), form); err != nil {
		return api.stepError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, NextResponse{OK: true, Next: stepPath(register.StepConfirmEmail)})
}

// confirmEmail is the terminal step: it reports the created account, starts an
// authenticated session and clears the flow. A revisit after completion is a
// neutral page, not an error.
func (api *wizardApi) confirmEmail(ctx echo.Context) error {
	usr, ok, err := api.wiz.Complete(ctx.Request().Context(), api.session(ctx))
	if err != nil {
		return api.stepError(ctx, err)
	}
	if !ok {
		return ctx.JSON(http.StatusOK, echo.Map{"ok": true})
	}

	token, err := api.issuer.IssueToken(usr)
	if err != nil {
		return errors.Wrap(err, "issuing token")
	}
	setAccessTokenCookie(ctx, token, api.conf)
	return ctx.JSON(http.StatusOK, echo.Map{"user": usr, "access_token": token})
}

func (api *wizardApi) abandon(ctx echo.Context) error {
	if err := api.wiz.Abandon(ctx.Request().Context(), api.session(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// session returns the wizard session ID, setting the cookie on first contact.
func (api *wizardApi) session(ctx echo.Context) string {
	if cookie, err := ctx.Cookie(wizardSessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.New().String()
	ctx.SetCookie(&http.Cookie{
		Name:     wizardSessionCookie,
		Value:    id,
		Path:     "/register",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// stepError turns a step gating failure into a redirect; other errors pass
// through to the error handler.
func (api *wizardApi) stepError(ctx echo.Context, err error) error {
	var rErr *register.RedirectError
	if errors.As(err, &rErr) {
		return ctx.Redirect(http.StatusSeeOther, stepPath(rErr.Step))
	}
	return err
}

func stepPath(step register.Step) string {
	switch step {
	case register.StepProfile:
		return "/register/profile"
	case register.StepVerifyPhone:
		return "/register/verify-phone"
	case register.StepSetPIN:
		return "/register/set-pin"
	case register.StepSetPINConfirm:
		return "/register/set-pin/confirm"
	case register.StepConfirmEmail:
		return "/register/confirm-email"
	}
	return "/register/profile"
}

type (
	SignInRequest struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
		Email    string `json:"email" validate:"omitempty,email"`
		Phone    string `json:"phone" validate:"omitempty,phone"`
		Password string `json:"password" validate:"required"`
	}

	StepResponse struct {
		Step    string            `json:"step"`
		Profile *register.Profile `json:"profile,omitempty"`
	}

	NextResponse struct {
		OK   bool   `json:"ok"`
		Next string `json:"next"`
	}
)

func (sr *SignInRequest) Validate(validate *validator.Validate) error {
	sr.Email = core.CleanString(sr.Email, true /* lower */)
	sr.Phone = core.CleanString(sr.Phone)
	return validate.Struct(sr)
}

func (sr *SignInRequest) Credentials() auth.Credentials {
	return auth.Credentials{Email: sr.Email, Phone: sr.Phone, Password: sr.Password}
}
