package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/auth"
	"github.com/WebgateSystems/akademy/core/register"
	"github.com/WebgateSystems/akademy/core/school"
	"github.com/WebgateSystems/akademy/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc    user.ServiceInterface
		Issuer     *auth.Issuer
		Wizard     *register.Wizard
		Finalizer  *register.Finalizer
		SchoolRepo school.Repository
		Redis      *redis.Client
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	jwt := newJWTMiddleware(conf)
	rateLimit := loginRateLimitMiddleware(s.opts.Redis, conf.Server.LoginRateLimitPerMin)

	v1 := s.app.Group("/v1")
	registerUserAPI(v1, jwt, rateLimit, s.opts.UserSvc, s.opts.Issuer, s.opts.Finalizer,
		s.opts.Validate, s.opts.Translator, conf)
	registerSchoolAPI(v1, s.opts.SchoolRepo)

	registerWizardWeb(s.app, rateLimit, s.opts.Wizard, s.opts.Issuer, s.opts.Validate, conf)
}

// Start runs the server until it errors out or an interrupt/shutdown signal
// arrives, then drains in-flight requests.
func (s *server) Start() {
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.app.Start(s.opts.Address)
	}()

	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		s.opts.Logger.Fatal("server error", err)
	case sig := <-s.shutdown:
		s.opts.Logger.Info("shutting down", map[string]interface{}{"signal": sig.String()})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := s.Stop(ctx); err != nil {
			s.opts.Logger.Error("graceful shutdown failed", err)
			if err = s.app.Close(); err != nil {
				s.opts.Logger.Fatal("could not stop server", err)
			}
		}
	}
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Akademy API!")
}
