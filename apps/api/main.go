package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/WebgateSystems/akademy/apps/api/echo"
	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/auth"
	"github.com/WebgateSystems/akademy/core/invite"
	"github.com/WebgateSystems/akademy/core/otp"
	"github.com/WebgateSystems/akademy/core/register"
	"github.com/WebgateSystems/akademy/core/user"
	emailsvc "github.com/WebgateSystems/akademy/services/email"
	logsvc "github.com/WebgateSystems/akademy/services/logger"
	smssvc "github.com/WebgateSystems/akademy/services/sms"
	"github.com/WebgateSystems/akademy/storage/database"
	sqlxrepos "github.com/WebgateSystems/akademy/storage/database/sqlx"
	"github.com/WebgateSystems/akademy/storage/flowstore"
	"github.com/WebgateSystems/akademy/storage/otpstore"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	conf := core.NewConfig(wd)
	if err := conf.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// set up logger
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close DB", err)
		}
	}()

	// set up redis
	redisOpts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("parsing redis URL: %v", err), err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// set up validators
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)

	// set up services
	var mailSvc core.EmailService
	var smsSvc core.SMSService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
		smsSvc = smssvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
		smsSvc = smssvc.NewGatewayService(conf, logger)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	invRepo := sqlxrepos.NewInviteRepository(db)
	schRepo := sqlxrepos.NewSchoolRepository(db)

	usrSvc := user.NewService(usrRepo, mailSvc, conf, logger)
	otpSvc := otp.NewService(otpstore.NewRedisStore(rdb), smsSvc, conf, logger)

	issuer := auth.NewIssuer(auth.DefaultStrategies(usrSvc), usrSvc, conf, auth.LogSink{Logger: logger})
	gate := invite.NewGate(invRepo)
	wizard := register.NewWizard(flowstore.NewRedisStore(rdb), otpSvc, usrSvc, validate, logger)
	finalizer := register.NewFinalizer(db, gate, usrSvc, schRepo, schRepo, validate, logger)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(&echoapi.Options{
		Address:    conf.Address(),
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		Issuer:     issuer,
		Wizard:     wizard,
		Finalizer:  finalizer,
		SchoolRepo: schRepo,
		Redis:      rdb,
	})
	server.Start()
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
