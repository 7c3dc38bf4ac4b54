package user

import (
	"context"

	"github.com/WebgateSystems/akademy/core"
)

type serviceMock struct {
	service
}

// NewServiceMock wraps the real service for tests: mail-sending paths run
// synchronously so assertions can observe the outbox right away.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger) ServiceInterface {
	initTokenGen(conf)
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    conf,
			logger:  logger,
		},
	}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}
