package register

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/invite"
	"github.com/WebgateSystems/akademy/core/school"
	"github.com/WebgateSystems/akademy/core/user"
)

// StatusPendingApproval is the status reported for every invite-driven
// registration: teachers await principal approval, students teacher approval.
const StatusPendingApproval = "pending_approval"

type (
	// Result is the successful outcome of an invite-driven registration.
	Result struct {
		UserID string `json:"user_id"`
		Status string `json:"status"`
	}

	// Finalizer is the invite-driven API creation path, distinct from the
	// session wizard. Account row, role/enrollment row and the invite's
	// consumed flag persist atomically; the confirmation mail is dispatched
	// only after the transaction commits.
	Finalizer struct {
		db         core.DB
		gate       *invite.Gate
		usrSvc     user.ServiceInterface
		roleRepo   school.RoleAssignmentRepository
		enrollRepo school.EnrollmentRepository
		validate   *validator.Validate
		logger     core.Logger
	}
)

func NewFinalizer(
	db core.DB,
	gate *invite.Gate,
	usrSvc user.ServiceInterface,
	roleRepo school.RoleAssignmentRepository,
	enrollRepo school.EnrollmentRepository,
	validate *validator.Validate,
	logger core.Logger,
) *Finalizer {
	return &Finalizer{
		db:         db,
		gate:       gate,
		usrSvc:     usrSvc,
		roleRepo:   roleRepo,
		enrollRepo: enrollRepo,
		validate:   validate,
		logger:     logger,
	}
}

// Finalize validates the invite and the signup fields, then atomically
// creates the account, its pending role/enrollment record and marks the
// invite consumed. A validation failure leaves the invite unconsumed, so the
// same token can be retried.
func (f *Finalizer) Finalize(ctx context.Context, token string, nu user.NewUser) (Result, error) {
	inv, err := f.gate.Validate(ctx, token)
	if err != nil {
		return Result{}, err
	}

	switch inv.Kind {
	case invite.KindTeacher:
		nu.Roles = user.TeacherRoles
	case invite.KindStudent:
		nu.Roles = user.StudentRoles
	default:
		// other kinds grant a bare account with no role record
		nu.Roles = nil
	}

	if err := nu.Validate(f.validate, f.usrSvc); err != nil {
		return Result{}, err
	}

	var usr user.User
	err = f.atomic(ctx, func(tx core.DBTransactor) error {
		var execs []core.DBExecutor
		if tx != nil {
			execs = []core.DBExecutor{tx}
		}

		usr, err = f.usrSvc.Create(ctx, nu, execs...)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		now := time.Now().UTC()
		switch inv.Kind {
		case invite.KindTeacher:
			_, err = f.roleRepo.CreateRoleAssignment(ctx, school.RoleAssignment{
				UserID:    usr.ID,
				Role:      user.RoleTeacher,
				SchoolID:  inv.SchoolID,
				Status:    school.StatusPending,
				CreatedAt: now,
			}, execs...)
			if err != nil {
				return errors.Wrap(err, "creating role assignment")
			}
		case invite.KindStudent:
			_, err = f.enrollRepo.CreateEnrollment(ctx, school.Enrollment{
				UserID:        usr.ID,
				SchoolClassID: inv.SchoolClassID,
				Status:        school.StatusPending,
				CreatedAt:     now,
			}, execs...)
			if err != nil {
				return errors.Wrap(err, "creating enrollment")
			}
		}

		return f.gate.Consume(ctx, inv.Token, execs...)
	})
	if err != nil {
		return Result{}, err
	}

	f.usrSvc.SendConfirmationMail(usr)

	return Result{UserID: usr.ID, Status: StatusPendingApproval}, nil
}

// atomic wraps fn in a DB transaction when a durable store is configured.
// In-memory repositories take no executor; they run fn directly.
func (f *Finalizer) atomic(ctx context.Context, fn func(tx core.DBTransactor) error) error {
	if f.db == nil {
		return fn(nil)
	}
	return core.Atomic(ctx, f.db, fn)
}
