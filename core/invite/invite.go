package invite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
)

// Invite kinds
const (
	KindTeacher = "teacher"
	KindStudent = "student"
)

var (
	// ErrNotFound covers missing, consumed and expired tokens alike: a caller
	// never learns which, only that the token does not grant registration.
	ErrNotFound = errors.New("invite not found")

	// ErrAlreadyUsed is returned by Repository.ConsumeInvite when the
	// compare-and-set on the consumed flag loses to a concurrent consumer.
	ErrAlreadyUsed = errors.New("invite already used")

	nowFunc = time.Now // mockable
)

// Invite is a single-use invitation to register under a specific role and
// scope. Teacher invites target a school, student invites a school class.
type Invite struct {
	Token         string     `json:"token"`
	Kind          string     `json:"kind"`
	SchoolID      string     `json:"school_id,omitempty"`
	SchoolClassID string     `json:"school_class_id,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (inv *Invite) Expired() bool {
	return !inv.ExpiresAt.IsZero() && nowFunc().After(inv.ExpiresAt)
}

func (inv *Invite) Used() bool {
	return inv.UsedAt != nil
}

type (
	Repository interface {
		CreateInvite(ctx context.Context, inv Invite, exec ...core.DBExecutor) (Invite, error)
		GetInvite(ctx context.Context, token string, exec ...core.DBExecutor) (Invite, error)
		// ConsumeInvite marks the invite used iff it is not already used: an
		// atomic conditional update, so concurrent consumers of the same
		// token cannot both win.
		ConsumeInvite(ctx context.Context, token string, exec ...core.DBExecutor) error
	}

	// Gate validates invite tokens and consumes them once registration
	// succeeds. Consumption is a separate, explicit step invoked only after
	// the account is durably created, so a failed registration attempt never
	// burns a token.
	Gate struct {
		repo Repository
	}
)

func NewGate(repo Repository) *Gate {
	return &Gate{repo: repo}
}

// Validate resolves a token to its invite. Consumed and expired tokens yield
// ErrNotFound, never a stale invite.
func (g *Gate) Validate(ctx context.Context, token string, exec ...core.DBExecutor) (Invite, error) {
	if token == "" {
		return Invite{}, ErrNotFound
	}
	inv, err := g.repo.GetInvite(ctx, token, exec...)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Invite{}, ErrNotFound
		}
		return Invite{}, errors.Wrap(err, "getting invite")
	}
	if inv.Used() || inv.Expired() {
		return Invite{}, ErrNotFound
	}
	return inv, nil
}

// Consume marks the token used. Call only after account creation succeeded.
func (g *Gate) Consume(ctx context.Context, token string, exec ...core.DBExecutor) error {
	if err := g.repo.ConsumeInvite(ctx, token, exec...); err != nil {
		if errors.Cause(err) == ErrAlreadyUsed {
			return ErrNotFound
		}
		return errors.Wrap(err, "consuming invite")
	}
	return nil
}
