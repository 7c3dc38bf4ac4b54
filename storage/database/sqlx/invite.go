package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/invite"
)

const inviteColumns = `token, kind, school_id, school_class_id, expires_at, used_at, created_at`

type inviteRepository struct {
	db *sqlx.DB
}

var _ invite.Repository = (*inviteRepository)(nil) // interface compliance check

func NewInviteRepository(db *sqlx.DB) *inviteRepository {
	return &inviteRepository{db: db}
}

func (repo inviteRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

func (repo inviteRepository) CreateInvite(ctx context.Context, inv invite.Invite, exec ...core.DBExecutor) (invite.Invite, error) {
	query := `INSERT INTO invite (` + inviteColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		inv.Token, inv.Kind,
		null.NewString(inv.SchoolID, inv.SchoolID != ""),
		null.NewString(inv.SchoolClassID, inv.SchoolClassID != ""),
		null.NewTime(inv.ExpiresAt, !inv.ExpiresAt.IsZero()),
		null.TimeFromPtr(inv.UsedAt),
		inv.CreatedAt.UTC(),
	)
	if err != nil {
		return invite.Invite{}, errors.Wrap(err, "inserting invite")
	}
	return inv, nil
}

func (repo inviteRepository) GetInvite(ctx context.Context, token string, exec ...core.DBExecutor) (invite.Invite, error) {
	var (
		inv           invite.Invite
		schoolID      null.String
		schoolClassID null.String
		expiresAt     null.Time
		usedAt        null.Time
	)
	query := `SELECT ` + inviteColumns + ` FROM invite WHERE token = $1`
	err := repo.getExec(exec).QueryRowContext(ctx, query, token).Scan(
		&inv.Token, &inv.Kind, &schoolID, &schoolClassID, &expiresAt, &usedAt, &inv.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return invite.Invite{}, invite.ErrNotFound
		}
		return invite.Invite{}, errors.Wrap(err, "finding invite")
	}
	inv.SchoolID = schoolID.String
	inv.SchoolClassID = schoolClassID.String
	inv.ExpiresAt = expiresAt.Time
	inv.UsedAt = usedAt.Ptr()
	return inv, nil
}

// ConsumeInvite is a conditional update on the unused row; a concurrent
// consumer that already won leaves zero rows to update.
func (repo inviteRepository) ConsumeInvite(ctx context.Context, token string, exec ...core.DBExecutor) error {
	query := `UPDATE invite SET used_at = $2 WHERE token = $1 AND used_at IS NULL`
	res, err := repo.getExec(exec).ExecContext(ctx, query, token, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "consuming invite")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "consuming invite")
	}
	if cnt == 0 {
		return invite.ErrAlreadyUsed
	}
	return nil
}
