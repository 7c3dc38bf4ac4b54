package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/invite"
)

type inviteRepository struct {
	mutex sync.Mutex
	table map[string]*invite.Invite
}

var _ invite.Repository = (*inviteRepository)(nil) // interface compliance check

func NewInviteRepository() *inviteRepository {
	return &inviteRepository{table: make(map[string]*invite.Invite)}
}

func (repo *inviteRepository) CreateInvite(_ context.Context, inv invite.Invite, _ ...core.DBExecutor) (invite.Invite, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	repo.table[inv.Token] = &inv
	return inv, nil
}

func (repo *inviteRepository) GetInvite(_ context.Context, token string, _ ...core.DBExecutor) (invite.Invite, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	if inv, ok := repo.table[token]; ok {
		return *inv, nil
	}
	return invite.Invite{}, invite.ErrNotFound
}

func (repo *inviteRepository) ConsumeInvite(_ context.Context, token string, _ ...core.DBExecutor) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	inv, ok := repo.table[token]
	if !ok {
		return invite.ErrNotFound
	}
	if inv.UsedAt != nil {
		return invite.ErrAlreadyUsed
	}
	now := time.Now().UTC()
	inv.UsedAt = &now
	return nil
}
