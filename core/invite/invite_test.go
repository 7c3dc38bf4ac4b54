package invite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/WebgateSystems/akademy/core/invite"
	inmemdb "github.com/WebgateSystems/akademy/storage/database/inmem"
)

func createInvite(t *testing.T, repo invite.Repository, token, kind string, expiresAt time.Time) invite.Invite {
	t.Helper()
	inv, err := repo.CreateInvite(context.Background(), invite.Invite{
		Token:         token,
		Kind:          kind,
		SchoolID:      "school1",
		SchoolClassID: "class1",
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	return inv
}

func TestGate_Validate(t *testing.T) {
	repo := inmemdb.NewInviteRepository()
	gate := invite.NewGate(repo)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	createInvite(t, repo, "tok-teacher", invite.KindTeacher, future)
	createInvite(t, repo, "tok-expired", invite.KindStudent, time.Now().UTC().Add(-time.Minute))
	createInvite(t, repo, "tok-forever", invite.KindStudent, time.Time{}) // no expiry

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "valid token", token: "tok-teacher"},
		{name: "no expiry never expires", token: "tok-forever"},
		{name: "empty token", token: "", wantErr: invite.ErrNotFound},
		{name: "unknown token", token: "tok-nope", wantErr: invite.ErrNotFound},
		{name: "expired token", token: "tok-expired", wantErr: invite.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := gate.Validate(ctx, tt.token)
			if err != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && inv.Token != tt.token {
				t.Errorf("Validate() token = %v, want %v", inv.Token, tt.token)
			}
		})
	}
}

func TestGate_Consume(t *testing.T) {
	repo := inmemdb.NewInviteRepository()
	gate := invite.NewGate(repo)
	ctx := context.Background()

	createInvite(t, repo, "tok1", invite.KindTeacher, time.Now().UTC().Add(time.Hour))

	if err := gate.Consume(ctx, "tok1"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	// a consumed token no longer validates and cannot be consumed again
	if _, err := gate.Validate(ctx, "tok1"); err != invite.ErrNotFound {
		t.Errorf("Validate() error = %v, want %v", err, invite.ErrNotFound)
	}
	if err := gate.Consume(ctx, "tok1"); err != invite.ErrNotFound {
		t.Errorf("Consume() error = %v, want %v", err, invite.ErrNotFound)
	}
}

// concurrent consumers of one token: exactly one wins.
func TestGate_Consume_concurrent(t *testing.T) {
	repo := inmemdb.NewInviteRepository()
	gate := invite.NewGate(repo)
	ctx := context.Background()

	createInvite(t, repo, "tok1", invite.KindStudent, time.Now().UTC().Add(time.Hour))

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			errs <- gate.Consume(ctx, "tok1")
		}()
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		switch err {
		case nil:
			wins++
		case invite.ErrNotFound:
		default:
			t.Errorf("Consume() error = %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want 1", wins)
	}
}
