package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core/invite"
)

// addInvite creates a single-use registration invite and prints its token.
func (cli *commandLine) addInvite(kind, schoolID, classID string, ttl time.Duration) error {
	switch kind {
	case invite.KindTeacher:
		if schoolID == "" {
			return errors.New("teacher invites require -school")
		}
	case invite.KindStudent:
		if classID == "" {
			return errors.New("student invites require -class")
		}
	default:
		return errors.Errorf("unknown invite kind %q", kind)
	}

	now := time.Now().UTC()
	inv, err := cli.invRepo.CreateInvite(context.Background(), invite.Invite{
		Token:         uuid.New().String(),
		Kind:          kind,
		SchoolID:      schoolID,
		SchoolClassID: classID,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	})
	if err != nil {
		return err
	}
	fmt.Printf("invite created: %s (expires %s)\n", inv.Token, inv.ExpiresAt.Format(time.RFC3339))
	return nil
}
