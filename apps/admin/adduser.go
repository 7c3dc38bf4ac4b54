package main

import (
	"context"
	"time"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(first, last, email, pwd string, isAdmin bool) error {
	var usr user.User
	var err error
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)

	if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email}); err != nil {
		if err != user.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		usr = user.User{
			FirstName: core.CleanString(first),
			LastName:  core.CleanString(last),
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
