package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/WebgateSystems/akademy/core/user"
	inmemdb "github.com/WebgateSystems/akademy/storage/database/inmem"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	t.Helper()
	usrRepo = inmemdb.NewUserRepository()
	return &commandLine{
		usrRepo: usrRepo,
		invRepo: inmemdb.NewInviteRepository(),
	}
}

func createUser(t *testing.T, repo user.Repository, email, pwd string) user.User {
	t.Helper()
	now := time.Now().UTC()
	usr := user.User{
		FirstName: "User",
		LastName:  "Awe",
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"adduser", "-email", "awe@test.pl"}, wantErr: errHelp},
		{name: "create", args: []string{"adduser", "-first", "User", "-last", "Awe", "-email", "awe@test.pl"}, pwd: "mdr"},
		{name: "create admin", args: []string{"adduser", "-email", "boss@test.pl", "-admin"}, pwd: "mdr"},
		{name: "update existing", args: []string{"adduser", "-email", "awe@test.pl"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}

			usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "awe@test.pl"})
			if err != nil {
				t.Fatalf("GetUser() failed: %v", err)
			}
			if err := usr.CheckPassword(tt.pwd); err != nil {
				t.Error("password not set")
			}
		})
	}

	boss, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: "boss@test.pl"})
	if err != nil {
		t.Fatalf("GetUser() failed: %v", err)
	}
	if !boss.IsAdmin() {
		t.Errorf("boss roles = %v, want all roles", boss.Roles)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := createUser(t, usrRepo, "awe@test.pl", "mdr")

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "awe@test.pl"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.pl"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "awe@test.pl"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				if err != nil {
					t.Fatalf("GetUser() failed: %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addInvite(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no kind", args: []string{"addinvite"}, wantErr: errHelp},
		{name: "unknown kind", args: []string{"addinvite", "-kind", "parent"}, wantErrStr: `unknown invite kind "parent"`},
		{name: "teacher without school", args: []string{"addinvite", "-kind", "teacher"}, wantErrStr: "teacher invites require -school"},
		{name: "student without class", args: []string{"addinvite", "-kind", "student"}, wantErrStr: "student invites require -class"},
		{name: "teacher invite", args: []string{"addinvite", "-kind", "teacher", "-school", "school1"}},
		{name: "student invite", args: []string{"addinvite", "-kind", "student", "-class", "class1", "-ttl", "1h"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				if tt.wantErr != nil || tt.wantErrStr != "" {
					t.Errorf("cli.run() error = nil, want %v%s", tt.wantErr, tt.wantErrStr)
				}
				return
			}
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			} else if err.Error() != tt.wantErrStr {
				t.Errorf("cli.run() error = %q, wantErrStr %q", err.Error(), tt.wantErrStr)
			}
		})
	}
}
