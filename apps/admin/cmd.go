package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/WebgateSystems/akademy/core/invite"
	"github.com/WebgateSystems/akademy/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sqlx.DB
	usrRepo user.Repository
	invRepo invite.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run DB migrations (goose commands)")
	fmt.Println("  adduser -first FIRST -last LAST -email EMAIL [-admin] - update or create a user; password prompted")
	fmt.Println("  resetpassword -email EMAIL - reset user's password; password prompted")
	fmt.Println("  addinvite -kind teacher|student -school ID [-class ID] [-ttl DURATION] - create an invite token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserFirst := addUserCmd.String("first", "", "The user's first name.")
	addUserLast := addUserCmd.String("last", "", "The user's last name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant all roles to the user.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	addInviteCmd := flag.NewFlagSet("addinvite", flag.ExitOnError)
	addInviteKind := addInviteCmd.String("kind", "", "The invite kind: teacher or student.")
	addInviteSchool := addInviteCmd.String("school", "", "The target school ID (teacher invites).")
	addInviteClass := addInviteCmd.String("class", "", "The target school class ID (student invites).")
	addInviteTTL := addInviteCmd.Duration("ttl", 7*24*time.Hour, "How long the invite stays valid.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserFirst, *addUserLast, *addUserEmail, pwd, *addUserAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)
	case "addinvite":
		if err := addInviteCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addInviteKind == "" {
			addInviteCmd.Usage()
			return errHelp
		}
		return cli.addInvite(*addInviteKind, *addInviteSchool, *addInviteClass, *addInviteTTL)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
