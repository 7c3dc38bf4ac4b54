package main

import (
	"log"
	"os"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/storage/database"
	sqlxrepos "github.com/WebgateSystems/akademy/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	wd, err := os.Getwd()
	errAndDie(err)
	conf := core.NewConfig(wd)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		invRepo: sqlxrepos.NewInviteRepository(db),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
