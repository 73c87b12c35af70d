package main

import (
	"errors"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/services/events"
	logsvc "github.com/trezcool/classboard/services/logger"
	"github.com/trezcool/classboard/storage/database"
	"github.com/trezcool/classboard/storage/database/inmem"
	sqlxrepos "github.com/trezcool/classboard/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up DB & repos
	var db *sqlx.DB
	var accRepo account.Repository
	if conf.Database.Engine == database.EngineMemory {
		logger.Warn("using the in-memory store: changes are lost on exit")
		accRepo = inmemdb.NewAccountRepository(inmemdb.Open())
	} else {
		var err error
		errAndDie(database.CreateIfNotExist(conf))
		db, err = database.Open(conf)
		errAndDie(err)
		defer db.Close()
		if len(os.Args) > 1 && os.Args[1] != "migrate" {
			errAndDie(database.Migrate(db))
		}
		accRepo = sqlxrepos.NewAccountRepository(db)
	}

	// set up services
	bus, err := events.New(conf, logger)
	errAndDie(err)
	defer bus.Close()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	accSvc, err := account.NewService(accRepo, validate, translator, bus, logger, conf)
	errAndDie(err)

	// start CLI
	cli := commandLine{db: db, accSvc: accSvc, out: os.Stdout}
	if err := cli.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error("admin: command failed", err)
		}
		bus.Close()
		if db != nil {
			db.Close()
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
