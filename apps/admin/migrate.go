package main

import (
	"errors"

	"github.com/trezcool/classboard/storage/database"
)

var (
	gooseRunFunc = database.Run // mockable

	errNoDatabase = errors.New("migrations need a sql database engine")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(cli.db, args[0], arguments...)
}
