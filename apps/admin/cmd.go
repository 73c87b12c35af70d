package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/classboard/core/account"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db     *sqlx.DB // nil with the memory engine
	accSvc *account.Service
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  addowner -login LOGIN -name FULL_NAME - create the owner account")
	fmt.Fprintln(cli.out, "  resetpassword -login LOGIN - reset an account's password")
	fmt.Fprintln(cli.out, "  hashpassword - print the bcrypt hash of a password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command")
}

// promptPassword reads a password from stdin without echoing it.
func (cli *commandLine) promptPassword(usage func()) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addOwnerCmd := flag.NewFlagSet("addowner", flag.ContinueOnError)
	addOwnerLogin := addOwnerCmd.String("login", "", "The owner's login. The password will be prompted next.")
	addOwnerName := addOwnerCmd.String("name", "", "The owner's full name.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordLogin := resetPasswordCmd.String("login", "", "The account's login. The password will be prompted next.")

	switch args[1] {
	case "addowner":
		addOwnerCmd.SetOutput(cli.out)
		if err := addOwnerCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addOwnerLogin == "" || *addOwnerName == "" {
			addOwnerCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addOwnerCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addOwner(*addOwnerLogin, *addOwnerName, pwd)

	case "resetpassword":
		resetPasswordCmd.SetOutput(cli.out)
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordLogin == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordLogin, pwd)

	case "hashpassword":
		pwd, err := cli.promptPassword(cli.printUsage)
		if err != nil {
			return err
		}
		return cli.hashPassword(pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
