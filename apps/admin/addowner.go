package main

import (
	"context"
	"fmt"
)

// addOwner bootstraps the single owner account.
func (cli *commandLine) addOwner(login, fullName, pwd string) error {
	acc, err := cli.accSvc.EnsureOwner(context.Background(), login, pwd, fullName)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "owner %q created (id %s)\n", acc.Login, acc.ID)
	return nil
}
