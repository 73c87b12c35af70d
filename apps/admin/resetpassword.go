package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(login, pwd string) error {
	if err := cli.accSvc.ResetPassword(context.Background(), login, pwd); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %q updated\n", login)
	return nil
}
