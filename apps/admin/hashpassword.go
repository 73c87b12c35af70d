package main

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// hashPassword prints a hash suitable for seeding account.password_hash by hand.
func (cli *commandLine) hashPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, string(hash))
	return nil
}
