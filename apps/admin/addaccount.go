package main

import (
	"context"

	"github.com/volatiletech/null/v8"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
)

// addAccount creates an account, skipping the API's admin guard; the CLI runs
// with operator privileges by definition.
func (cli *commandLine) addAccount(email, name, group string, isAdmin bool) error {
	acc := account.Account{
		Email:    core.CleanString(email, true /* lower */),
		FullName: core.CleanString(name),
		IsAdmin:  isAdmin,
	}
	if group != "" {
		acc.Group = null.StringFrom(core.CleanString(group))
	}
	if _, err := cli.accRepo.CreateAccount(context.Background(), acc); err != nil {
		return err
	}
	return nil
}
