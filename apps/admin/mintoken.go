package main

import (
	"context"
	"fmt"

	echoapi "github.com/moflotas/ipts-backend/apps/api/echo"
	"github.com/moflotas/ipts-backend/core"
)

// minToken mints a signed development JWT for an existing account.
func (cli *commandLine) minToken(email string) error {
	acc, err := cli.accRepo.GetAccount(context.Background(), core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}

	token, err := echoapi.GenerateToken(cli.conf, echoapi.GetAccountClaims(cli.conf, acc))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
