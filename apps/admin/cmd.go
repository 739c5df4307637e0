package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf    *core.Config
	db      *sqlx.DB
	accRepo account.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                        - run database migrations (goose passthrough)")
	fmt.Println("  addaccount -email EMAIL -name NAME [-admin]   - create an account")
	fmt.Println("  mintoken -email EMAIL                         - mint a development JWT for an account")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addAccountCmd := flag.NewFlagSet("addaccount", flag.ExitOnError)
	addAccountEmail := addAccountCmd.String("email", "", "The account's email.")
	addAccountName := addAccountCmd.String("name", "", "The account's full name.")
	addAccountGroup := addAccountCmd.String("group", "", "The account's study group (optional).")
	addAccountAdmin := addAccountCmd.Bool("admin", false, "Grant administrator privileges.")

	minTokenCmd := flag.NewFlagSet("mintoken", flag.ExitOnError)
	minTokenEmail := minTokenCmd.String("email", "", "The account's email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addaccount":
		if err := addAccountCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addAccountEmail == "" || *addAccountName == "" {
			addAccountCmd.Usage()
			return errHelp
		}
		return cli.addAccount(*addAccountEmail, *addAccountName, *addAccountGroup, *addAccountAdmin)
	case "mintoken":
		if err := minTokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *minTokenEmail == "" {
			minTokenCmd.Usage()
			return errHelp
		}
		return cli.minToken(*minTokenEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}
