package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"

	"github.com/moflotas/ipts-backend/core"
	"github.com/moflotas/ipts-backend/core/account"
	dummydb "github.com/moflotas/ipts-backend/storage/database/dummy"
)

var accRepo account.Repository

func setup(t *testing.T) *commandLine {
	t.Helper()
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	accRepo = dummydb.NewAccountRepository(db)

	return &commandLine{
		conf:    core.NewConfig(),
		accRepo: accRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_addAccount(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"addaccount"}, wantErr: errHelp},
		{name: "email but no name", args: []string{"addaccount", "-email", "a@innopolis.university"}, wantErr: errHelp},
		{name: "ok", args: []string{"addaccount", "-email", "A@Innopolis.University", "-name", "Aa Bb"}},
		{name: "admin", args: []string{"addaccount", "-email", "b@innopolis.university", "-name", "Bb Cc", "-admin"}},
		{name: "duplicate", args: []string{"addaccount", "-email", "a@innopolis.university", "-name", "Aa Bb"}, wantErr: account.ErrAccountExists},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("cli.run() unexpected error = %v", err)
			}
		})
	}

	// emails are lowercased before storage
	acc, err := accRepo.GetAccount(context.Background(), "a@innopolis.university")
	if err != nil {
		t.Fatalf("GetAccount() failed: %v", err)
	}
	if acc.FullName != "Aa Bb" {
		t.Errorf("GetAccount() FullName = %q, want %q", acc.FullName, "Aa Bb")
	}

	admin, err := accRepo.GetAccount(context.Background(), "b@innopolis.university")
	if err != nil {
		t.Fatalf("GetAccount() failed: %v", err)
	}
	if !admin.IsAdmin {
		t.Error("GetAccount() IsAdmin = false, want true")
	}
}

func Test_commandLine_minToken(t *testing.T) {
	cli := setup(t)

	if err := cli.addAccount("c@innopolis.university", "Cc Dd", "", false); err != nil {
		t.Fatalf("addAccount() failed: %v", err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"mintoken"}, wantErr: errHelp},
		{name: "account not found", args: []string{"mintoken", "-email", "lol@innopolis.university"}, wantErr: account.ErrNotFound},
		{name: "ok", args: []string{"mintoken", "-email", "c@innopolis.university"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("cli.run() unexpected error = %v", err)
			}
		})
	}
}

