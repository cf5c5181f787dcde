package main

import (
	"fmt"

	"github.com/trezcool/mtihani/storage/database"
)

// mockable
var (
	migrateFunc  = database.Migrate
	rollbackFunc = database.Rollback
)

func (cli *commandLine) migrate(args []string) error {
	if len(args) == 0 {
		cli.printUsage()
		return errHelp
	}
	switch args[0] {
	case "up":
		return migrateFunc(cli.db)
	case "down":
		return rollbackFunc(cli.db)
	default:
		return fmt.Errorf("%q: no such command", args[0])
	}
}
