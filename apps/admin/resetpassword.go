package main

import (
	"context"
	"time"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/user"
)

func (cli *commandLine) resetPassword(cin, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{CINOrEmail: core.CleanString(cin, true /* lower */)})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = cli.usrRepo.UpdateUser(ctx, usr, nil)
	return err
}
