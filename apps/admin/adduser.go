package main

import (
	"context"
	"time"

	"github.com/trezcool/mtihani/core"
	"github.com/trezcool/mtihani/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, email, cin, pwd string, isAdmin bool) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	cin = core.CleanString(cin)

	role := user.RoleTeacher
	if isAdmin {
		role = user.RoleAdmin
	}

	now := time.Now().UTC()
	active := true

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{CINOrEmail: cin})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      name,
			Email:     email,
			CIN:       cin,
			Role:      role,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
		return err
	}

	usr.Name = name
	usr.Email = email
	usr.Role = role
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr, &active)
	return err
}
