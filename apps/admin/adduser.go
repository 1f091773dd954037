package main

import (
	"context"
	"fmt"

	"github.com/trezcool/darslik/core/user"
)

// addUser creates an active user.User: a staff owner with -staff, a learner otherwise.
func (cli *commandLine) addUser(name, uname, email, pwd string, isStaff bool) error {
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           user.LearnerRoles,
	}
	if isStaff {
		nu.Roles = user.StaffRoles
	}

	ctx := context.Background()
	if err := cli.usrSvc.ValidateNew(ctx, cli.validate, &nu); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "user %q created (id: %s)\n", usr.Username, usr.ID)
	return nil
}
