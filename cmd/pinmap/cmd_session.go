package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pinmap/internal/domain/mapview"
	"pinmap/internal/domain/user"
)

func runLogin(cmd *cobra.Command, args []string) error {
	return authenticate(cmd, args, false)
}

func runRegister(cmd *cobra.Command, args []string) error {
	return authenticate(cmd, args, true)
}

func authenticate(cmd *cobra.Command, args []string, register bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	creds := user.Credentials{Email: args[0], Name: args[1]}.Normalize()

	var session *user.Session
	if register {
		session, err = a.client.Register(cmd.Context(), creds)
	} else {
		session, err = a.client.Login(cmd.Context(), creds)
	}
	if err != nil {
		return fmt.Errorf("%s", mapview.UserMessage(err))
	}

	if err := a.session.Save(session); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s> (%s)\n", session.User.Name, session.User.Email, session.User.Role)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if a.session.Token() != "" {
		if err := a.client.Logout(cmd.Context()); err != nil {
			a.log.Warn("Error logging out on the server", "error", err)
		}
	}

	if err := a.session.Clear(); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.session.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("%s", mapview.UserMessage(err))
	}

	u := a.session.User()
	if u == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", u.Name, u.Email, u.Role)
	return nil
}
