package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/oeee-cafe/oeee-client/internal/models"
)

var errNotConfirmed = errors.New("account deletion needs --yes")

func (c *cli) loginCmd() *cobra.Command {
	var loginName, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			if loginName, err = c.readLine("Login name", loginName); err != nil {
				return err
			}
			if password, err = c.readLine("Password", password); err != nil {
				return err
			}

			user, err := a.session.Login(cmd.Context(), models.Credentials{LoginName: loginName, Password: password})
			if err != nil {
				return err
			}

			c.printf("Logged in as %s (@%s)\n", user.DisplayName, user.LoginName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&loginName, "login-name", "u", "", "Login name (prompted when empty)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (read from stdin when empty)")

	return cmd
}

func (c *cli) signupCmd() *cobra.Command {
	var req models.SignupRequest

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			if req.LoginName, err = c.readLine("Login name", req.LoginName); err != nil {
				return err
			}
			if req.Password, err = c.readLine("Password", req.Password); err != nil {
				return err
			}
			if req.DisplayName == "" {
				req.DisplayName = req.LoginName
			}

			user, err := a.session.Signup(cmd.Context(), req)
			if err != nil {
				return err
			}

			c.printf("Welcome, %s (@%s)\n", user.DisplayName, user.LoginName)
			return nil
		},
	}

	cmd.Flags().StringVarP(&req.LoginName, "login-name", "u", "", "Login name (prompted when empty)")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Password (read from stdin when empty)")
	cmd.Flags().StringVar(&req.DisplayName, "display-name", "", "Display name, defaults to the login name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")

	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget every stored cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			a.session.Logout(cmd.Context())
			c.printf("Logged out\n")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Check the stored session with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}

			if !a.session.CheckAuthStatus(cmd.Context()) {
				c.printf("Not logged in\n")
				return nil
			}

			user := a.session.State().CurrentUser
			c.printf("%s (@%s)\n", user.DisplayName, user.LoginName)
			return nil
		},
	}
}

func (c *cli) deleteAccountCmd() *cobra.Command {
	var (
		password string
		yes      bool
	)

	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the logged in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			if !yes {
				return errNotConfirmed
			}

			if password, err = c.readLine("Password", password); err != nil {
				return err
			}
			if err = a.session.DeleteAccount(cmd.Context(), password); err != nil {
				return err
			}

			c.printf("Account deleted\n")
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (read from stdin when empty)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the deletion")

	return cmd
}
