package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) pushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Manage the device token unregistered on logout",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-token <token>",
			Short: "Remember the push token of this device",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.requireApp()
				if err != nil {
					return err
				}

				if err = a.tokens.SetToken(cmd.Context(), args[0]); err != nil {
					return err
				}
				c.printf("Device token saved\n")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear-token",
			Short: "Forget the push token of this device",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := c.requireApp()
				if err != nil {
					return err
				}

				if err = a.tokens.Clear(cmd.Context()); err != nil {
					return err
				}
				c.printf("Device token cleared\n")
				return nil
			},
		},
	)

	return cmd
}
