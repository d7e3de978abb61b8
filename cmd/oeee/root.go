package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var errNoApp = errors.New("application is not initialized")

// cli carries the lazily built app and the terminal streams into every command.
type cli struct {
	build func(ctx context.Context) (*app, error)
	app   *app
	in    *bufio.Reader
	out   io.Writer
}

// newRootCmd returns the root command and a func releasing the app it built.
// cobra skips post-run hooks when a command fails, so the caller closes.
func newRootCmd(build func(ctx context.Context) (*app, error), in io.Reader, out io.Writer) (*cobra.Command, func()) {
	c := &cli{build: build, in: bufio.NewReader(in), out: out}

	rootCmd := &cobra.Command{
		Use:   "oeee",
		Short: "oeee.cafe session client",
		Long: `oeee keeps an oeee.cafe session on this machine.

Cookies and the session flag are stored encrypted when a key is available,
so a login survives restarts until the server expires it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(
		c.loginCmd(),
		c.signupCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.deleteAccountCmd(),
		c.cookiesCmd(),
		c.notificationsCmd(),
		c.pushCmd(),
		c.watchCmd(),
	)

	return rootCmd, c.close
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// readLine returns value when set, otherwise one line read from the input.
func (c *cli) readLine(prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}

	c.printf("%s: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(prompt), err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

// requireApp guards commands run outside the root command.
func (c *cli) requireApp() (*app, error) {
	if c.app == nil {
		return nil, errNoApp
	}

	return c.app, nil
}
