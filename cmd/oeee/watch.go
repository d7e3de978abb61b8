package main

import (
	"context"
	"net/url"
	"sync"

	"github.com/spf13/cobra"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/server"
	"github.com/oeee-cafe/oeee-client/internal/services/keeper"
)

func (c *cli) watchCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session validated and serve /healthz and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireApp()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Monitoring.Port
			}

			return c.watch(cmd.Context(), a, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Monitoring port, defaults to monitoring.port")

	return cmd
}

func (c *cli) watch(parent context.Context, a *app, port int) error {
	var wgr sync.WaitGroup
	delta := 3

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	states, unsubscribe := a.session.Subscribe()
	sessionKeeper := keeper.NewKeeper(a.log, a.session)
	apiHost := (&url.URL{Scheme: a.api.BaseURL().Scheme, Host: a.api.BaseURL().Host}).String()

	var serverErr error

	wgr.Add(delta)

	go func() {
		defer wgr.Done()
		for state := range states {
			switch {
			case state.IsCheckingAuth:
				c.printf("Checking stored session...\n")
			case state.IsAuthenticated:
				c.printf("Logged in as @%s\n", state.CurrentUser.LoginName)
			default:
				c.printf("Not logged in\n")
			}
		}
	}()

	go func() {
		defer wgr.Done()
		if serverErr = server.StartMonitoringServer(ctx, a.log, a.reg, a.storage, a.session, port, apiHost); serverErr != nil {
			cancel()
		}
	}()

	go func() {
		defer wgr.Done()
		defer unsubscribe()
		a.log.InfoContext(ctx, "Starting session keeper")
		if err := sessionKeeper.Start(ctx, a.cfg.Monitoring.Interval); err != nil {
			a.log.ErrorContext(ctx, "Session keeper failed", sl.Err(err))
			cancel()
		}
		a.log.InfoContext(ctx, "Session keeper stopped.")
	}()

	a.log.InfoContext(ctx, "Watching session. Press Ctrl+C to stop.")

	wgr.Wait()

	return serverErr
}
