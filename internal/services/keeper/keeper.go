// Package keeper revalidates the session against the server in the background.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/session"
)

const checkTimeout = 10 * time.Second

// ErrInvalidInterval is returned by Start for a zero or negative interval.
var ErrInvalidInterval = errors.New("keeper interval must be positive")

// Checker is the session controller as seen by the keeper.
type Checker interface {
	CheckAuthStatus(ctx context.Context) bool
	State() session.State
}

// Keeper keeps a restored session in sync with the server.
type Keeper struct {
	log     *slog.Logger
	checker Checker
}

// NewKeeper creates a Keeper for checker.
func NewKeeper(log *slog.Logger, checker Checker) *Keeper {
	return &Keeper{log: log, checker: checker}
}

func (k *Keeper) initLogger(opn string) *slog.Logger {
	return k.log.With(
		slog.String("op", opn),
		slog.String("division", "session"),
	)
}

// Start resolves a restored session once, then rechecks it every interval
// while it is authenticated. It returns when ctx is done.
func (k *Keeper) Start(ctx context.Context, interval time.Duration) error {
	const opn = "Keeper.Start"
	log := k.initLogger(opn)

	if interval <= 0 {
		return ErrInvalidInterval
	}

	// 1. Startup reconciliation
	if k.checker.State().IsCheckingAuth {
		log.InfoContext(ctx, "Restoring previous session")
		k.check(ctx, log)
	}

	// 2. Maintenance mode
	log.InfoContext(ctx, "Switching to maintenance mode.", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !k.checker.State().IsAuthenticated {
				log.DebugContext(ctx, "Not logged in, periodic check skipped")
				continue
			}
			log.DebugContext(ctx, "Periodic check triggered.")
			k.check(ctx, log)
		case <-ctx.Done():
			log.InfoContext(ctx, "Service shutting down.")
			return nil
		}
	}
}

func (k *Keeper) check(pctx context.Context, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(pctx, checkTimeout)
	defer cancel()

	if k.checker.CheckAuthStatus(ctx) {
		log.DebugContext(ctx, "Session confirmed")
		return
	}
	log.WarnContext(ctx, "Session is no longer valid")
}
