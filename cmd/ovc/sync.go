package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/overcooked/overcooked/internal/remote"
	enginesync "github.com/overcooked/overcooked/internal/sync"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Push all pending local changes to the hub now",
	Long: `Push all pending local changes to the hub in one pass.

Normally the daemon drains in the background; this command is for one-shot
use on machines not running a daemon, or to flush before going offline.
Draining is idempotent, so running it alongside a daemon is harmless.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		pending, err := e.store.PendingSync(e.owner)
		if err != nil {
			exitErr(err)
		}
		if len(pending) == 0 {
			fmt.Println("Nothing pending")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		client, err := remote.Dial(ctx, e.cfg.HubURL, e.cfg.NewLogger("[remote] "))
		if err != nil {
			exitErr(fmt.Errorf("failed to reach hub at %s: %w", e.cfg.HubURL, err))
		}
		defer client.Close()

		drainer := enginesync.NewDrainer(e.store, e.wallet, client, e.owner, e.cfg.NewLogger("[drain] "))
		if err := drainer.RunOnce(ctx); err != nil {
			exitErr(err)
		}

		fmt.Printf("Drained %d pending record(s)\n", len(pending))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task counts and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		counts, err := e.store.CountTasks(e.owner, time.Now())
		if err != nil {
			exitErr(err)
		}
		pending, err := e.store.PendingSync(e.owner)
		if err != nil {
			exitErr(err)
		}

		fmt.Printf("Tasks: %d open, %d completed, %d overdue\n",
			counts.Pending, counts.Completed, counts.Overdue)
		if len(pending) == 0 {
			fmt.Println("Sync:  up to date")
		} else {
			fmt.Printf("Sync:  %d record(s) waiting to push\n", len(pending))
		}
	},
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show your coin balance",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		w, err := e.wallet.Balance(e.owner)
		if err != nil {
			exitErr(err)
		}

		fmt.Printf("Balance: %d coin(s)\n", w.Balance)
		if w.PendingDelta != 0 {
			fmt.Printf("Unconfirmed: %+d (will be confirmed on next sync)\n", w.PendingDelta)
		}
	},
}
