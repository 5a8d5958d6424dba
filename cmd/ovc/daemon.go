package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/overcooked/overcooked/internal/daemon"
	"github.com/overcooked/overcooked/internal/remote"
	enginesync "github.com/overcooked/overcooked/internal/sync"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon for this device.

The daemon keeps the local store reconciled with the hub: it subscribes to
snapshot updates, drains pending local edits, probes connectivity so edits
made offline are pushed as soon as the hub is reachable again, and watches
the import directory (if configured) for dropped task JSON files.

Example usage:
  ovc daemon                     # run in the foreground
  OVC_IMPORT_DIR=~/inbox ovc daemon`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			exitErr(err)
		}
		defer e.close()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// The redialer reconnects on its own, so the daemon starts fine
		// while the hub is down and recovers after it restarts.
		replica := remote.NewRedialer(e.cfg.HubURL, e.cfg.NewLogger("[remote] "))
		defer replica.Close()

		drainer := enginesync.NewDrainer(e.store, e.wallet, replica, e.owner, e.cfg.NewLogger("[drain] "))
		scheduler := enginesync.NewScheduler(drainer, replica, e.cfg.NewLogger("[sched] "))
		scheduler.RetryInterval = e.cfg.DrainRetryInterval
		reconciler := enginesync.NewReconciler(e.store, e.owner, e.cfg.NewLogger("[recon] "))
		mutator := enginesync.NewMutator(e.store, e.wallet, scheduler, e.owner, e.cfg.NewLogger("[mutate] "))

		dcfg := daemon.DefaultConfig()
		dcfg.ImportDir = e.cfg.ImportDir
		dcfg.ProbeInterval = e.cfg.ProbeInterval
		dcfg.Logger = e.cfg.NewLogger("[daemon] ")

		d, err := daemon.New(replica, mutator, reconciler, scheduler, dcfg)
		if err != nil {
			exitErr(err)
		}

		fmt.Printf("Daemon running for %s against %s\n", e.owner, e.cfg.HubURL)
		fmt.Println("Press Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			exitErr(err)
		}
	},
}
