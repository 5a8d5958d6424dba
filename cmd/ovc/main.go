// Command ovc is the Overcooked task sync engine CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/overcooked/overcooked/internal/config"
	"github.com/overcooked/overcooked/internal/remote"
	"github.com/overcooked/overcooked/internal/store"
	enginesync "github.com/overcooked/overcooked/internal/sync"
	"github.com/overcooked/overcooked/internal/wallet"
)

var (
	flagConfig string
	flagOwner  string
)

var rootCmd = &cobra.Command{
	Use:   "ovc",
	Short: "Offline-first task manager with multi-device sync",
	Long: `ovc manages tasks in a local store that syncs to a replica hub.

Edits apply locally first and are pushed in the background; the local store
is always the source of truth for your desired state. Run 'ovc daemon' to
keep a device continuously reconciled, or 'ovc hub' to host a replica.`,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "acting user id (overrides config)")

	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(walletCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles the collaborators a one-shot command needs.
type env struct {
	cfg    *config.Config
	store  *store.Store
	wallet *wallet.Service
	owner  string
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig)
}

// openEnv loads configuration and opens the local store.
func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	owner := cfg.Owner
	if flagOwner != "" {
		owner = flagOwner
	}
	if owner == "" {
		return nil, fmt.Errorf("owner is required (set owner in config, OVC_OWNER, or --owner)")
	}

	st, err := store.Open(cfg.DatabasePath(), cfg.NewLogger("[store] "))
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		store:  st,
		wallet: wallet.New(st, cfg.NewLogger("[wallet] ")),
		owner:  owner,
	}, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}

// pendingTrigger records that a drain was requested so one-shot commands can
// attempt a best-effort push before exiting.
type pendingTrigger struct {
	scheduled bool
}

func (t *pendingTrigger) Schedule() { t.scheduled = true }

// tryDrain makes one best-effort drain pass against the hub. Being offline
// is not an error: the edit already succeeded locally and the daemon (or the
// next command) will push it later.
func (e *env) tryDrain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := remote.Dial(ctx, e.cfg.HubURL, e.cfg.NewLogger("[remote] "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Offline; changes saved locally and will sync later\n")
		return
	}
	defer client.Close()

	drainer := enginesync.NewDrainer(e.store, e.wallet, client, e.owner, e.cfg.NewLogger("[drain] "))
	if err := drainer.RunOnce(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Sync incomplete (%v); will retry later\n", err)
	}
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
