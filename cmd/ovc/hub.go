package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/overcooked/overcooked/internal/hub"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run a replica hub for other devices to sync against",
	Long: `Run a replica hub.

The hub holds the authoritative copy of every owner's task collection and
pushes full-collection snapshots to subscribed devices whenever anything
changes. Devices connect over websocket at /sync.

Example usage:
  ovc hub                        # listen on the configured hub_addr
  ovc hub --addr :9000`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitErr(err)
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.HubAddr
		}

		server := hub.NewServer(&hub.Config{
			Addr:   addr,
			Logger: cfg.NewLogger("[hub] "),
		})
		if err := server.Start(); err != nil {
			exitErr(fmt.Errorf("failed to start hub: %w", err))
		}

		fmt.Printf("Hub listening on %s\n", server.Addr())
		fmt.Printf("Sync endpoint: ws://%s/sync\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down hub...")
		if err := server.Stop(); err != nil {
			exitErr(err)
		}
	},
}

func init() {
	hubCmd.Flags().String("addr", "", "listen address (overrides config)")
}
