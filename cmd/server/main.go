// Command server runs the wirechat realtime server and a few operator tools around it.
//
//	server serve --config config.yaml
//	server token --client-id alice
//	server check --url ws://localhost:8080/ws --room lobby
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "server",
		Short:         "Wirechat realtime chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	root.AddCommand(buildServeCmd(), buildTokenCmd(), buildCheckCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
