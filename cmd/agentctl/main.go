package main

import (
	"fmt"
	"os"

	"github.com/danmuck/relayctl/internal/agent"
	"github.com/danmuck/relayctl/internal/logging"
	"github.com/danmuck/relayctl/internal/tools"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "agentctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		hubAddr    string
		alias      string
		metrics    string
	)
	cmd := &cobra.Command{
		Use:           "agentctl",
		Short:         "Connect to a hub and run the commands it sends",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := agent.DefaultConfig()
			if configPath != "" {
				loaded, err := loadClientConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("hub") {
				cfg.HubAddress = hubAddr
			}
			if cmd.Flags().Changed("alias") {
				cfg.Alias = alias
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsListenAddr = metrics
			}
			client, err := agent.NewClient(cfg, tools.ExecRunner{})
			if err != nil {
				return err
			}
			return client.Run()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to agentctl TOML config")
	cmd.Flags().StringVar(&hubAddr, "hub", "", "hub address host:port (overrides config)")
	cmd.Flags().StringVar(&alias, "alias", "", "alias announced to the hub (default: local user name)")
	cmd.Flags().StringVar(&metrics, "metrics-addr", "", "serve /metrics on this address while connected")
	return cmd
}
