package main

import (
	"fmt"
	"os"

	"github.com/danmuck/relayctl/internal/hub"
	"github.com/danmuck/relayctl/internal/logging"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hubctl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		adminAddr  string
	)
	cmd := &cobra.Command{
		Use:   "hubctl",
		Short: "Accept agents and relay operator commands to them",
		Long: `hubctl listens for agents and reads operator lines from stdin:

  list                       show connected agents
  command <alias> <cmd...>   run a command on one agent
  commandall <cmd...>        run a command on every agent
  disconnect <alias>         disconnect one agent
  stop                       disconnect every agent and exit
  anything else              broadcast as a message

"command" and "commandall" need a command to run and "disconnect" needs an
alias; a directive missing its arguments prints a usage error and sends
nothing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := hub.DefaultServiceConfig()
			if configPath != "" {
				loaded, err := loadServiceConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("admin-addr") {
				cfg.AdminListenAddr = adminAddr
			}
			return hub.NewServiceWithConfig(cfg).Run()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to hubctl TOML config")
	cmd.Flags().StringVar(&addr, "addr", "", "agent listen address (overrides config)")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "admin HTTP listen address (overrides config)")
	return cmd
}
