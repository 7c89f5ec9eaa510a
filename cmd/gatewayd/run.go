package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/qamdgateway/internal/config"
	"github.com/sawpanic/qamdgateway/internal/gateway/connector"
	"github.com/sawpanic/qamdgateway/internal/gwlog"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	var (
		configPath     string
		logLevel       string
		console        bool
		promptForBroker string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load the gateway config and serve upstream feeds to WebSocket clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logLevel == "" {
				logLevel = gwlog.LevelFromEnv()
			}
			logger := gwlog.New(logLevel, console)

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			if promptForBroker != "" {
				if err := promptBrokerPassword(cfg, promptForBroker); err != nil {
					return fmt.Errorf("run: %w", err)
				}
			}

			// Native feed bindings are out of scope (spec.md §1); a real
			// deployment supplies concrete connector.FeedFactories here.
			// Without one, New skips every broker with a warning and the
			// gateway serves only the (empty) WebSocket/HTTP surface.
			feeds := connector.FeedFactories{}

			c := connector.New(cfg, feeds, logger)
			c.Start()

			serveErr := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", c.Addr()).Msg("gatewayd listening")
				serveErr <- c.ListenAndServe()
			}()

			select {
			case <-cmd.Context().Done():
				logger.Info().Msg("shutdown signal received")
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("run: http server: %w", err)
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := c.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("run: shutdown: %w", err)
			}
			logger.Info().Msg("gatewayd shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "gateway.yaml", "path to the gateway YAML config")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to GATEWAY_LOG_LEVEL or info")
	cmd.Flags().BoolVar(&console, "console", false, "human-readable console log output instead of JSON")
	cmd.Flags().StringVar(&promptForBroker, "broker-password-prompt", "", "prompt for the named broker's password on the terminal instead of reading it from the config file")

	return cmd
}

// promptBrokerPassword reads a password from the controlling terminal
// without echoing it, matching the broker named by brokerName, and
// overwrites its Password field in cfg.
func promptBrokerPassword(cfg *config.GatewayConfig, brokerName string) error {
	idx := -1
	for i := range cfg.Brokers {
		if cfg.Brokers[i].Name == brokerName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("broker-password-prompt: no broker named %q in config", brokerName)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("broker-password-prompt: stdin is not a terminal")
	}

	fmt.Fprintf(os.Stderr, "password for broker %s: ", brokerName)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("broker-password-prompt: %w", err)
	}

	cfg.Brokers[idx].Password = string(raw)
	log.Debug().Str("broker", brokerName).Msg("password supplied interactively")
	return nil
}
