// Package cli is the infrakt command-line interface. Commands operate
// on the control-plane state directly and share it with a running
// serve process through the embedded database.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"infrakt.dev/common"
	"infrakt.dev/config"
	"infrakt.dev/core"
)

var rootCmd = &cobra.Command{
	Use:   "infrakt",
	Short: "deploy apps and databases to your own servers over SSH",
	Long: `infrakt is a self-hosted deployment platform. It provisions plain
Linux hosts over SSH, deploys container apps behind an automatic
HTTPS proxy, and manages databases with scheduled, replicated
backups.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\x1b[31mError: %v\x1b[0m\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		initCmd,
		serveCmd,
		serverCmd,
		appCmd,
		envCmd,
		dbCmd,
		proxyCmd,
		keyCmd,
		webhookCmd,
		ciCmd,
		settingsCmd,
	)
}

// openCore loads configuration and opens the control-plane state.
func openCore() (*core.Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	common.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)
	return core.New(cfg)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "initialize the state directory and print the platform key",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "State directory: %s\n", c.Config.Home)
		fmt.Fprintf(cmd.OutOrStdout(), "Platform key:    %s\n", c.PlatformKey)
		fmt.Fprintln(cmd.OutOrStdout(), "Keep the platform key secret; it opens the full API.")
		return nil
	},
}
