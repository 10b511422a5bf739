package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"infrakt.dev/common"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "manage app environment variables",
}

var (
	envServer string
	envApp    string
	envReveal bool
)

func init() {
	envCmd.PersistentFlags().StringVarP(&envServer, "server", "s", "", "server name (required)")
	envCmd.PersistentFlags().StringVarP(&envApp, "app", "a", "", "app name (required)")
	envCmd.MarkPersistentFlagRequired("server")
	envCmd.MarkPersistentFlagRequired("app")

	envListCmd.Flags().BoolVar(&envReveal, "reveal", false, "decrypt and show values")

	envCmd.AddCommand(envSetCmd, envUnsetCmd, envListCmd)
}

var envSetCmd = &cobra.Command{
	Use:   "set <KEY=value>...",
	Short: "set one or more variables",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		for _, pair := range args {
			key, value, ok := strings.Cut(pair, "=")
			if !ok {
				return common.Validationf("expected KEY=value, got %q", pair)
			}
			if err := c.SetEnv(envServer, envApp, key, value); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d variable(s) set; redeploy to apply\n", len(args))
		return nil
	},
}

var envUnsetCmd = &cobra.Command{
	Use:   "unset <KEY>...",
	Short: "remove variables",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		for _, key := range args {
			if err := c.UnsetEnv(envServer, envApp, key); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d variable(s) removed; redeploy to apply\n", len(args))
		return nil
	},
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "list variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if envReveal {
			values, err := c.EnvValues(envServer, envApp)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, values[k])
			}
			return nil
		}
		names, err := c.EnvNames(envServer, envApp)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}
