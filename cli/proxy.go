package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "manage proxy routes",
}

var proxyServer string

func init() {
	proxyCmd.PersistentFlags().StringVarP(&proxyServer, "server", "s", "", "server name (required)")
	proxyCmd.MarkPersistentFlagRequired("server")

	proxyCmd.AddCommand(proxyAttachCmd, proxyDetachCmd, proxyListCmd, proxyValidateCmd)
}

var proxyAttachCmd = &cobra.Command{
	Use:   "attach <app> <domain>",
	Short: "route a domain to an app",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.AttachDomain(proxyServer, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Domain %s now routes to %q\n", args[1], args[0])
		fmt.Fprintln(cmd.OutOrStdout(), "Point the domain's DNS at the server; certificates are issued automatically.")
		return nil
	},
}

var proxyDetachCmd = &cobra.Command{
	Use:   "detach <app>",
	Short: "remove an app's route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.DetachDomain(proxyServer, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Route for %q removed\n", args[0])
		return nil
	},
}

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "list installed routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		domains, err := c.ListDomains(proxyServer)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tPORT")
		for _, d := range domains {
			fmt.Fprintf(w, "%s\t%d\n", d.Name, d.Port)
		}
		return w.Flush()
	},
}

var proxyValidateCmd = &cobra.Command{
	Use:   "validate <app>",
	Short: "check that the proxy accepted an app's route",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		check, err := c.ValidateDomain(proxyServer, args[0])
		if err != nil {
			return err
		}
		if check.Active {
			fmt.Fprintf(cmd.OutOrStdout(), "Route for %s is active\n", check.Domain)
			return nil
		}
		return fmt.Errorf("route for %s is not loaded by the proxy", check.Domain)
	},
}
