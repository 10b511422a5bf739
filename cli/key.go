package cli

import (
	"fmt"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"infrakt.dev/security"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "manage SSH key pairs",
}

var keyComment string

func init() {
	keyCreateCmd.Flags().StringVar(&keyComment, "comment", "infrakt", "public key comment")
	keyCmd.AddCommand(keyCreateCmd, keyListCmd, keyRemoveCmd)
}

var keyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "generate an ed25519 key pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		material, err := c.CreateSSHKey(args[0], keyComment)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Key %q created (%s)\n", material.Name, material.Fingerprint)
		fmt.Fprintf(out, "Private key: %s\n", material.PrivateKeyPath)
		fmt.Fprintln(out, "Install the public key on your servers:")
		fmt.Fprintf(out, "  %s\n", material.PublicKey)
		return nil
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "list managed key pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		keys, err := c.Store.SSHKeys()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tALGORITHM\tFINGERPRINT\tCREATED")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.Name, k.Algorithm, k.Fingerprint, humanize.Time(k.CreatedAt))
		}
		return w.Flush()
	},
}

var keyRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "delete a managed key pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.RemoveSSHKey(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Key %q removed\n", args[0])
		return nil
	},
}

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "manage scoped deploy keys for CI",
}

func init() {
	ciCmd.AddCommand(ciCreateCmd, ciListCmd, ciRevokeCmd)
}

var ciCreateCmd = &cobra.Command{
	Use:   "create <label>",
	Short: "create a deploy key (shown once)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		plaintext, err := c.DeployKeys.Create(args[0], []string{security.ScopeDeploy})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deploy key %q: %s\n", args[0], plaintext)
		fmt.Fprintln(cmd.OutOrStdout(), "This key only triggers deployments; store it in your CI secrets.")
		return nil
	},
}

var ciListCmd = &cobra.Command{
	Use:   "list",
	Short: "list deploy keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		keys, err := c.DeployKeys.List()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LABEL\tSCOPES\tCREATED")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%v\t%s\n", k.Label, k.Scopes, humanize.Time(k.CreatedAt))
		}
		return w.Flush()
	},
}

var ciRevokeCmd = &cobra.Command{
	Use:   "revoke <label>",
	Short: "revoke a deploy key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.DeployKeys.Revoke(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deploy key %q revoked\n", args[0])
		return nil
	},
}
