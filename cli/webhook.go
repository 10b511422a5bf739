package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"infrakt.dev/common"
	"infrakt.dev/store"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "manage outbound event notifications",
}

var (
	hookEvents []string
	hookSecret string
)

func init() {
	webhookAddCmd.Flags().StringSliceVar(&hookEvents, "events", nil, "events to subscribe to (default: all)")
	webhookAddCmd.Flags().StringVar(&hookSecret, "secret", "", "HMAC secret for delivery signatures")

	webhookCmd.AddCommand(webhookAddCmd, webhookListCmd, webhookRemoveCmd)
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "register a notification target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		url := args[0]
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return common.Validationf("webhook URL must be http(s)")
		}
		hook := &store.Webhook{
			URL:    url,
			Events: strings.Join(hookEvents, ","),
			Secret: hookSecret,
		}
		if err := c.Store.CreateWebhook(hook); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook %d registered\n", hook.ID)
		return nil
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "list notification targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		hooks, err := c.Store.Webhooks()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tEVENTS")
		for _, h := range hooks {
			events := h.Events
			if events == "" {
				events = "(all)"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", h.ID, h.URL, events)
		}
		return w.Flush()
	},
}

var webhookRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "remove a notification target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return common.Validationf("invalid webhook id %q", args[0])
		}
		if err := c.Store.DeleteWebhook(uint(id)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook %d removed\n", id)
		return nil
	},
}
