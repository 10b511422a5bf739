package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"infrakt.dev/core"
	"infrakt.dev/store"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "manage registered servers",
}

var (
	serverHost    string
	serverPort    int
	serverUser    string
	serverKeyPath string
	serverWipe    bool
	metricsWindow time.Duration
)

func init() {
	serverAddCmd.Flags().StringVar(&serverHost, "host", "", "hostname or IP (required)")
	serverAddCmd.Flags().IntVar(&serverPort, "port", 22, "SSH port")
	serverAddCmd.Flags().StringVar(&serverUser, "user", "root", "SSH user")
	serverAddCmd.Flags().StringVar(&serverKeyPath, "key", "", "SSH private key path")
	serverAddCmd.MarkFlagRequired("host")

	serverProvisionCmd.Flags().BoolVar(&serverWipe, "wipe", false, "remove existing container runtimes first")
	serverMetricsCmd.Flags().DurationVar(&metricsWindow, "window", 24*time.Hour, "history window")

	serverCmd.AddCommand(serverAddCmd, serverListCmd, serverStatusCmd,
		serverProvisionCmd, serverRemoveCmd, serverMetricsCmd)
}

var serverAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "register a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		server := &store.Server{
			Name:    args[0],
			Host:    serverHost,
			Port:    serverPort,
			User:    serverUser,
			KeyPath: serverKeyPath,
		}
		if err := c.AddServer(server); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server %q registered (%s)\n", server.Name, server.Status)
		if server.Status != store.ServerActive {
			fmt.Fprintln(cmd.OutOrStdout(), "The server is not reachable yet; check SSH access and run 'infrakt server provision'.")
		}
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "list registered servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		servers, err := c.Store.Servers()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tHOST\tSTATUS\tADDED")
		for _, s := range servers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Host, s.Status, humanize.Time(s.CreatedAt))
		}
		return w.Flush()
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "probe a server and show a resource sample",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		status, err := c.CheckServer(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Server:    %s (%s)\n", status.Server.Name, status.Server.Host)
		fmt.Fprintf(out, "Reachable: %v\n", status.Reachable)
		printPct := func(label string, v *float64) {
			if v == nil {
				fmt.Fprintf(out, "%s   n/a\n", label)
				return
			}
			fmt.Fprintf(out, "%s   %.1f%%\n", label, *v)
		}
		if status.Reachable {
			printPct("CPU:  ", status.Metric.CPUPercent)
			printPct("Mem:  ", status.Metric.MemPercent)
			printPct("Disk: ", status.Metric.DiskPercent)
		}
		return nil
	},
}

var serverProvisionCmd = &cobra.Command{
	Use:   "provision <name>",
	Short: "install the container runtime, firewall and proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		id, err := c.ProvisionServer(args[0], serverWipe)
		if err != nil {
			return err
		}
		return followStream(c, id, cmd.OutOrStdout())
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "remove a server and all its apps from the control plane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.RemoveServer(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server %q removed\n", args[0])
		return nil
	},
}

var serverMetricsCmd = &cobra.Command{
	Use:   "metrics <name>",
	Short: "show recorded resource samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		metrics, err := c.ServerMetrics(args[0], metricsWindow)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RECORDED\tCPU\tMEM\tDISK")
		pct := func(v *float64) string {
			if v == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.1f%%", *v)
		}
		for _, m := range metrics {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", humanize.Time(m.RecordedAt),
				pct(m.CPUPercent), pct(m.MemPercent), pct(m.DiskPercent))
		}
		return w.Flush()
	},
}

// followStream prints a broadcaster stream until it finishes.
func followStream(c *core.Core, id int64, out io.Writer) error {
	backlog, lines, err := c.Broadcaster.Subscribe(id)
	if err != nil {
		return err
	}
	defer c.Broadcaster.Unsubscribe(id, lines)
	for _, line := range backlog {
		fmt.Fprintln(out, line)
	}
	for line := range lines {
		if line == nil {
			return nil
		}
		fmt.Fprintln(out, *line)
	}
	return nil
}
