package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"infrakt.dev/core"
	"infrakt.dev/store"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "manage apps",
}

var (
	appServer      string
	appType        string
	appImage       string
	appRepo        string
	appBranch      string
	appComposeFile string
	appPort        int
	appDomain      string
	appHealthURL   string
	appAutoDeploy  bool
	appCPULimit    string
	appMemLimit    string
	appStrategy    string
	deployCommit   string
	logsTail       int
	logsFollow     bool
)

func init() {
	appCmd.PersistentFlags().StringVarP(&appServer, "server", "s", "", "server name (required)")
	appCmd.MarkPersistentFlagRequired("server")

	appCreateCmd.Flags().StringVar(&appType, "type", "image", "app type: image, git or compose")
	appCreateCmd.Flags().StringVar(&appImage, "image", "", "container image reference")
	appCreateCmd.Flags().StringVar(&appRepo, "repo", "", "git clone URL (https)")
	appCreateCmd.Flags().StringVar(&appBranch, "branch", "main", "git branch")
	appCreateCmd.Flags().StringVar(&appComposeFile, "compose-file", "", "compose manifest to deploy verbatim")
	appCreateCmd.Flags().IntVar(&appPort, "port", 0, "container port to route to")
	appCreateCmd.Flags().StringVar(&appDomain, "domain", "", "domain to route through the proxy")
	appCreateCmd.Flags().StringVar(&appHealthURL, "health-url", "", "HTTP health check path or URL")
	appCreateCmd.Flags().BoolVar(&appAutoDeploy, "auto-deploy", false, "deploy automatically on push webhooks")
	appCreateCmd.Flags().StringVar(&appCPULimit, "cpus", "", "CPU limit, e.g. 0.5")
	appCreateCmd.Flags().StringVar(&appMemLimit, "memory", "", "memory limit, e.g. 512M")
	appCreateCmd.Flags().StringVar(&appStrategy, "strategy", "", "deploy strategy: restart or rolling")

	appDeployCmd.Flags().StringVar(&deployCommit, "commit", "", "pin the deploy to a commit")
	appRollbackCmd.Flags().StringVar(&deployCommit, "commit", "", "roll back to an explicit commit")
	appLogsCmd.Flags().IntVar(&logsTail, "tail", 100, "number of lines")
	appLogsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "stream logs until interrupted")

	appCmd.AddCommand(appCreateCmd, appListCmd, appDeployCmd, appRollbackCmd,
		appStartCmd, appStopCmd, appRestartCmd, appDestroyCmd, appLogsCmd,
		appStatusCmd, appHistoryCmd)
}

var appCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "declare a new app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		kind, engine := store.ParseAppType(appType)
		app := &store.App{
			Name:        args[0],
			Kind:        kind,
			Engine:      engine,
			Image:       appImage,
			GitRepo:     appRepo,
			Branch:      appBranch,
			Port:        appPort,
			Domain:      appDomain,
			HealthURL:   appHealthURL,
			AutoDeploy:  appAutoDeploy,
			CPULimit:    appCPULimit,
			MemoryLimit: appMemLimit,
		}
		if appStrategy != "" {
			app.Strategy = store.DeployStrategy(appStrategy)
		}
		if appComposeFile != "" {
			manifest, err := os.ReadFile(appComposeFile)
			if err != nil {
				return fmt.Errorf("failed to read compose file: %w", err)
			}
			app.ComposeInline = string(manifest)
		}
		if err := c.CreateApp(appServer, app); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "App %q created on %q\n", app.Name, appServer)
		if app.Kind == store.KindGit {
			fmt.Fprintf(cmd.OutOrStdout(), "Push webhook secret: %s\n", app.WebhookSecret)
		}
		return nil
	},
}

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "list apps on a server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		server, err := c.Store.ServerByName(appServer)
		if err != nil {
			return err
		}
		apps, err := c.Store.Apps(server.ID, false)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tSTATUS\tDOMAIN\tUPDATED")
		for _, a := range apps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				a.Name, a.Type(), a.Status, a.Domain, humanize.Time(a.UpdatedAt))
		}
		return w.Flush()
	},
}

var appDeployCmd = &cobra.Command{
	Use:   "deploy <name>",
	Short: "deploy an app and follow the log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		d, err := c.DeployApp(appServer, args[0], deployCommit)
		if err != nil {
			return err
		}
		return followStream(c, int64(d.ID), cmd.OutOrStdout())
	},
}

var appRollbackCmd = &cobra.Command{
	Use:   "rollback <name>",
	Short: "redeploy the last successful commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		d, err := c.RollbackApp(appServer, args[0], deployCommit)
		if err != nil {
			return err
		}
		return followStream(c, int64(d.ID), cmd.OutOrStdout())
	},
}

func appLifecycle(short string, fn func(c *core.Core, server, app string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := fn(c, appServer, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "App %q %s\n", args[0], short)
		return nil
	}
}

var appStartCmd = &cobra.Command{
	Use:   "start <name>",
	Short: "start an app",
	Args:  cobra.ExactArgs(1),
	RunE: appLifecycle("started", func(c *core.Core, server, app string) error {
		return c.StartApp(server, app)
	}),
}

var appStopCmd = &cobra.Command{
	Use:   "stop <name>",
	Short: "stop an app",
	Args:  cobra.ExactArgs(1),
	RunE: appLifecycle("stopped", func(c *core.Core, server, app string) error {
		return c.StopApp(server, app)
	}),
}

var appRestartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "restart an app",
	Args:  cobra.ExactArgs(1),
	RunE: appLifecycle("restarted", func(c *core.Core, server, app string) error {
		return c.RestartApp(server, app)
	}),
}

var appDestroyCmd = &cobra.Command{
	Use:   "destroy <name>",
	Short: "tear down an app and delete its data",
	Args:  cobra.ExactArgs(1),
	RunE: appLifecycle("destroyed", func(c *core.Core, server, app string) error {
		return c.DestroyApp(server, app)
	}),
}

var appLogsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "show service logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if logsFollow {
			stream, release, err := c.FollowAppLogs(appServer, args[0])
			if err != nil {
				return err
			}
			defer release()
			for line := range stream.Lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		}
		out, err := c.AppLogs(appServer, args[0], logsTail)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var appStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "reconcile and show the live state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		view, err := c.AppStatus(appServer, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "App:    %s (%s)\n", view.App.Name, view.App.Type())
		fmt.Fprintf(out, "Status: %s\n", view.Status)
		if view.Health != nil {
			fmt.Fprintf(out, "Health: healthy=%v code=%d latency=%.1fms\n",
				view.Health.Healthy, view.Health.StatusCode, view.Health.ResponseTimeMS)
		}
		if len(view.Services) > 0 {
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tSTATE\tIMAGE")
			for _, svc := range view.Services {
				fmt.Fprintf(w, "%s\t%s\t%s\n", svc.Name, svc.State, svc.Image)
			}
			return w.Flush()
		}
		return nil
	},
}

var appHistoryCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "show recent deployments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		deployments, err := c.Deployments(appServer, args[0], 20)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCOMMIT\tIMAGE\tSTARTED")
		for _, d := range deployments {
			commit := d.CommitHash
			if len(commit) > 12 {
				commit = commit[:12]
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				d.ID, d.Status, commit, d.ImageUsed, humanize.Time(d.StartedAt))
		}
		return w.Flush()
	},
}
