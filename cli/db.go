package cli

import (
	"fmt"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "manage database services and their backups",
}

var (
	dbServer        string
	dbEngine        string
	dbCron          string
	dbRetentionDays int
)

func init() {
	dbCmd.PersistentFlags().StringVarP(&dbServer, "server", "s", "", "server name (required)")
	dbCmd.MarkPersistentFlagRequired("server")

	dbCreateCmd.Flags().StringVar(&dbEngine, "engine", "postgres", "postgres, mysql, redis or mongo")
	dbScheduleCmd.Flags().StringVar(&dbCron, "cron", "0 3 * * *", "5-field cron expression")
	dbScheduleCmd.Flags().IntVar(&dbRetentionDays, "retention", 7, "days to keep local dumps")

	dbCmd.AddCommand(dbCreateCmd, dbBackupCmd, dbRestoreCmd, dbBackupsCmd,
		dbScheduleCmd, dbUnscheduleCmd, dbRemoteCmd, dbFetchCmd)
}

var dbCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "create and deploy a managed database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		d, creds, err := c.CreateDatabase(dbServer, args[0], dbEngine)
		if err != nil {
			return err
		}
		if err := followStream(c, int64(d.ID), cmd.OutOrStdout()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "\nCredentials (shown once, stored encrypted):")
		fmt.Fprintf(out, "  username: %s\n", creds.Username)
		fmt.Fprintf(out, "  password: %s\n", creds.Password)
		fmt.Fprintf(out, "  database: %s\n", creds.Database)
		fmt.Fprintf(out, "  port:     127.0.0.1:%d (host-local only)\n", creds.Port)
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup <name>",
	Short: "dump the database to the host backup directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		filename, err := c.BackupDatabase(dbServer, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backup written: %s\n", filename)
		return nil
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore <name> <filename>",
	Short: "restore a dump into the database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.RestoreDatabase(dbServer, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s into %q\n", args[1], args[0])
		return nil
	},
}

var dbBackupsCmd = &cobra.Command{
	Use:   "backups <name>",
	Short: "list dumps on the host, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		files, err := c.ListBackups(dbServer, args[0])
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	},
}

var dbScheduleCmd = &cobra.Command{
	Use:   "schedule <name>",
	Short: "install a cron-driven backup with retention",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.ScheduleBackups(dbServer, args[0], dbCron, dbRetentionDays); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Backups scheduled (%s, keep %d days)\n", dbCron, dbRetentionDays)
		return nil
	},
}

var dbUnscheduleCmd = &cobra.Command{
	Use:   "unschedule <name>",
	Short: "remove the scheduled backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.UnscheduleBackups(dbServer, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Scheduled backup removed")
		return nil
	},
}

var dbRemoteCmd = &cobra.Command{
	Use:   "remote <name>",
	Short: "list replicated dumps in the object store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		objects, err := c.RemoteBackups(dbServer, args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
		for _, o := range objects {
			fmt.Fprintf(w, "%s\t%s\t%s\n", o.Name,
				humanize.Bytes(uint64(o.Size)), humanize.Time(o.ModifiedAt))
		}
		return w.Flush()
	},
}

var dbFetchCmd = &cobra.Command{
	Use:   "fetch <name> <filename>",
	Short: "download a replicated dump back onto the host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.FetchRemoteBackup(dbServer, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s onto %q\n", args[1], dbServer)
		return nil
	},
}
