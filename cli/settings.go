package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"infrakt.dev/store"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "configure platform-wide integrations",
}

var (
	sourceUsername string
	sourceToken    string

	osEndpoint  string
	osBucket    string
	osRegion    string
	osAccessKey string
	osSecretKey string
	osPrefix    string
)

func init() {
	settingsSourceCmd.Flags().StringVar(&sourceUsername, "username", "", "clone username (default: oauth2)")
	settingsSourceCmd.Flags().StringVar(&sourceToken, "token", "", "access token for private repositories (required)")
	settingsSourceCmd.MarkFlagRequired("token")

	settingsObjectStoreCmd.Flags().StringVar(&osEndpoint, "endpoint", "", "S3-compatible endpoint URL")
	settingsObjectStoreCmd.Flags().StringVar(&osBucket, "bucket", "", "bucket name (required)")
	settingsObjectStoreCmd.Flags().StringVar(&osRegion, "region", "us-east-1", "region")
	settingsObjectStoreCmd.Flags().StringVar(&osAccessKey, "access-key", "", "access key (required)")
	settingsObjectStoreCmd.Flags().StringVar(&osSecretKey, "secret-key", "", "secret key (required)")
	settingsObjectStoreCmd.Flags().StringVar(&osPrefix, "prefix", "", "key prefix for replicated backups")
	settingsObjectStoreCmd.MarkFlagRequired("bucket")
	settingsObjectStoreCmd.MarkFlagRequired("access-key")
	settingsObjectStoreCmd.MarkFlagRequired("secret-key")

	settingsCmd.AddCommand(settingsSourceCmd, settingsSourceRemoveCmd, settingsObjectStoreCmd)
}

var settingsSourceCmd = &cobra.Command{
	Use:   "source",
	Short: "store the source-control token for private repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.SetSourceIntegration(sourceUsername, sourceToken); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Source integration stored (token encrypted at rest)")
		return nil
	},
}

var settingsSourceRemoveCmd = &cobra.Command{
	Use:   "source-remove",
	Short: "remove the source-control integration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		if err := c.Store.DeleteSourceIntegration(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Source integration removed")
		return nil
	},
}

var settingsObjectStoreCmd = &cobra.Command{
	Use:   "object-store",
	Short: "configure the S3-compatible backup replication target",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCore()
		if err != nil {
			return err
		}
		cfg := &store.ObjectStoreConfig{
			Endpoint:  osEndpoint,
			Bucket:    osBucket,
			Region:    osRegion,
			AccessKey: osAccessKey,
			Prefix:    osPrefix,
		}
		if err := c.SetObjectStore(cmd.Context(), cfg, osSecretKey); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Object store verified and stored (secret key encrypted at rest)")
		return nil
	},
}
