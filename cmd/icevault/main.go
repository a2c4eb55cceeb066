// Command icevault backs Apache Iceberg tables up into an object store
// repository and restores them. Every flag can also be set through an
// ICEVAULT_* environment variable, e.g. ICEVAULT_CATALOG_URI.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openlake/icevault"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "icevault",
		Short:         "Point-in-time backup and restore for Apache Iceberg tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("catalog-uri", "", "Iceberg REST catalog endpoint")
	flags.String("catalog-name", "rest", "catalog name")
	flags.String("catalog-token", "", "bearer token for the catalog")
	flags.String("s3-region", "", "object store region")
	flags.String("s3-endpoint", "", "object store endpoint (MinIO etc.)")
	flags.String("s3-access-key", "", "object store access key id")
	flags.String("s3-secret-key", "", "object store secret access key")
	flags.Bool("s3-path-style", false, "use path-style object store addressing")
	flags.String("backup-bucket", "", "bucket holding backup repositories")
	flags.String("backup-prefix", "", "key prefix inside the backup bucket")
	flags.Int("max-retries", 3, "retries for object store operations")
	flags.Duration("retry-backoff", time.Second, "initial retry backoff")
	flags.Bool("verbose", false, "enable debug logging")

	v.SetEnvPrefix("ICEVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	cobra.CheckErr(v.BindPFlags(flags))

	root.AddCommand(newBackupCmd(v), newRestoreCmd(v), newListCmd(v))
	return root
}

func newLogger(v *viper.Viper) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if v.GetBool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func newClient(cmd *cobra.Command, v *viper.Viper, logger *zap.Logger) (*icevault.Client, error) {
	opts := []icevault.Option{
		icevault.WithCatalog(v.GetString("catalog-uri")),
		icevault.WithCatalogName(v.GetString("catalog-name")),
		icevault.WithToken(v.GetString("catalog-token")),
		icevault.WithBackupBucket(v.GetString("backup-bucket"), v.GetString("backup-prefix")),
		icevault.WithMaxRetries(v.GetInt("max-retries")),
		icevault.WithRetryBackoff(v.GetDuration("retry-backoff")),
		icevault.WithS3(&icevault.S3Config{
			Region:          v.GetString("s3-region"),
			Endpoint:        v.GetString("s3-endpoint"),
			AccessKeyID:     v.GetString("s3-access-key"),
			SecretAccessKey: v.GetString("s3-secret-key"),
			ForcePathStyle:  v.GetBool("s3-path-style"),
		}),
	}
	return icevault.NewClient(cmd.Context(), logger, opts...)
}

func newBackupCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <database> <table> <backup-name>",
		Short: "Back a table up, appending one point in time to the backup's chain",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := newClient(cmd, v, logger)
			if err != nil {
				return err
			}

			pitID, err := client.Backup(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pitID)
			return nil
		},
	}
}

func newRestoreCmd(v *viper.Viper) *cobra.Command {
	var pitID string

	cmd := &cobra.Command{
		Use:   "restore <backup-name> <target-database> <target-table> <target-location>",
		Short: "Restore a backup to a new table location and register it",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := newClient(cmd, v, logger)
			if err != nil {
				return err
			}

			metadataLocation, err := client.Restore(cmd.Context(), icevault.RestoreRequest{
				BackupName:     args[0],
				PitID:          pitID,
				TargetDatabase: args[1],
				TargetTable:    args[2],
				TargetLocation: args[3],
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), metadataLocation)
			return nil
		},
	}
	cmd.Flags().StringVar(&pitID, "pit", "", "point-in-time id to restore (default: chain head)")
	return cmd
}

func newListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list <backup-name>",
		Short: "List a backup's point-in-time chain, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := newClient(cmd, v, logger)
			if err != nil {
				return err
			}

			idx, err := client.ListPits(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, pit := range idx.Pits {
				parent := pit.ParentPitID
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tparent=%s\n",
					pit.PitID, pit.CreatedAt.Format(time.RFC3339), parent)
			}
			return nil
		},
	}
}
