package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Debug command to show current configuration.
var debugConfigCmd = &cobra.Command{
	Use:   "debug-config",
	Short: "Show current configuration values",
	Long:  "Display the configuration values read from files, environment variables, and defaults.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.ConfigFileUsed() != "" {
			fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
		} else {
			fmt.Printf("Config file: none found\n")
		}

		fmt.Printf("\nEnvironment Variables (CREDVAULT_* prefix):\n")
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, "CREDVAULT_") {
				continue
			}
			name, value, _ := strings.Cut(env, "=")
			if isSensitiveFlag(name) {
				fmt.Printf("  %s=***REDACTED***\n", name)
			} else {
				fmt.Printf("  %s=%s\n", name, value)
			}
		}

		fmt.Printf("\nCurrent Configuration:\n")
		fmt.Printf("  Store Type: %s\n", viper.GetString("store.type"))
		fmt.Printf("  Org: %s\n", viper.GetString("vault.org"))
		fmt.Printf("  User: %s\n", viper.GetString("vault.user"))
		fmt.Printf("  Master Secret: %s\n", func() string {
			if os.Getenv("CREDVAULT_MASTER_SECRET") != "" {
				return "***SET***"
			}
			return "***NOT SET***"
		}())

		fmt.Printf("\nAudit Configuration:\n")
		fmt.Printf("  Enabled: %v\n", viper.GetBool("audit.enabled"))
		fmt.Printf("  Type: %s\n", viper.GetString("audit.type"))
		fmt.Printf("  File Path: %s\n", viper.GetString("audit.options.file_path"))

		fmt.Printf("\nChanged Flags:\n")
		cmd.Root().PersistentFlags().VisitAll(func(flag *pflag.Flag) {
			if !flag.Changed {
				return
			}
			if isSensitiveFlag(flag.Name) {
				fmt.Printf("  --%s=[REDACTED]\n", flag.Name)
			} else {
				fmt.Printf("  --%s=%s\n", flag.Name, flag.Value.String())
			}
		})

		storeType := strings.ToLower(viper.GetString("store.type"))
		switch storeType {
		case "filesystem":
			fmt.Printf("\nFilesystem Configuration:\n")
			fmt.Printf("  Base Path: %s\n", viper.GetString("store.filesystem.base_path"))
		case "badger":
			fmt.Printf("\nBadger Configuration:\n")
			fmt.Printf("  Data Dir: %s\n", viper.GetString("store.badger.data_dir"))
			fmt.Printf("  Sync Writes: %v\n", viper.GetBool("store.badger.sync_writes"))
		case "postgres":
			fmt.Printf("\nPostgres Configuration:\n")
			fmt.Printf("  DSN: %s\n", func() string {
				if viper.GetString("store.postgres.dsn") != "" {
					return "***SET***"
				}
				return "***NOT SET***"
			}())
		case "s3":
			fmt.Printf("\nS3 Configuration:\n")
			fmt.Printf("  Endpoint: %s\n", viper.GetString("store.s3.endpoint"))
			fmt.Printf("  Region: %s\n", viper.GetString("store.s3.region"))
			fmt.Printf("  Bucket: %s\n", viper.GetString("store.s3.bucket"))
			fmt.Printf("  Prefix: %s\n", viper.GetString("store.s3.key_prefix"))
			fmt.Printf("  Use SSL: %v\n", viper.GetBool("store.s3.use_ssl"))
			fmt.Printf("  Access Key: %s\n", func() string {
				if viper.GetString("store.s3.access_key_id") != "" {
					return "***SET***"
				}
				return "***NOT SET***"
			}())
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugConfigCmd)
}
