package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harborlock/credvault"
	"github.com/harborlock/credvault/audit"
	"github.com/harborlock/credvault/persist"
)

var (
	cfgFile string
	orgID   string
	userID  string

	service credvault.CredentialService
	store   credvault.Store
	logger  zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "credvault",
	Short: "Multi-tenant encrypted credential storage",
	Long: `A multi-tenant vault for third-party credentials. Secrets are sealed
with AES-256-GCM envelopes derived from a master secret via PBKDF2; only
clear metadata ever leaves the vault unencrypted.`,
	PersistentPreRunE: initializeService,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if service != nil {
			return service.Close()
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.credvault.yaml)")
	rootCmd.PersistentFlags().StringVarP(&orgID, "org", "o", "", "organization identifier")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user identifier")
	rootCmd.PersistentFlags().String("store-type", "", "storage backend (memory, filesystem, badger, postgres, s3)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	bindFlagOrPanic("vault.org", "org")
	bindFlagOrPanic("vault.user", "user")
	bindFlagOrPanic("store.type", "store-type")
	bindFlagOrPanic("log.verbose", "verbose")

	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit sink type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")

	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint URL")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use SSL for S3 connections")

	bindFlagOrPanic("store.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("store.s3.region", "s3-region")
	bindFlagOrPanic("store.s3.bucket", "s3-bucket")
	bindFlagOrPanic("store.s3.key_prefix", "s3-prefix")
	bindFlagOrPanic("store.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("store.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("store.s3.use_ssl", "s3-use-ssl")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	// .env files are a convenience for local development; absence is fine.
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/credvault")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".credvault")
	}

	viper.SetEnvPrefix("CREDVAULT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// No config file is fine; defaults and env vars apply.
	}
}

func setDefaults() {
	viper.SetDefault("store.type", "filesystem")
	viper.SetDefault("store.filesystem.base_path", ".credvault")
	viper.SetDefault("store.badger.data_dir", ".credvault/badger")

	viper.SetDefault("store.s3.region", "us-east-1")
	viper.SetDefault("store.s3.use_ssl", true)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", "file")
	viper.SetDefault("audit.options.file_path", "audit.log")

	viper.SetDefault("log.verbose", false)
}

func initializeService(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" || cmd.Name() == "debug-config" {
		return nil
	}

	level := zerolog.InfoLevel
	if viper.GetBool("log.verbose") {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	orgID = viper.GetString("vault.org")
	userID = viper.GetString("vault.user")
	if orgID == "" || userID == "" {
		return fmt.Errorf("organization and user are required. Use --org/--user flags or CREDVAULT_VAULT_ORG/CREDVAULT_VAULT_USER environment variables")
	}

	masterKey, err := credvault.NewEnvMasterKey("CREDVAULT_MASTER_SECRET")
	if err != nil {
		return fmt.Errorf("failed to load master secret: %w", err)
	}

	store, err = createStore(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	auditLogger, err := createAuditLogger()
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	service, err = credvault.NewService(credvault.ServiceOptions{
		Store:     store,
		MasterKey: masterKey,
		Audit:     auditLogger,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		auditLogger.Close()
		return fmt.Errorf("failed to create credential service: %w", err)
	}
	return nil
}

func currentOwner() credvault.Owner {
	return credvault.Owner{OrgID: orgID, UserID: userID}
}

func createStore(ctx context.Context) (credvault.Store, error) {
	storeType := persist.StoreType(strings.ToLower(viper.GetString("store.type")))

	var config map[string]any
	switch storeType {
	case persist.StoreTypeMemory:
	case persist.StoreTypeFileSystem:
		config = map[string]any{
			"base_path": viper.GetString("store.filesystem.base_path"),
		}
	case persist.StoreTypeBadger:
		config = map[string]any{
			"data_dir":    viper.GetString("store.badger.data_dir"),
			"sync_writes": viper.GetBool("store.badger.sync_writes"),
		}
	case persist.StoreTypePostgres:
		config = map[string]any{
			"dsn": viper.GetString("store.postgres.dsn"),
		}
	case persist.StoreTypeS3:
		config = map[string]any{
			"endpoint":          viper.GetString("store.s3.endpoint"),
			"region":            viper.GetString("store.s3.region"),
			"bucket":            viper.GetString("store.s3.bucket"),
			"key_prefix":        viper.GetString("store.s3.key_prefix"),
			"access_key_id":     viper.GetString("store.s3.access_key_id"),
			"secret_access_key": viper.GetString("store.s3.secret_access_key"),
			"use_ssl":           viper.GetBool("store.s3.use_ssl"),
		}
	default:
		return nil, fmt.Errorf("unsupported store type: %s. Supported types: memory, filesystem, badger, postgres, s3", storeType)
	}

	return persist.NewStore(ctx, persist.StoreConfig{Type: storeType, Config: config})
}

func createAuditLogger() (audit.Logger, error) {
	return audit.NewLogger(&audit.Config{
		Enabled: viper.GetBool("audit.enabled"),
		OrgID:   viper.GetString("vault.org"),
		Type:    audit.ConfigType(viper.GetString("audit.type")),
		Options: map[string]any{
			"file_path": viper.GetString("audit.options.file_path"),
		},
	})
}

func isSensitiveFlag(name string) bool {
	sensitive := []string{"passphrase", "password", "secret", "key", "token"}
	lower := strings.ToLower(name)
	for _, s := range sensitive {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
