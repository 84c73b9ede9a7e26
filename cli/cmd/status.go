package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check vault connectivity",
	Long:  "Verify that the configured storage backend is reachable.",
	RunE:  showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Printf("Store type: %s\n", store.GetType())
	fmt.Printf("Tenant: %s/%s\n", orgID, userID)
	fmt.Printf("Audit enabled: %v\n", viper.GetBool("audit.enabled"))

	if err := store.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("store is not reachable: %w", err)
	}
	fmt.Println("Store: OK")
	return nil
}
