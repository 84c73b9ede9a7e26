package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harborlock/credvault"
)

var exportCmd = &cobra.Command{
	Use:   "export [output-file]",
	Short: "Export credentials to an encrypted container",
	Long: `Export all active credentials for the current tenant into a
passphrase-encrypted container file. The container can be imported later
into any store backend.`,
	Args: cobra.ExactArgs(1),
	RunE: exportCredentials,
}

var importCmd = &cobra.Command{
	Use:   "import [container-file]",
	Short: "Import credentials from an encrypted container",
	Long: `Restore credentials from a container produced by export. Records
that already exist are skipped, so repeated imports are safe.`,
	Args: cobra.ExactArgs(1),
	RunE: importCredentials,
}

var exportPassphrase string

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)

	exportCmd.Flags().StringVar(&exportPassphrase, "passphrase", "", "container passphrase (or CREDVAULT_EXPORT_PASSPHRASE env var)")
	importCmd.Flags().StringVar(&exportPassphrase, "passphrase", "", "container passphrase (or CREDVAULT_EXPORT_PASSPHRASE env var)")
}

func containerPassphrase() (string, error) {
	if exportPassphrase != "" {
		return exportPassphrase, nil
	}
	if env := os.Getenv("CREDVAULT_EXPORT_PASSPHRASE"); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("passphrase is required. Use --passphrase flag or CREDVAULT_EXPORT_PASSPHRASE environment variable")
}

func exportCredentials(cmd *cobra.Command, args []string) error {
	passphrase, err := containerPassphrase()
	if err != nil {
		return err
	}

	container, err := service.ExportCredentials(cmd.Context(), currentOwner(), passphrase)
	if err != nil {
		return fmt.Errorf("failed to export credentials: %w", err)
	}

	data, err := json.MarshalIndent(container, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize container: %w", err)
	}
	if err = os.WriteFile(args[0], data, 0600); err != nil {
		return fmt.Errorf("failed to write container file: %w", err)
	}

	fmt.Printf("Exported to %s\n", args[0])
	fmt.Printf("Export ID: %s\n", container.ExportID)
	fmt.Printf("Checksum: %s\n", container.Checksum)
	return nil
}

func importCredentials(cmd *cobra.Command, args []string) error {
	passphrase, err := containerPassphrase()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read container file: %w", err)
	}

	var container credvault.ExportContainer
	if err = json.Unmarshal(data, &container); err != nil {
		return fmt.Errorf("failed to parse container file: %w", err)
	}

	count, err := service.ImportCredentials(cmd.Context(), currentOwner(), &container, passphrase)
	if err != nil {
		return fmt.Errorf("failed to import credentials: %w", err)
	}

	fmt.Printf("Imported %d credential(s) from %s\n", count, args[0])
	return nil
}
