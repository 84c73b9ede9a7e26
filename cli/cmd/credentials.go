package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborlock/credvault"
)

var credentialsCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage stored credentials",
	Long:  "Create, retrieve, update, and manage encrypted third-party credentials.",
}

var createCredentialCmd = &cobra.Command{
	Use:   "create",
	Short: "Store a new credential",
	Long:  "Encrypt and store a new credential. Secret data can be provided via stdin, file, or inline JSON.",
	RunE:  createCredential,
}

var getCredentialCmd = &cobra.Command{
	Use:   "get [credential-id]",
	Short: "Retrieve and decrypt a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  getCredential,
}

var listCredentialsCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	Long:  "List credential metadata without decrypting any secrets.",
	RunE:  listCredentials,
}

var updateCredentialCmd = &cobra.Command{
	Use:   "update [credential-id]",
	Short: "Update an existing credential",
	Long:  "Update a credential's secret, label, metadata, or expiry.",
	Args:  cobra.ExactArgs(1),
	RunE:  updateCredential,
}

var deleteCredentialCmd = &cobra.Command{
	Use:   "delete [credential-id]",
	Short: "Delete a credential",
	Long:  "Deactivate a credential. The record is retained for audit purposes but no longer retrievable.",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteCredential,
}

var validateCredentialCmd = &cobra.Command{
	Use:   "validate [credential-id]",
	Short: "Check that a credential decrypts and has not expired",
	Args:  cobra.ExactArgs(1),
	RunE:  validateCredential,
}

var (
	credProvider    string
	credLabel       string
	credFile        string
	credData        string
	credMetadata    []string
	credExpires     string
	credClearExpiry bool
	outputJSON      bool
	showSecret      bool

	filterProvider string
)

func init() {
	rootCmd.AddCommand(credentialsCmd)

	credentialsCmd.AddCommand(createCredentialCmd)
	credentialsCmd.AddCommand(getCredentialCmd)
	credentialsCmd.AddCommand(listCredentialsCmd)
	credentialsCmd.AddCommand(updateCredentialCmd)
	credentialsCmd.AddCommand(deleteCredentialCmd)
	credentialsCmd.AddCommand(validateCredentialCmd)

	createCredentialCmd.Flags().StringVarP(&credProvider, "provider", "P", "", "provider type (GOOGLE_SHEETS, SLACK, GITHUB, STRIPE, WEBHOOK, CUSTOM)")
	createCredentialCmd.Flags().StringVarP(&credLabel, "label", "l", "", "human-readable label")
	createCredentialCmd.Flags().StringVarP(&credFile, "file", "f", "", "read secret JSON from file (use '-' for stdin)")
	createCredentialCmd.Flags().StringVarP(&credData, "data", "d", "", "secret JSON as string")
	createCredentialCmd.Flags().StringSliceVarP(&credMetadata, "metadata", "m", nil, "metadata entries as key=value")
	createCredentialCmd.Flags().StringVar(&credExpires, "expires", "", "expiry time, RFC 3339")

	getCredentialCmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	getCredentialCmd.Flags().BoolVar(&showSecret, "show-secret", false, "print the decrypted secret")

	listCredentialsCmd.Flags().StringVarP(&filterProvider, "provider", "P", "", "filter by provider type")
	listCredentialsCmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	updateCredentialCmd.Flags().StringVarP(&credLabel, "label", "l", "", "new label")
	updateCredentialCmd.Flags().StringVarP(&credFile, "file", "f", "", "read new secret JSON from file (use '-' for stdin)")
	updateCredentialCmd.Flags().StringVarP(&credData, "data", "d", "", "new secret JSON as string")
	updateCredentialCmd.Flags().StringSliceVarP(&credMetadata, "metadata", "m", nil, "replacement metadata entries as key=value")
	updateCredentialCmd.Flags().StringVar(&credExpires, "expires", "", "new expiry time, RFC 3339")
	updateCredentialCmd.Flags().BoolVar(&credClearExpiry, "clear-expires", false, "remove the expiry time")
}

// readSecretInput resolves the secret payload from --data, --file, or stdin.
func readSecretInput() (credvault.SecretMap, error) {
	var raw []byte
	switch {
	case credData != "":
		raw = []byte(credData)
	case credFile == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = data
	case credFile != "":
		data, err := os.ReadFile(credFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		raw = data
	default:
		return nil, nil
	}

	var secret credvault.SecretMap
	if err := json.Unmarshal(raw, &secret); err != nil {
		return nil, fmt.Errorf("secret data is not a valid JSON object: %w", err)
	}
	return secret, nil
}

func parseMetadataFlags(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata entry %q, expected key=value", entry)
		}
		out[key] = value
	}
	return out, nil
}

func parseExpiresFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry time %q, expected RFC 3339: %w", value, err)
	}
	return &t, nil
}

func createCredential(cmd *cobra.Command, args []string) error {
	secret, err := readSecretInput()
	if err != nil {
		return err
	}
	if secret == nil {
		return fmt.Errorf("secret data is required. Use --data, --file, or --file -")
	}

	metadata, err := parseMetadataFlags(credMetadata)
	if err != nil {
		return err
	}
	expiresAt, err := parseExpiresFlag(credExpires)
	if err != nil {
		return err
	}

	summary, err := service.CreateCredential(cmd.Context(), credvault.CreateRequest{
		Owner:     currentOwner(),
		Provider:  credvault.Provider(strings.ToUpper(credProvider)),
		Label:     credLabel,
		Secret:    secret,
		Metadata:  metadata,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	fmt.Printf("Credential '%s' created\n", summary.Label)
	fmt.Printf("ID: %s, Provider: %s\n", summary.ID, summary.Provider)
	return nil
}

func getCredential(cmd *cobra.Command, args []string) error {
	result, err := service.GetCredential(cmd.Context(), args[0], currentOwner())
	if err != nil {
		return fmt.Errorf("failed to get credential: %w", err)
	}

	if outputJSON {
		output := map[string]any{"summary": result.Summary}
		if showSecret {
			output["secret"] = result.Secret
		}
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printSummary(&result.Summary)
	if showSecret {
		fmt.Println("\n--- Secret ---")
		data, err := json.MarshalIndent(result.Secret, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal secret: %w", err)
		}
		fmt.Println(string(data))
	}
	return nil
}

func printSummary(s *credvault.CredentialSummary) {
	fmt.Printf("ID: %s\n", s.ID)
	fmt.Printf("Provider: %s\n", s.Provider)
	fmt.Printf("Label: %s\n", s.Label)
	fmt.Printf("Created: %s\n", s.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", s.UpdatedAt.Format("2006-01-02 15:04:05"))
	if s.LastUsedAt != nil {
		fmt.Printf("Last Used: %s\n", s.LastUsedAt.Format("2006-01-02 15:04:05"))
	}
	if s.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", s.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	if len(s.Metadata) > 0 {
		fmt.Println("Metadata:")
		for k, v := range s.Metadata {
			fmt.Printf("  %s: %s\n", k, v)
		}
	}
}

func listCredentials(cmd *cobra.Command, args []string) error {
	var provider credvault.Provider
	if filterProvider != "" {
		provider = credvault.Provider(strings.ToUpper(filterProvider))
	}

	summaries, err := service.ListCredentials(cmd.Context(), currentOwner(), provider)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if outputJSON {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		fmt.Println("No credentials found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tLABEL\tCREATED\tEXPIRES")
	for _, s := range summaries {
		expires := "-"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Provider, s.Label, s.CreatedAt.Format("2006-01-02"), expires)
	}
	return w.Flush()
}

func updateCredential(cmd *cobra.Command, args []string) error {
	secret, err := readSecretInput()
	if err != nil {
		return err
	}
	metadata, err := parseMetadataFlags(credMetadata)
	if err != nil {
		return err
	}
	expiresAt, err := parseExpiresFlag(credExpires)
	if err != nil {
		return err
	}

	req := credvault.UpdateRequest{
		Secret:      secret,
		Metadata:    metadata,
		ExpiresAt:   expiresAt,
		ClearExpiry: credClearExpiry,
	}
	if cmd.Flags().Changed("label") {
		req.Label = &credLabel
	}

	summary, err := service.UpdateCredential(cmd.Context(), args[0], currentOwner(), req)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	fmt.Printf("Credential '%s' updated\n", summary.Label)
	return nil
}

func deleteCredential(cmd *cobra.Command, args []string) error {
	if err := service.DeleteCredential(cmd.Context(), args[0], currentOwner()); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	fmt.Printf("Credential %s deleted\n", args[0])
	return nil
}

func validateCredential(cmd *cobra.Command, args []string) error {
	if err := service.ValidateCredential(cmd.Context(), args[0], currentOwner()); err != nil {
		return fmt.Errorf("credential is not valid: %w", err)
	}
	fmt.Printf("Credential %s is valid\n", args[0])
	return nil
}
