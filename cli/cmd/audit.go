package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harborlock/credvault/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search audit events",
	Long:  "Search recorded audit events with optional filters. Only file-backed audit sinks support queries.",
	RunE:  queryAudit,
}

var (
	auditAction       string
	auditCredentialID string
	auditFailuresOnly bool
	auditSince        string
	auditUntil        string
	auditLimit        int
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	auditQueryCmd.Flags().StringVar(&auditAction, "action", "", "filter by action (e.g. credential_created)")
	auditQueryCmd.Flags().StringVar(&auditCredentialID, "credential", "", "filter by credential ID")
	auditQueryCmd.Flags().BoolVar(&auditFailuresOnly, "failures", false, "show only failed operations")
	auditQueryCmd.Flags().StringVar(&auditSince, "since", "", "earliest event time, RFC 3339")
	auditQueryCmd.Flags().StringVar(&auditUntil, "until", "", "latest event time, RFC 3339")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 50, "maximum number of events")
	auditQueryCmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	sink, err := createAuditLogger()
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}
	defer sink.Close()

	if !viper.GetBool("audit.enabled") {
		return fmt.Errorf("audit logging is not enabled")
	}

	options := audit.QueryOptions{
		OrgID:        orgID,
		Action:       auditAction,
		CredentialID: auditCredentialID,
		Limit:        auditLimit,
	}
	if auditFailuresOnly {
		failed := false
		options.Success = &failed
	}
	if auditSince != "" {
		t, err := time.Parse(time.RFC3339, auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		options.Since = &t
	}
	if auditUntil != "" {
		t, err := time.Parse(time.RFC3339, auditUntil)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
		options.Until = &t
	}

	result, err := sink.Query(options)
	if err != nil {
		return fmt.Errorf("failed to query audit events: %w", err)
	}

	if outputJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(result.Events) == 0 {
		fmt.Println("No audit events found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tCREDENTIAL\tOK\tERROR")
	for _, event := range result.Events {
		ok := "yes"
		if !event.Success {
			ok = "no"
		}
		credID := event.CredentialID
		if credID == "" {
			credID = "-"
		}
		errMsg := event.Error
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			event.Timestamp.Format("2006-01-02 15:04:05"), event.Action, credID, ok, errMsg)
	}
	if err = w.Flush(); err != nil {
		return err
	}

	if result.HasMore {
		fmt.Printf("\nShowing %d of %d matching events. Use --limit to see more.\n",
			len(result.Events), result.Filtered)
	}
	return nil
}
