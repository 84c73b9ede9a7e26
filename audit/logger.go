// Package audit provides pluggable audit logging for the credential vault.
// Sinks are fire-and-forget from the service's point of view: a failing sink
// is logged by the caller, never propagated, and event payloads carry only
// non-secret context (identifiers, sizes, outcomes).
package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config defines audit logging configuration.
type Config struct {
	Enabled bool           `json:"enabled"`
	OrgID   string         `json:"org_id"`
	Type    ConfigType     `json:"type"`
	Options map[string]any `json:"options"` // Provider-specific options
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Logger is the sink interface consumed by the credential service.
type Logger interface {
	// Record writes a single event. Implementations must never block
	// indefinitely; failures are returned so the caller can log them,
	// but the caller is expected not to propagate them further.
	Record(event Event) error

	// Query reads back previously recorded events, newest first. Sinks
	// that cannot be read back (syslog) return an error.
	Query(options QueryOptions) (QueryResult, error)

	Close() error
}

// Event is a single audit record. Action names follow the lifecycle verbs:
// credential_created, credential_used, credential_updated,
// credential_deleted, credential_validated, credentials_listed,
// credentials_exported, credentials_imported.
type Event struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	OrgID        string         `json:"org_id"`
	ActorID      string         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	Success      bool           `json:"success"`
	CredentialID string         `json:"credential_id,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Error        string         `json:"error,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// QueryOptions filter audit events on read-back.
type QueryOptions struct {
	OrgID        string
	ActorID      string
	Action       string
	CredentialID string
	Success      *bool // nil = all, true = only success, false = only failures
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

// QueryResult contains the results of an audit query.
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an appropriate logger based on configuration.
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// parseOptions converts map[string]any to a specific options struct.
func parseOptions(options map[string]any, target any) error {
	if len(options) == 0 {
		return nil
	}

	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return nil
}
