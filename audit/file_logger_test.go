package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestFileLogger(t *testing.T) *FileLogger {
	t.Helper()

	logger, err := NewFileLogger(&Config{
		Enabled: true,
		OrgID:   "acme",
		Type:    FileAuditType,
		Options: map[string]any{
			"file_path": filepath.Join(t.TempDir(), "audit.log"),
		},
	})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestFileLoggerRecordAndQuery(t *testing.T) {
	logger := newTestFileLogger(t)

	events := []Event{
		{Action: "credential_created", Success: true, CredentialID: "c1", ActorID: "alice"},
		{Action: "credential_used", Success: true, CredentialID: "c1", ActorID: "alice"},
		{Action: "credential_used", Success: false, CredentialID: "c2", ActorID: "bob", Error: "decryption failed"},
	}
	for _, event := range events {
		if err := logger.Record(event); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	result, err := logger.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.TotalCount != 3 {
		t.Errorf("expected 3 total events, got %d", result.TotalCount)
	}
	if len(result.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(result.Events))
	}

	// Record fills in defaults.
	for _, event := range result.Events {
		if event.ID == "" {
			t.Error("event ID should be assigned")
		}
		if event.Timestamp.IsZero() {
			t.Error("event timestamp should be assigned")
		}
		if event.OrgID != "acme" {
			t.Errorf("org should default to the configured one, got %q", event.OrgID)
		}
	}
}

func TestFileLoggerQueryFilters(t *testing.T) {
	logger := newTestFileLogger(t)

	for _, event := range []Event{
		{Action: "credential_created", Success: true, CredentialID: "c1", ActorID: "alice"},
		{Action: "credential_used", Success: true, CredentialID: "c1", ActorID: "alice"},
		{Action: "credential_used", Success: false, CredentialID: "c2", ActorID: "bob"},
		{Action: "credential_deleted", Success: true, CredentialID: "c2", ActorID: "bob"},
	} {
		if err := logger.Record(event); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	byAction, err := logger.Query(QueryOptions{Action: "credential_used"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(byAction.Events) != 2 {
		t.Errorf("expected 2 credential_used events, got %d", len(byAction.Events))
	}

	failed := false
	failures, err := logger.Query(QueryOptions{Success: &failed})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(failures.Events) != 1 || failures.Events[0].CredentialID != "c2" {
		t.Errorf("failure filter returned wrong events: %+v", failures.Events)
	}

	byActor, err := logger.Query(QueryOptions{ActorID: "bob"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(byActor.Events) != 2 {
		t.Errorf("expected 2 events for bob, got %d", len(byActor.Events))
	}

	byCredential, err := logger.Query(QueryOptions{CredentialID: "c1"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(byCredential.Events) != 2 {
		t.Errorf("expected 2 events for c1, got %d", len(byCredential.Events))
	}
}

func TestFileLoggerQueryLimit(t *testing.T) {
	logger := newTestFileLogger(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := logger.Record(Event{
			Action:    "credential_used",
			Success:   true,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	result, err := logger.Query(QueryOptions{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("expected 2 events with limit, got %d", len(result.Events))
	}
	if !result.HasMore {
		t.Error("HasMore should be set when results were truncated")
	}
	// Newest first.
	if !result.Events[0].Timestamp.After(result.Events[1].Timestamp) {
		t.Error("results should be ordered newest first")
	}
}

func TestFileLoggerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	config := &Config{
		Enabled: true,
		OrgID:   "acme",
		Type:    FileAuditType,
		Options: map[string]any{"file_path": path},
	}

	first, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err = first.Record(Event{Action: "credential_created", Success: true}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	first.Close()

	// A new logger over the same file sees the earlier events.
	second, err := NewFileLogger(config)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer second.Close()

	if err = second.Record(Event{Action: "credential_used", Success: true}); err != nil {
		t.Fatalf("Record after reopen failed: %v", err)
	}

	result, err := second.Query(QueryOptions{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if result.TotalCount != 2 {
		t.Errorf("expected both sessions' events, got %d", result.TotalCount)
	}
}

func TestNewFileLoggerMissingPath(t *testing.T) {
	_, err := NewFileLogger(&Config{Enabled: true, Type: FileAuditType})
	if err == nil {
		t.Error("expected error without file_path")
	}
}

func TestNewLoggerFactory(t *testing.T) {
	if _, err := NewLogger(nil); err != nil {
		t.Errorf("nil config should yield a no-op logger: %v", err)
	}

	disabled, err := NewLogger(&Config{Enabled: false, Type: FileAuditType})
	if err != nil {
		t.Fatalf("disabled config failed: %v", err)
	}
	if _, ok := disabled.(*NoOpLogger); !ok {
		t.Errorf("disabled config should yield NoOpLogger, got %T", disabled)
	}

	if _, err = NewLogger(&Config{Enabled: true, Type: "kafka"}); err == nil {
		t.Error("expected error for unknown sink type")
	}

	fileLogger, err := NewLogger(&Config{
		Enabled: true,
		Type:    FileAuditType,
		Options: map[string]any{"file_path": filepath.Join(t.TempDir(), "audit.log")},
	})
	if err != nil {
		t.Fatalf("file config failed: %v", err)
	}
	defer fileLogger.Close()
	if _, ok := fileLogger.(*FileLogger); !ok {
		t.Errorf("file config should yield FileLogger, got %T", fileLogger)
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()
	if err := logger.Record(Event{Action: "credential_created"}); err != nil {
		t.Errorf("no-op Record should never fail: %v", err)
	}
	result, err := logger.Query(QueryOptions{})
	if err != nil {
		t.Errorf("no-op Query should never fail: %v", err)
	}
	if len(result.Events) != 0 {
		t.Error("no-op Query should return nothing")
	}
	if err = logger.Close(); err != nil {
		t.Errorf("no-op Close should never fail: %v", err)
	}
}
