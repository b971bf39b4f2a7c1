package logger

import (
	"testing"
)

func TestMockLogger(t *testing.T) {
	mock := NewMockLogger()

	mock.Info("seeded control statuses", "org_id", "o1", "count", 3)
	mock.Debug("rule lookup", "rule_id", "iam_root_mfa")
	mock.Warn("cascade failed", "control_id", "CC6.1")
	mock.Error("ingest failed", "error", "bad payload")

	if len(*mock.Messages) != 4 {
		t.Errorf("expected 4 messages, got %d", len(*mock.Messages))
	}

	if !mock.HasMessage("INFO", "seeded control statuses") {
		t.Error("expected INFO message")
	}
	if !mock.HasMessageContaining("WARN", "cascade") {
		t.Error("expected WARN message containing 'cascade'")
	}
}

func TestMockLoggerWith(t *testing.T) {
	mock := NewMockLogger()

	scoped := mock.With("org_id", "o1")
	scoped.Info("adopted framework")

	// Child loggers share the parent's message slice.
	if !mock.HasMessage("INFO", "adopted framework") {
		t.Error("expected message recorded through scoped logger")
	}

	msgs := *mock.Messages
	if len(msgs) != 1 || len(msgs[0].Args) != 2 {
		t.Errorf("expected merged attrs on message, got %+v", msgs)
	}
}

func TestSetGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	mock := NewMockLogger()
	SetGlobalLogger(mock)

	Info("hello")
	if !mock.HasMessage("INFO", "hello") {
		t.Error("global helpers should route to the installed logger")
	}
}
