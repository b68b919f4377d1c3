package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewLoggerWithService(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithService("curator")
	l.SetOutput(&buf)

	l.Info("started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "curator" {
		t.Fatalf("expected service field, got %+v", entry)
	}
	if entry["version"] == "" {
		t.Fatalf("expected version field, got %+v", entry)
	}
}

func TestServiceFieldSurvivesChaining(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithService("curator")
	l.SetOutput(&buf)

	l.WithError(errors.New("boom")).WithField("k", "v").Warn("failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "curator" || entry["k"] != "v" || entry["error"] != "boom" {
		t.Fatalf("chained entry missing fields: %+v", entry)
	}
}
