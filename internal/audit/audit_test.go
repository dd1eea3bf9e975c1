package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/apetrenko/lottery-backoffice/internal/model"
)

func TestRecord(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := NewZapRecorder(zap.New(core))

	rec.Record(context.Background(), model.AuditEntry{
		Action:   model.AuditPackActivated,
		StoreID:  "store-1",
		ActorID:  "user-1",
		TargetID: "pack-1",
		Values:   map[string]any{"bin_id": "bin-3"},
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "audit" {
		t.Fatalf("message = %q, want audit", entries[0].Message)
	}

	fields := entries[0].ContextMap()
	if fields["action"] != model.AuditPackActivated {
		t.Fatalf("action = %v, want %s", fields["action"], model.AuditPackActivated)
	}
	if fields["target_id"] != "pack-1" {
		t.Fatalf("target_id = %v, want pack-1", fields["target_id"])
	}
	values, ok := fields["values"].(map[string]any)
	if !ok || values["bin_id"] != "bin-3" {
		t.Fatalf("values = %v, want bin_id bin-3", fields["values"])
	}
}

func TestRecordOmitsEmptyTarget(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rec := NewZapRecorder(zap.New(core))

	rec.Record(context.Background(), model.AuditEntry{
		Action:  model.AuditBatchPackReceived,
		StoreID: "store-1",
		ActorID: "user-1",
	})

	fields := logs.All()[0].ContextMap()
	if _, ok := fields["target_id"]; ok {
		t.Fatal("target_id must be omitted when empty")
	}
	if _, ok := fields["values"]; ok {
		t.Fatal("values must be omitted when empty")
	}
}
