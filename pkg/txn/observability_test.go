package txn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ndjndj/dynamoid/internal/infra/commit/memory"
	"github.com/ndjndj/dynamoid/pkg/record"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated name")
	}
	rec.Observe(context.Background(), "transaction", true, 20*time.Millisecond)
	rec.Observe(context.Background(), "transaction", true, 30*time.Millisecond)
	rec.Observe(context.Background(), "transaction", false, 5*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if got := snap.DurationsMS["transaction"]; got != 55 {
		t.Fatalf("duration total = %v, want 55", got)
	}
	if snap.Results["transaction"]["success"] != 2 || snap.Results["transaction"]["error"] != 1 {
		t.Fatalf("results = %v", snap.Results)
	}
}

func TestExecuteObservesMetricsAndSpans(t *testing.T) {
	metrics := NewExpvarMetricsRecorder("")
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	store := memory.NewStore()
	def := &record.Definition{Table: "books", HashKey: "id"}
	rec, _ := def.New(map[string]any{"id": "b1"})

	if _, err := Execute(context.Background(), store, func(tx *Transaction) error {
		return tx.Upsert(context.Background(), rec, nil)
	}, WithMetrics(metrics), WithTracer(tracer)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := Execute(context.Background(), store, func(*Transaction) error {
		return errors.New("scope failure")
	}, WithMetrics(metrics), WithTracer(tracer)); err == nil {
		t.Fatalf("expected scope failure")
	}

	snap := metrics.Snapshot()
	if snap.Results["transaction"]["success"] != 1 || snap.Results["transaction"]["error"] != 1 {
		t.Fatalf("results = %v", snap.Results)
	}

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Operation != "transaction" || entries[0].Status != "success" {
		t.Fatalf("first span = %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Error != "scope failure" {
		t.Fatalf("second span = %+v", entries[1])
	}

	dec := json.NewDecoder(&buf)
	var lines int
	for dec.More() {
		var entry JSONTraceEntry
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("decode span line: %v", err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("serialized %d span lines, want 2", lines)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "transaction", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "transaction", false, 10*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var results *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "dynamoid_txn_operation_results_total" {
			results = mf
		}
	}
	if results == nil {
		t.Fatalf("results counter not registered")
	}
	total := 0.0
	for _, m := range results.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	if total != 2 {
		t.Fatalf("counter total = %v, want 2", total)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("double registration must fail")
	}
}

func TestZapLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))
	store := memory.NewStore()
	def := &record.Definition{Table: "books", HashKey: "id"}
	rec, _ := def.New(map[string]any{"id": "b1"})

	if _, err := Execute(context.Background(), store, func(tx *Transaction) error {
		return tx.Upsert(context.Background(), rec, nil)
	}, WithLogger(logger)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var staged, committed bool
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, "staged operation") {
			staged = true
		}
		if strings.Contains(entry.Message, "transaction committed") {
			committed = true
		}
	}
	if !staged || !committed {
		t.Fatalf("missing log entries, staged=%v committed=%v", staged, committed)
	}
}
