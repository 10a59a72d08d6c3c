package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ndjndj/dynamoid/pkg/record"
)

func put(table, id string, attrs map[string]any) record.WriteRequest {
	item := map[string]any{"id": id}
	for k, v := range attrs {
		item[k] = v
	}
	return record.WriteRequest{
		Kind:          record.WritePut,
		Table:         table,
		HashAttribute: "id",
		Key:           map[string]any{"id": id},
		Item:          item,
	}
}

func TestCommitAppliesWholeBatch(t *testing.T) {
	store := NewStore()
	err := store.Commit(context.Background(), []record.WriteRequest{
		put("books", "b1", map[string]any{"title": "one"}),
		put("books", "b2", map[string]any{"title": "two"}),
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if store.Len("books") != 2 {
		t.Fatalf("rows = %d, want 2", store.Len("books"))
	}
	item, ok := store.Load("books", map[string]any{"id": "b2"})
	if !ok || item["title"] != "two" {
		t.Fatalf("row = %v (ok=%v)", item, ok)
	}
}

func TestCommitRejectsOversizedBatch(t *testing.T) {
	store := NewStore()
	batch := make([]record.WriteRequest, 0, record.MaxTransactItems+1)
	for i := 0; i <= record.MaxTransactItems; i++ {
		batch = append(batch, put("bulk", fmt.Sprintf("r%d", i), nil))
	}
	err := store.Commit(context.Background(), batch)
	if !errors.Is(err, record.ErrTooManyOperations) {
		t.Fatalf("err = %v, want ErrTooManyOperations", err)
	}
	if store.Len("bulk") != 0 {
		t.Fatalf("oversized batch must not apply")
	}
}

func TestCommitRejectsDuplicateKeys(t *testing.T) {
	store := NewStore()
	err := store.Commit(context.Background(), []record.WriteRequest{
		put("books", "b1", map[string]any{"title": "one"}),
		put("books", "b2", nil),
		put("books", "b1", map[string]any{"title": "two"}),
	})
	var ce record.CommitError
	if !errors.As(err, &ce) || !errors.Is(err, record.ErrDuplicateKeyInBatch) {
		t.Fatalf("err = %v, want duplicate key rejection", err)
	}
	if len(ce.Reasons) != 2 || ce.Reasons[0].Index != 0 || ce.Reasons[1].Index != 2 {
		t.Fatalf("reasons = %+v", ce.Reasons)
	}
	if store.Len("books") != 0 {
		t.Fatalf("nothing may apply on duplicate rejection")
	}
}

func TestConditionalChecksAreAllOrNothing(t *testing.T) {
	store := NewStore()
	if err := store.Commit(context.Background(), []record.WriteRequest{
		put("books", "b1", map[string]any{"title": "existing"}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	conflicting := put("books", "b1", map[string]any{"title": "clobber"})
	conflicting.Kind = record.WritePutIfAbsent
	conflicting.Condition = record.Condition{HashNotExists: true}
	err := store.Commit(context.Background(), []record.WriteRequest{
		put("books", "b2", map[string]any{"title": "innocent"}),
		conflicting,
	})
	var ce record.CommitError
	if !errors.As(err, &ce) || !errors.Is(err, record.ErrConditionFailed) {
		t.Fatalf("err = %v, want condition failure", err)
	}
	if len(ce.Reasons) != 1 || ce.Reasons[0].Index != 1 || ce.Reasons[0].Code != "ConditionalCheckFailed" {
		t.Fatalf("reasons = %+v", ce.Reasons)
	}
	if _, ok := store.Load("books", map[string]any{"id": "b2"}); ok {
		t.Fatalf("innocent write applied from a rejected batch")
	}
	item, _ := store.Load("books", map[string]any{"id": "b1"})
	if item["title"] != "existing" {
		t.Fatalf("row = %v", item)
	}
}

func TestDeleteRequiresExistence(t *testing.T) {
	store := NewStore()
	del := record.WriteRequest{
		Kind:          record.WriteDelete,
		Table:         "books",
		HashAttribute: "id",
		Key:           map[string]any{"id": "ghost"},
		Condition:     record.Condition{HashExists: true},
	}
	if err := store.Commit(context.Background(), []record.WriteRequest{del}); !errors.Is(err, record.ErrConditionFailed) {
		t.Fatalf("err = %v, want condition failure", err)
	}

	if err := store.Commit(context.Background(), []record.WriteRequest{put("books", "ghost", nil)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Commit(context.Background(), []record.WriteRequest{del}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len("books") != 0 {
		t.Fatalf("row not deleted")
	}
}

func TestLockConditionComparesNumericValues(t *testing.T) {
	store := NewStore()
	if err := store.Commit(context.Background(), []record.WriteRequest{
		put("docs", "d1", map[string]any{"lock_version": int64(2)}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	write := put("docs", "d1", map[string]any{"lock_version": int64(3)})
	write.Condition = record.Condition{LockAttribute: "lock_version", LockValue: 1}
	if err := store.Commit(context.Background(), []record.WriteRequest{write}); !errors.Is(err, record.ErrConditionFailed) {
		t.Fatalf("stale lock err = %v, want condition failure", err)
	}

	write.Condition.LockValue = 2
	if err := store.Commit(context.Background(), []record.WriteRequest{write}); err != nil {
		t.Fatalf("matching lock: %v", err)
	}
	item, _ := store.Load("docs", map[string]any{"id": "d1"})
	if v, _ := item["lock_version"].(int64); v != 3 {
		t.Fatalf("lock = %v, want 3", item["lock_version"])
	}
}

func TestLoadReturnsCopies(t *testing.T) {
	store := NewStore()
	if err := store.Commit(context.Background(), []record.WriteRequest{
		put("books", "b1", map[string]any{"title": "orig"}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	item, _ := store.Load("books", map[string]any{"id": "b1"})
	item["title"] = "mutated"
	again, _ := store.Load("books", map[string]any{"id": "b1"})
	if again["title"] != "orig" {
		t.Fatalf("store state leaked through Load")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore()
	if err := store.Commit(context.Background(), []record.WriteRequest{
		put("books", "b1", map[string]any{"title": "one"}),
		put("authors", "a1", map[string]any{"name": "gopher"}),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore()
	restored.ImportState(store.ExportState())
	item, ok := restored.Load("authors", map[string]any{"id": "a1"})
	if !ok || item["name"] != "gopher" {
		t.Fatalf("restored row = %v (ok=%v)", item, ok)
	}
	if restored.Len("books") != 1 {
		t.Fatalf("restored books = %d", restored.Len("books"))
	}
}

func TestCompositeKeysAreDistinct(t *testing.T) {
	store := NewStore()
	reqs := []record.WriteRequest{
		{Kind: record.WritePut, Table: "events", HashAttribute: "id", Key: map[string]any{"id": "e1", "ts": "t1"}, Item: map[string]any{"id": "e1", "ts": "t1"}},
		{Kind: record.WritePut, Table: "events", HashAttribute: "id", Key: map[string]any{"id": "e1", "ts": "t2"}, Item: map[string]any{"id": "e1", "ts": "t2"}},
	}
	if err := store.Commit(context.Background(), reqs); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if store.Len("events") != 2 {
		t.Fatalf("rows = %d, want 2 distinct composite keys", store.Len("events"))
	}
}
