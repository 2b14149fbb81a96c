package memory

import (
	"context"
	"testing"

	"github.com/brightkite/channelpull/internal/pull"
)

func TestMessageStoreIdempotentUpsert(t *testing.T) {
	t.Parallel()

	s := NewMessageStore()
	ctx := context.Background()

	batch := []pull.Message{
		{TS: "1704067200.000100", User: "U1", Text: "hello"},
		{TS: "1704067260.000200", User: "U2", Text: "world"},
	}
	if err := s.UpsertMessages(ctx, "C0123ABCD", batch); err != nil {
		t.Fatalf("UpsertMessages() error = %v", err)
	}

	// Re-running the same window must not duplicate rows.
	batch[0].Text = "hello edited"
	if err := s.UpsertMessages(ctx, "C0123ABCD", batch); err != nil {
		t.Fatalf("UpsertMessages() rerun error = %v", err)
	}

	count, err := s.CountByChannel(ctx, "C0123ABCD")
	if err != nil {
		t.Fatalf("CountByChannel() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 distinct messages, got %d", count)
	}

	msgs, err := s.ListByChannel(ctx, "C0123ABCD", nil, nil)
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if msgs[0].Text != "hello edited" {
		t.Fatalf("expected upsert to replace contents, got %+v", msgs[0])
	}

	other, err := s.CountByChannel(ctx, "C0999ZZZZ")
	if err != nil || other != 0 {
		t.Fatalf("unexpected count for empty channel: %d err=%v", other, err)
	}
}

func TestMessageStoreListWindow(t *testing.T) {
	t.Parallel()

	s := NewMessageStore()
	ctx := context.Background()

	if err := s.UpsertMessages(ctx, "C0123ABCD", []pull.Message{
		{TS: "100.000000", Text: "too old"},
		{TS: "200.000000", Text: "in window"},
		{TS: "300.000000", Text: "also in window"},
		{TS: "400.000000", Text: "too new"},
	}); err != nil {
		t.Fatalf("UpsertMessages() error = %v", err)
	}

	oldest, latest := "200.000000", "300.000000"
	msgs, err := s.ListByChannel(ctx, "C0123ABCD", &oldest, &latest)
	if err != nil {
		t.Fatalf("ListByChannel() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].TS != "200.000000" || msgs[1].TS != "300.000000" {
		t.Fatalf("expected the two in-window messages ascending, got %+v", msgs)
	}
}
