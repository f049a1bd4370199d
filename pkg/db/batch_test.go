package db

import (
	"context"
	"errors"
	"testing"
)

func TestBatch_FailedStepRollsBackAlone(t *testing.T) {
	s := setupTestDB(t)
	seedTypes(t, s)
	ctx := context.Background()

	b, err := s.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var created int64
	if err := b.Step(ctx, func(ctx context.Context) error {
		id, err := b.CreateRecord(ctx, "Kanji", map[string]string{"Character": "日"}, "")
		created = id
		return err
	}); err != nil {
		t.Fatalf("step 1: %v", err)
	}

	boom := errors.New("boom")
	err = b.Step(ctx, func(ctx context.Context) error {
		if _, err := b.CreateRecord(ctx, "Kanji", map[string]string{"Character": "本"}, ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if err := b.Step(ctx, func(ctx context.Context) error {
		return b.SetTags(ctx, created, []string{"auto_kanji_card"}, nil)
	}); err != nil {
		t.Fatalf("step 3: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	chars, err := s.ListCharacterRecords(ctx, "Kanji", "Character")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chars) != 1 || chars[0].Literal != "日" {
		t.Fatalf("expected only 日 to survive, got %+v", chars)
	}
	if len(chars[0].Tags) != 1 || chars[0].Tags[0] != "auto_kanji_card" {
		t.Fatalf("expected tag from step 3, got %v", chars[0].Tags)
	}
}

func TestBatch_ClosedReuse(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	b, err := s.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := b.Step(ctx, func(context.Context) error { return nil }); err != ErrBatchClosed {
		t.Fatalf("expected ErrBatchClosed, got %v", err)
	}
	if err := b.Rollback(); err != nil {
		t.Fatalf("rollback after commit should be a no-op: %v", err)
	}
}

func TestBatch_Rollback(t *testing.T) {
	s := setupTestDB(t)
	seedTypes(t, s)
	ctx := context.Background()
	b, err := s.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := b.Step(ctx, func(ctx context.Context) error {
		_, err := b.CreateRecord(ctx, "Kanji", map[string]string{"Character": "日"}, "")
		return err
	}); err != nil {
		t.Fatalf("step: %v", err)
	}
	if err := b.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	chars, err := s.ListCharacterRecords(ctx, "Kanji", "Character")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chars) != 0 {
		t.Fatalf("expected nothing after rollback, got %+v", chars)
	}
}
