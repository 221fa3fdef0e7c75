package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
)

var scope = repository.StageRef{JobID: "j1", StageID: "s1"}

func TestUpsertMergesFields(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.UpsertParticipant(ctx, scope, "a@x(dot)com", repository.ParticipantPatch{Email: "a@x.com", Name: "A"}); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}
	first, err := s.GetParticipant(ctx, scope, "a@x(dot)com")
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	if first.Status != domain.StatusPending {
		t.Fatalf("new record status = %q, want pending", first.Status)
	}

	if err := s.UpsertParticipant(ctx, scope, "a@x(dot)com", repository.ParticipantPatch{Status: domain.StatusQualified}); err != nil {
		t.Fatalf("UpsertParticipant() error = %v", err)
	}
	got, _ := s.GetParticipant(ctx, scope, "a@x(dot)com")
	if got.Name != "A" || got.Email != "a@x.com" {
		t.Errorf("merge dropped fields: %+v", got)
	}
	if got.Status != domain.StatusQualified {
		t.Errorf("status = %q, want qualified", got.Status)
	}
	if !got.AddedAt.Equal(first.AddedAt) {
		t.Errorf("addedAt changed on update: %v -> %v", first.AddedAt, got.AddedAt)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, key := range []string{"k1", "k2", "k3"} {
		if err := s.UpsertParticipant(ctx, scope, key, repository.ParticipantPatch{Email: key + "@x.com"}); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListParticipants(ctx, scope)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"k3", "k2", "k1"}
	for i, p := range list {
		if p.Key != want[i] {
			t.Fatalf("order[%d] = %q, want %q", i, p.Key, want[i])
		}
	}
}

func TestApplyBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.SetFault(func(w Write) error {
		if w.Key == "bad" {
			return boom
		}
		return nil
	})

	err := s.ApplyBatch(ctx, []repository.ParticipantOp{
		repository.UpsertOp(scope, "good", repository.ParticipantPatch{Email: "good@x.com"}),
		repository.UpsertOp(scope, "bad", repository.ParticipantPatch{Email: "bad@x.com"}),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ApplyBatch() error = %v, want boom", err)
	}
	if _, err := s.GetParticipant(ctx, scope, "good"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("partial batch applied: GetParticipant(good) error = %v", err)
	}
}

func TestFailBatchCountsFromNow(t *testing.T) {
	ctx := context.Background()
	s := New()
	op := []repository.ParticipantOp{repository.DeleteOp(scope, "k")}

	if err := s.ApplyBatch(ctx, op); err != nil {
		t.Fatal(err)
	}
	s.FailBatch(2, errors.New("second"))
	if err := s.ApplyBatch(ctx, op); err != nil {
		t.Fatalf("first batch after FailBatch error = %v", err)
	}
	if err := s.ApplyBatch(ctx, op); err == nil {
		t.Fatal("second batch after FailBatch succeeded")
	}
	if err := s.ApplyBatch(ctx, op); err != nil {
		t.Fatalf("failure was not one-shot: %v", err)
	}
}

func TestApplyBatchRejectsOversize(t *testing.T) {
	s := New(WithMaxBatchOps(1))
	err := s.ApplyBatch(context.Background(), []repository.ParticipantOp{
		repository.DeleteOp(scope, "a"),
		repository.DeleteOp(scope, "b"),
	})
	if err == nil {
		t.Fatal("ApplyBatch() accepted more ops than the limit")
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	if err := New().RemoveParticipant(context.Background(), scope, "nobody"); err != nil {
		t.Fatalf("RemoveParticipant() error = %v", err)
	}
}
