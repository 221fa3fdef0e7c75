package importfn

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
	"github.com/honeycarbs/placement-pipeline/internal/storage/memory"
)

type fakeObjects map[string]string

func (f fakeObjects) Open(_ context.Context, bucket, name string) (io.ReadCloser, error) {
	body, ok := f[bucket+"/"+name]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func newTestFunction(t *testing.T, objects fakeObjects, opts ...Option) (*Function, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutJob(domain.Job{
		ID:          "job-1",
		Title:       "SDE",
		RecruiterID: "rec-1",
		Stages: []domain.Stage{
			{ID: "oa", Title: "OA", Order: 1},
			{ID: "interview", Title: "Interview", Order: 2},
		},
	})
	svc, err := pipeline.NewService(
		pipeline.WithJobRepository(store),
		pipeline.WithApplicationRepository(store),
		pipeline.WithParticipantRepository(store),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(objects, svc, store, opts...), store
}

func TestParseObjectName(t *testing.T) {
	tests := []struct {
		name             string
		job, stage, file string
		ok               bool
	}{
		{"imports/job-1/oa/results.xlsx", "job-1", "oa", "results.xlsx", true},
		{"imports/job-1/oa/batch/results.csv", "job-1", "oa", "batch/results.csv", true},
		{"imports/job-1/results.csv", "", "", "", false},
		{"imports/job-1/oa/", "", "", "", false},
		{"uploads/job-1/oa/results.csv", "", "", "", false},
		{"imports//oa/results.csv", "", "", "", false},
	}
	for _, tt := range tests {
		job, stage, file, ok := ParseObjectName(tt.name)
		if ok != tt.ok || job != tt.job || stage != tt.stage || file != tt.file {
			t.Errorf("ParseObjectName(%q) = %q %q %q %v", tt.name, job, stage, file, ok)
		}
	}
}

func TestProcessImportsCSVUpload(t *testing.T) {
	objects := fakeObjects{
		"uploads/imports/job-1/oa/results.csv": "Email Address,Name,Status\n" +
			"asha@campus.edu,Asha,pass\n" +
			"ben@campus.edu,Ben,fail\n" +
			"not-an-email,,\n",
	}
	fn, store := newTestFunction(t, objects, WithBucket("uploads"))

	err := fn.Process(context.Background(), GCSEvent{Bucket: "uploads", Name: "imports/job-1/oa/results.csv"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	next := repository.StageRef{JobID: "job-1", StageID: "interview"}
	mirror, err := store.GetParticipant(context.Background(), next, pipeline.ParticipantKey("asha@campus.edu"))
	if err != nil || mirror.Status != domain.StatusPending {
		t.Fatalf("interview mirror = %+v, %v", mirror, err)
	}

	records := store.Imports()
	if len(records) != 1 {
		t.Fatalf("recorded %d imports, want 1", len(records))
	}
	rec := records[0]
	if rec.Status != domain.ImportSucceeded || rec.Accepted != 2 || rec.Rejected != 1 || rec.RunID == "" {
		t.Errorf("import record = %+v", rec)
	}
	if rec.Object != "uploads/imports/job-1/oa/results.csv" {
		t.Errorf("object = %q", rec.Object)
	}
}

func TestProcessIgnoresForeignObjects(t *testing.T) {
	fn, store := newTestFunction(t, fakeObjects{}, WithBucket("uploads"))

	events := []GCSEvent{
		{Bucket: "other", Name: "imports/job-1/oa/results.csv"},
		{Bucket: "uploads", Name: "avatars/me.png"},
	}
	for _, e := range events {
		if err := fn.Process(context.Background(), e); err != nil {
			t.Errorf("Process(%+v) error = %v", e, err)
		}
	}
	if n := len(store.Imports()); n != 0 {
		t.Fatalf("recorded %d imports for ignored objects", n)
	}
}

func TestProcessRecordsUnrecoverableFailures(t *testing.T) {
	objects := fakeObjects{
		"b/imports/job-1/oa/results.pdf":     "%PDF",
		"b/imports/job-1/missing/results.csv": "email\na@x.com\n",
	}
	fn, store := newTestFunction(t, objects)

	for _, name := range []string{"imports/job-1/oa/results.pdf", "imports/job-1/missing/results.csv"} {
		if err := fn.Process(context.Background(), GCSEvent{Bucket: "b", Name: name}); err != nil {
			t.Errorf("Process(%s) should not ask for a retry, got %v", name, err)
		}
	}

	records := store.Imports()
	if len(records) != 2 {
		t.Fatalf("recorded %d imports, want 2", len(records))
	}
	for _, rec := range records {
		if rec.Status != domain.ImportFailed || rec.Error == "" {
			t.Errorf("record = %+v, want failed with error", rec)
		}
	}
}

func TestProcessRetriesStorageFailures(t *testing.T) {
	objects := fakeObjects{"b/imports/job-1/oa/results.csv": "email\na@x.com\nb@x.com\n"}
	fn, store := newTestFunction(t, objects)
	store.FailBatch(1, errors.New("unavailable"))

	err := fn.Process(context.Background(), GCSEvent{Bucket: "b", Name: "imports/job-1/oa/results.csv"})
	if err == nil {
		t.Fatal("storage failure should be returned for redelivery")
	}

	records := store.Imports()
	if len(records) != 1 || records[0].Status != domain.ImportFailed || records[0].BatchesFailed != 1 {
		t.Fatalf("records = %+v", records)
	}

	if err := fn.Process(context.Background(), GCSEvent{Bucket: "b", Name: "imports/job-1/missing.csv"}); err != nil {
		t.Fatalf("ignored object returned %v", err)
	}
	if err := fn.Process(context.Background(), GCSEvent{Bucket: "b", Name: "imports/job-1/oa/gone.csv"}); err == nil {
		t.Fatal("unreadable object should be retried")
	}
}

func TestProcessRejectsOversizedUploads(t *testing.T) {
	body := "email\n" + strings.Repeat("someone@campus.edu\n", 10)
	objects := fakeObjects{"b/imports/job-1/oa/results.csv": body}
	fn, store := newTestFunction(t, objects, WithMaxObjectBytes(int64(len(body)-5)))

	if err := fn.Process(context.Background(), GCSEvent{Bucket: "b", Name: "imports/job-1/oa/results.csv"}); err != nil {
		t.Fatalf("oversized upload should not be retried, got %v", err)
	}
	if n := count(t, store, "oa"); n != 0 {
		t.Errorf("oversized upload imported %d participants", n)
	}
	records := store.Imports()
	if len(records) != 1 || records[0].Status != domain.ImportFailed || !strings.Contains(records[0].Error, "exceeds") {
		t.Fatalf("records = %+v", records)
	}

	fn, store = newTestFunction(t, objects, WithMaxObjectBytes(int64(len(body))))
	if err := fn.Process(context.Background(), GCSEvent{Bucket: "b", Name: "imports/job-1/oa/results.csv"}); err != nil {
		t.Fatalf("upload at the limit: %v", err)
	}
	if n := count(t, store, "oa"); n != 1 {
		t.Errorf("upload at the limit imported %d participants, want 1", n)
	}
}

func count(t *testing.T, store *memory.Store, stageID string) int {
	t.Helper()
	records, err := store.ListParticipants(context.Background(), repository.StageRef{JobID: "job-1", StageID: stageID})
	if err != nil {
		t.Fatalf("ListParticipants: %v", err)
	}
	return len(records)
}
