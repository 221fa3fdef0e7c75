package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
	"github.com/honeycarbs/placement-pipeline/internal/domain/pipeline"
	"github.com/honeycarbs/placement-pipeline/internal/repository"
	"github.com/honeycarbs/placement-pipeline/internal/storage/memory"
)

const jobID = "job-1"

var (
	admin     = domain.Actor{ID: "admin-1", Email: "admin@campus.edu", Role: domain.RoleAdmin}
	recruiter = domain.Actor{ID: "rec-1", Email: "hr@acme.com", Role: domain.RoleRecruiter}
	stranger  = domain.Actor{ID: "rec-2", Email: "hr@other.com", Role: domain.RoleRecruiter}
	student   = domain.Actor{ID: "stu-1", Email: "stu1@x.com", Role: domain.RoleStudent}
)

func ref(stageID string) repository.StageRef {
	return repository.StageRef{JobID: jobID, StageID: stageID}
}

// newFixture stores a job with stages s1..sN. The stage slice is stored in
// reverse so every test also exercises ordering by Order.
func newFixture(t *testing.T, stages int, storeOpts ...memory.Option) (*pipeline.Service, *memory.Store) {
	t.Helper()

	store := memory.New(storeOpts...)
	job := domain.Job{ID: jobID, Title: "Backend Engineer", Company: "Acme", RecruiterID: recruiter.ID}
	for i := stages; i >= 1; i-- {
		job.Stages = append(job.Stages, domain.Stage{ID: fmt.Sprintf("s%d", i), Title: fmt.Sprintf("Round %d", i), Order: i})
	}
	store.PutJob(job)

	svc, err := pipeline.NewService(
		pipeline.WithJobRepository(store),
		pipeline.WithApplicationRepository(store),
		pipeline.WithParticipantRepository(store),
	)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, store
}

func put(t *testing.T, store *memory.Store, stageID, email string, status domain.Status) {
	t.Helper()
	err := store.UpsertParticipant(context.Background(), ref(stageID), pipeline.ParticipantKey(email),
		repository.ParticipantPatch{Email: email, Status: status})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func lookup(t *testing.T, store *memory.Store, stageID, email string) (domain.Participant, bool) {
	t.Helper()
	p, err := store.GetParticipant(context.Background(), ref(stageID), pipeline.ParticipantKey(email))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Participant{}, false
	}
	if err != nil {
		t.Fatalf("GetParticipant() error = %v", err)
	}
	return p, true
}

func count(t *testing.T, store *memory.Store, stageID string) int {
	t.Helper()
	list, err := store.ListParticipants(context.Background(), ref(stageID))
	if err != nil {
		t.Fatalf("ListParticipants() error = %v", err)
	}
	return len(list)
}

func TestNewServiceRequiresRepositories(t *testing.T) {
	if _, err := pipeline.NewService(); err == nil {
		t.Fatal("NewService() without repositories should fail")
	}
}

func TestSeedFromApplicants(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: "stu1@x.com", StudentName: "Stu One", Status: "shortlisted"})
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: "stu2@x.com", Status: "applied"})
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: " STU1@x.com ", Status: "shortlisted"})
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: "", Status: "shortlisted"})
	store.AddApplication(domain.Application{JobID: "job-2", StudentEmail: "other@x.com", Status: "shortlisted"})

	seeded, err := svc.Seed(ctx, admin, jobID, "s1")
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if seeded != 1 {
		t.Fatalf("Seed() = %d, want 1", seeded)
	}

	p, ok := lookup(t, store, "s1", "stu1@x.com")
	if !ok {
		t.Fatal("stu1 was not seeded")
	}
	if p.Status != domain.StatusPending || p.Source != domain.SourceApplicants || p.Name != "Stu One" {
		t.Errorf("seeded record = %+v", p)
	}
	if _, ok := lookup(t, store, "s1", "stu2@x.com"); ok {
		t.Error("non-shortlisted applicant was seeded")
	}

	again, err := svc.Seed(ctx, admin, jobID, "s1")
	if err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	if again != 0 || count(t, store, "s1") != 1 {
		t.Errorf("second Seed() = %d with %d records, want 0 with 1", again, count(t, store, "s1"))
	}
}

func TestSeedFromPreviousStage(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 3)
	put(t, store, "s1", "a@x.com", domain.StatusQualified)
	put(t, store, "s1", "b@x.com", domain.StatusRejected)
	put(t, store, "s1", "c@x.com", domain.StatusPending)

	seeded, err := svc.Seed(ctx, recruiter, jobID, "s2")
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if seeded != 1 {
		t.Fatalf("Seed() = %d, want 1", seeded)
	}
	p, ok := lookup(t, store, "s2", "a@x.com")
	if !ok || p.Status != domain.StatusPending || p.Source != "s1" {
		t.Errorf("seeded record = %+v, present %v", p, ok)
	}

	// no qualified participants upstream is a legitimate empty seed
	if n, err := svc.Seed(ctx, recruiter, jobID, "s3"); err != nil || n != 0 {
		t.Errorf("Seed(s3) = %d, %v; want 0, nil", n, err)
	}
}

func shortlist(store *memory.Store, n int) {
	for i := 0; i < n; i++ {
		store.AddApplication(domain.Application{JobID: jobID, StudentEmail: fmt.Sprintf("stu%03d@x.com", i), Status: "shortlisted"})
	}
}

func TestSeedCommitsAtomicallyWhenItFits(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 1)
	shortlist(store, pipeline.DefaultBatchSize+1)
	store.FailBatch(1, errors.New("deadline exceeded"))

	n, err := svc.Seed(ctx, admin, jobID, "s1")
	if err == nil {
		t.Fatal("Seed() should report the failed commit")
	}
	if n != 0 || count(t, store, "s1") != 0 {
		t.Fatalf("failed Seed() = %d with %d records, want nothing written", n, count(t, store, "s1"))
	}

	n, err = svc.Seed(ctx, admin, jobID, "s1")
	if err != nil {
		t.Fatalf("retried Seed() error = %v", err)
	}
	if want := pipeline.DefaultBatchSize + 1; n != want || count(t, store, "s1") != want {
		t.Errorf("retried Seed() = %d with %d records, want %d", n, count(t, store, "s1"), want)
	}
}

func TestSeedResumesAfterPartialFailure(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 1, memory.WithMaxBatchOps(10))
	shortlist(store, 25)
	store.FailBatch(2, errors.New("deadline exceeded"))

	n, err := svc.Seed(ctx, admin, jobID, "s1")
	if err == nil {
		t.Fatal("Seed() should report the failed batch")
	}
	if n != 10 || count(t, store, "s1") != 10 {
		t.Fatalf("failed Seed() = %d with %d records, want 10", n, count(t, store, "s1"))
	}

	n, err = svc.Seed(ctx, admin, jobID, "s1")
	if err != nil {
		t.Fatalf("retried Seed() error = %v", err)
	}
	if n != 15 || count(t, store, "s1") != 25 {
		t.Errorf("retried Seed() = %d with %d records, want 15 with 25", n, count(t, store, "s1"))
	}

	if n, err := svc.Seed(ctx, admin, jobID, "s1"); err != nil || n != 0 {
		t.Errorf("Seed() after completion = %d, %v; want 0, nil", n, err)
	}
}

func TestSeedLeavesCuratedStageAlone(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 1, memory.WithMaxBatchOps(10))
	shortlist(store, 25)
	if _, err := svc.AddParticipant(ctx, admin, jobID, "s1", "walkin@x.com", "Walk In"); err != nil {
		t.Fatalf("AddParticipant() error = %v", err)
	}

	if n, err := svc.Seed(ctx, admin, jobID, "s1"); err != nil || n != 0 {
		t.Errorf("Seed() = %d, %v; want 0, nil", n, err)
	}
	if c := count(t, store, "s1"); c != 1 {
		t.Errorf("stage holds %d records, want 1", c)
	}
}

func TestSeedSkipsUnresolvedTargets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newFixture(t, 1)

	for _, tc := range []struct{ job, stage string }{
		{"missing", "s1"},
		{jobID, "missing"},
	} {
		n, err := svc.Seed(ctx, admin, tc.job, tc.stage)
		if err != nil || n != 0 {
			t.Errorf("Seed(%q, %q) = %d, %v; want 0, nil", tc.job, tc.stage, n, err)
		}
	}
}

func TestStageDetailNotFound(t *testing.T) {
	svc, _ := newFixture(t, 1)
	_, err := svc.StageDetail(context.Background(), admin, jobID, "nope")
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Fatalf("StageDetail() error = %v, want ErrNotFound", err)
	}
	var nf *pipeline.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "stage" {
		t.Errorf("error = %#v, want stage NotFoundError", err)
	}
}

func TestTwoStageScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: "stu1@x.com", Status: "shortlisted"})
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: "stu2@x.com", Status: "applied"})

	view, err := svc.StageDetail(ctx, recruiter, jobID, "s1")
	if err != nil {
		t.Fatalf("StageDetail() error = %v", err)
	}
	if view.Seeded != 1 || len(view.Participants) != 1 || view.NextStageID != "s2" {
		t.Fatalf("view = %+v", view)
	}
	key := view.Participants[0].Key

	res, err := svc.SetStatus(ctx, recruiter, jobID, "s1", key, "pass")
	if err != nil {
		t.Fatalf("SetStatus(pass) error = %v", err)
	}
	if res.Status != domain.StatusQualified || res.Propagation != pipeline.PropagationMirrored {
		t.Errorf("SetStatus(pass) = %+v", res)
	}
	mirror, ok := lookup(t, store, "s2", "stu1@x.com")
	if !ok || mirror.Status != domain.StatusPending {
		t.Fatalf("s2 mirror = %+v, present %v; want pending", mirror, ok)
	}

	res, err = svc.SetStatus(ctx, recruiter, jobID, "s1", key, "fail")
	if err != nil {
		t.Fatalf("SetStatus(fail) error = %v", err)
	}
	if res.Status != domain.StatusRejected || res.Previous != domain.StatusQualified || res.Propagation != pipeline.PropagationRemoved {
		t.Errorf("SetStatus(fail) = %+v", res)
	}
	if _, ok := lookup(t, store, "s2", "stu1@x.com"); ok {
		t.Error("s2 still contains stu1 after rejection")
	}
}

func TestPropagationIsOneHop(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 3)
	put(t, store, "s1", "p@x.com", domain.StatusPending)
	put(t, store, "s3", "p@x.com", domain.StatusQualified)
	before, _ := lookup(t, store, "s3", "p@x.com")

	for _, status := range []string{"qualified", "rejected"} {
		if _, err := svc.SetStatus(ctx, admin, jobID, "s1", "p@x.com", status); err != nil {
			t.Fatalf("SetStatus(%s) error = %v", status, err)
		}
	}

	after, ok := lookup(t, store, "s3", "p@x.com")
	if !ok || after != before {
		t.Errorf("s3 changed: before %+v, after %+v", before, after)
	}
}

func TestRequalifyKeepsNextStageDecision(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	put(t, store, "s1", "p@x.com", domain.StatusPending)

	if _, err := svc.SetStatus(ctx, admin, jobID, "s1", "p@x.com", "qualified"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetStatus(ctx, admin, jobID, "s2", "p@x.com", "qualified"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SetStatus(ctx, admin, jobID, "s1", "p@x.com", "qualified"); err != nil {
		t.Fatal(err)
	}

	mirror, _ := lookup(t, store, "s2", "p@x.com")
	if mirror.Status != domain.StatusQualified {
		t.Errorf("s2 status = %q, want qualified to be kept", mirror.Status)
	}
}

func TestSetStatusLastStageHasNoPropagation(t *testing.T) {
	svc, store := newFixture(t, 2)
	put(t, store, "s2", "p@x.com", domain.StatusPending)

	res, err := svc.SetStatus(context.Background(), admin, jobID, "s2", "p@x.com", "Offer Accepted")
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if res.Propagation != pipeline.PropagationNone || res.NextStageID != "" || res.Status != domain.StatusPending {
		t.Errorf("SetStatus() = %+v", res)
	}
}

func TestSetStatusUnknownParticipant(t *testing.T) {
	svc, _ := newFixture(t, 2)
	_, err := svc.SetStatus(context.Background(), admin, jobID, "s1", "ghost@x.com", "qualified")
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Fatalf("SetStatus() error = %v, want ErrNotFound", err)
	}
}

func TestSetStatusPrimaryFailureSkipsPropagation(t *testing.T) {
	svc, store := newFixture(t, 2)
	put(t, store, "s1", "p@x.com", domain.StatusPending)
	boom := errors.New("unavailable")
	store.SetFault(func(w memory.Write) error {
		if w.Scope.StageID == "s1" {
			return boom
		}
		return nil
	})

	_, err := svc.SetStatus(context.Background(), admin, jobID, "s1", "p@x.com", "qualified")
	var se *pipeline.StoreError
	if !errors.As(err, &se) || !errors.Is(err, boom) {
		t.Fatalf("SetStatus() error = %v, want StoreError wrapping boom", err)
	}
	if pipeline.IsPropagationWarning(err) {
		t.Error("primary failure reported as propagation warning")
	}
	if count(t, store, "s2") != 0 {
		t.Error("propagated without a committed primary write")
	}
}

func TestPropagationWarningIsRepairedByRetry(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	put(t, store, "s1", "p@x.com", domain.StatusPending)
	store.SetFault(func(w memory.Write) error {
		if w.Scope.StageID == "s2" {
			return errors.New("s2 offline")
		}
		return nil
	})

	res, err := svc.SetStatus(ctx, admin, jobID, "s1", "p@x.com", "qualified")
	if !pipeline.IsPropagationWarning(err) {
		t.Fatalf("SetStatus() error = %v, want PropagationWarning", err)
	}
	if res.Propagation != pipeline.PropagationFailed || res.Status != domain.StatusQualified {
		t.Errorf("result = %+v", res)
	}
	if p, _ := lookup(t, store, "s1", "p@x.com"); p.Status != domain.StatusQualified {
		t.Errorf("primary record status = %q, want qualified", p.Status)
	}
	if count(t, store, "s2") != 0 {
		t.Fatal("s2 written despite fault")
	}

	store.SetFault(nil)
	if _, err := svc.SetStatus(ctx, admin, jobID, "s1", "p@x.com", "qualified"); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if _, ok := lookup(t, store, "s2", "p@x.com"); !ok {
		t.Error("retry did not repair s2")
	}
}

func TestSetStatusAcceptsEmailOrKey(t *testing.T) {
	svc, store := newFixture(t, 1)
	put(t, store, "s1", "stu1@x.com", domain.StatusPending)

	res, err := svc.SetStatus(context.Background(), admin, jobID, "s1", "Stu1@X.com", "yes")
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if res.Key != pipeline.ParticipantKey("stu1@x.com") || res.Status != domain.StatusQualified {
		t.Errorf("SetStatus() = %+v", res)
	}
}

func TestAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	put(t, store, "s1", "p@x.com", domain.StatusPending)

	tests := []struct {
		name string
		call func() error
	}{
		{"student sets status", func() error {
			_, err := svc.SetStatus(ctx, student, jobID, "s1", "p@x.com", "qualified")
			return err
		}},
		{"foreign recruiter sets status", func() error {
			_, err := svc.SetStatus(ctx, stranger, jobID, "s1", "p@x.com", "qualified")
			return err
		}},
		{"recruiter publishes", func() error {
			_, err := svc.SetPublished(ctx, recruiter, jobID, "s1", true)
			return err
		}},
		{"foreign recruiter imports", func() error {
			_, err := svc.ImportBatch(ctx, stranger, jobID, "s1", []domain.ParticipantRow{{Email: "n@x.com"}})
			return err
		}},
		{"student seeds", func() error {
			_, err := svc.Seed(ctx, student, jobID, "s1")
			return err
		}},
		{"foreign recruiter reads timeline", func() error {
			_, err := svc.Timeline(ctx, stranger, jobID)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, pipeline.ErrForbidden) {
				t.Errorf("error = %v, want ErrForbidden", err)
			}
		})
	}

	if p, _ := lookup(t, store, "s1", "p@x.com"); p.Status != domain.StatusPending {
		t.Errorf("forbidden call changed status to %q", p.Status)
	}
}

func TestPublishGate(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	store.AddApplication(domain.Application{JobID: jobID, StudentEmail: "stu1@x.com", Status: "shortlisted"})

	_, err := svc.StageDetail(ctx, student, jobID, "s1")
	if !errors.Is(err, pipeline.ErrStageUnavailable) {
		t.Fatalf("student read of unpublished stage: error = %v, want ErrStageUnavailable", err)
	}

	stage, err := svc.SetPublished(ctx, admin, jobID, "s1", true)
	if err != nil || !stage.Published {
		t.Fatalf("SetPublished() = %+v, %v", stage, err)
	}

	view, err := svc.StageDetail(ctx, student, jobID, "s1")
	if err != nil {
		t.Fatalf("student read of published stage: error = %v", err)
	}
	if len(view.Participants) != 0 || view.Seeded != 0 {
		t.Errorf("student read should not seed: %+v", view)
	}

	if _, err := svc.SetPublished(ctx, admin, jobID, "s1", false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StageDetail(ctx, student, jobID, "s1"); !errors.Is(err, pipeline.ErrStageUnavailable) {
		t.Errorf("unpublish did not hide stage: %v", err)
	}
}

func TestSetCompleted(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)

	stage, err := svc.SetCompleted(ctx, recruiter, jobID, "s2", true)
	if err != nil || !stage.Completed {
		t.Fatalf("SetCompleted() = %+v, %v", stage, err)
	}
	job, _ := store.GetJob(ctx, jobID)
	if idx := job.StageIndex("s2"); idx < 0 || !job.Stages[idx].Completed {
		t.Errorf("completion not stored: %+v", job.Stages)
	}
	if _, err := svc.SetCompleted(ctx, recruiter, jobID, "s9", true); !errors.Is(err, pipeline.ErrNotFound) {
		t.Errorf("SetCompleted(unknown) error = %v", err)
	}
}

func TestTimeline(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 3)
	put(t, store, "s1", "a@x.com", domain.StatusQualified)
	put(t, store, "s1", "b@x.com", domain.StatusRejected)
	put(t, store, "s2", "a@x.com", domain.StatusPending)
	if _, err := svc.SetPublished(ctx, admin, jobID, "s2", true); err != nil {
		t.Fatal(err)
	}

	staff, err := svc.Timeline(ctx, recruiter, jobID)
	if err != nil {
		t.Fatalf("Timeline() error = %v", err)
	}
	if len(staff) != 3 {
		t.Fatalf("staff timeline has %d stages, want 3", len(staff))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if staff[i].Stage.ID != want || staff[i].Index != i {
			t.Errorf("timeline[%d] = %s@%d, want %s@%d", i, staff[i].Stage.ID, staff[i].Index, want, i)
		}
	}
	if c := staff[0].Counts; c.Qualified != 1 || c.Rejected != 1 || c.Total() != 2 {
		t.Errorf("s1 counts = %+v", c)
	}

	visible, err := svc.Timeline(ctx, student, jobID)
	if err != nil {
		t.Fatalf("student Timeline() error = %v", err)
	}
	if len(visible) != 1 || visible[0].Stage.ID != "s2" || visible[0].Counts.Pending != 1 {
		t.Errorf("student timeline = %+v", visible)
	}
}

func TestMyProgress(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 3)
	put(t, store, "s1", "stu1@x.com", domain.StatusQualified)
	put(t, store, "s2", "stu1@x.com", domain.StatusPending)
	for _, id := range []string{"s1", "s3"} {
		if _, err := svc.SetPublished(ctx, admin, jobID, id, true); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := svc.MyProgress(ctx, student, jobID)
	if err != nil {
		t.Fatalf("MyProgress() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("MyProgress() returned %d entries, want 2", len(entries))
	}
	if !entries[0].Present || entries[0].Status != domain.StatusQualified {
		t.Errorf("s1 entry = %+v", entries[0])
	}
	if entries[1].StageID != "s3" || entries[1].Present {
		t.Errorf("s3 entry = %+v", entries[1])
	}

	var ve *pipeline.ValidationError
	if _, err := svc.MyProgress(ctx, domain.Actor{Role: domain.RoleStudent}, jobID); !errors.As(err, &ve) {
		t.Errorf("MyProgress() without email error = %v", err)
	}
}

func TestAddAndRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)

	var ve *pipeline.ValidationError
	if _, err := svc.AddParticipant(ctx, admin, jobID, "s1", "not-an-email", ""); !errors.As(err, &ve) {
		t.Fatalf("AddParticipant(invalid) error = %v, want ValidationError", err)
	}

	p, err := svc.AddParticipant(ctx, admin, jobID, "s1", "New@X.com", "New Person")
	if err != nil {
		t.Fatalf("AddParticipant() error = %v", err)
	}
	if p.Status != domain.StatusPending || p.Source != domain.SourceManual || p.Key != pipeline.ParticipantKey("new@x.com") {
		t.Errorf("added = %+v", p)
	}

	if _, err := svc.SetStatus(ctx, admin, jobID, "s1", p.Key, "qualified"); err != nil {
		t.Fatal(err)
	}
	again, err := svc.AddParticipant(ctx, admin, jobID, "s1", "new@x.com", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != domain.StatusQualified {
		t.Errorf("re-add reset status to %q", again.Status)
	}

	if err := svc.RemoveParticipant(ctx, admin, jobID, "s1", "new@x.com"); err != nil {
		t.Fatalf("RemoveParticipant() error = %v", err)
	}
	if count(t, store, "s1") != 0 || count(t, store, "s2") != 0 {
		t.Errorf("records left after removal: s1=%d s2=%d", count(t, store, "s1"), count(t, store, "s2"))
	}
}

func TestRemoveParticipantMirrorFailure(t *testing.T) {
	svc, store := newFixture(t, 2)
	put(t, store, "s1", "p@x.com", domain.StatusQualified)
	put(t, store, "s2", "p@x.com", domain.StatusPending)
	store.SetFault(func(w memory.Write) error {
		if w.Scope.StageID == "s2" {
			return errors.New("offline")
		}
		return nil
	})

	err := svc.RemoveParticipant(context.Background(), admin, jobID, "s1", pipeline.ParticipantKey("p@x.com"))
	if !pipeline.IsPropagationWarning(err) {
		t.Fatalf("RemoveParticipant() error = %v, want PropagationWarning", err)
	}
	if _, ok := lookup(t, store, "s1", "p@x.com"); ok {
		t.Error("primary record survived")
	}
}

func TestResyncRepairsStaleMirrors(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 2)
	put(t, store, "s1", "keep@x.com", domain.StatusQualified)
	put(t, store, "s1", "drop@x.com", domain.StatusRejected)
	put(t, store, "s2", "drop@x.com", domain.StatusPending)

	res, err := svc.Resync(ctx, admin, jobID, "s1")
	if err != nil {
		t.Fatalf("Resync() error = %v", err)
	}
	if res.Mirrored != 1 || res.Removed != 1 || res.NextStageID != "s2" {
		t.Errorf("Resync() = %+v", res)
	}
	if _, ok := lookup(t, store, "s2", "keep@x.com"); !ok {
		t.Error("qualified participant not mirrored")
	}
	if _, ok := lookup(t, store, "s2", "drop@x.com"); ok {
		t.Error("stale mirror not removed")
	}

	if _, err := svc.Resync(ctx, admin, jobID, "s1"); err != nil {
		t.Fatalf("second Resync() error = %v", err)
	}
	if count(t, store, "s2") != 1 {
		t.Errorf("second resync changed s2: %d records", count(t, store, "s2"))
	}

	last, err := svc.Resync(ctx, admin, jobID, "s2")
	if err != nil || last.Batches != 0 {
		t.Errorf("Resync(last stage) = %+v, %v", last, err)
	}
}

func TestCreateJob(t *testing.T) {
	ctx := context.Background()
	svc, store := newFixture(t, 1)

	job, err := svc.CreateJob(ctx, recruiter, domain.Job{Title: "SRE", RecruiterID: "someone-else"},
		[]string{"Online Assessment", "  ", "Interview", "Offer"})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if job.RecruiterID != recruiter.ID {
		t.Errorf("RecruiterID = %q, want %q", job.RecruiterID, recruiter.ID)
	}
	if len(job.Stages) != 3 {
		t.Fatalf("got %d stages, want 3", len(job.Stages))
	}
	for i, st := range job.Stages {
		if st.Order != i+1 || st.ID == "" {
			t.Errorf("stage %d = %+v", i, st)
		}
	}
	if _, err := store.GetJob(ctx, job.ID); err != nil {
		t.Errorf("job not stored: %v", err)
	}

	var ve *pipeline.ValidationError
	if _, err := svc.CreateJob(ctx, recruiter, domain.Job{Title: "SRE"}, []string{" "}); !errors.As(err, &ve) {
		t.Errorf("CreateJob() without stages error = %v", err)
	}
	if _, err := svc.CreateJob(ctx, student, domain.Job{Title: "SRE"}, []string{"x"}); !errors.Is(err, pipeline.ErrForbidden) {
		t.Errorf("student CreateJob() error = %v", err)
	}
}
