package domain

import (
	"sort"
	"strings"
	"time"
)

// Role identifies what an actor is allowed to do
type Role string

const (
	RoleStudent   Role = "student"
	RoleRecruiter Role = "recruiter"
	RoleAdmin     Role = "admin"
)

// ParseRole maps free text to a Role, returning false when unknown
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleRecruiter:
		return RoleRecruiter, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Actor is the identity on whose behalf an engine call runs
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// IsStaff reports whether the actor may manage pipelines
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleRecruiter
}

// Stage is one ordered step of a job's hiring pipeline
type Stage struct {
	ID        string `firestore:"id" json:"id"`
	Title     string `firestore:"title" json:"title"`
	Order     int    `firestore:"order" json:"order"`
	Published bool   `firestore:"published" json:"published"`
	Completed bool   `firestore:"completed" json:"completed"`
}

// Job is a posting that owns its pipeline stages
type Job struct {
	ID          string    `firestore:"-" json:"id"`
	Title       string    `firestore:"title" json:"title"`
	Company     string    `firestore:"company" json:"company"`
	Location    string    `firestore:"location" json:"location"`
	CTC         string    `firestore:"ctc" json:"ctc"`
	Description string    `firestore:"description" json:"description"`
	Deadline    time.Time `firestore:"deadline" json:"deadline"`
	CreatedAt   time.Time `firestore:"createdAt,serverTimestamp" json:"created_at"`
	RecruiterID string    `firestore:"recruiterId" json:"recruiter_id"`
	Stages      []Stage   `firestore:"stages" json:"stages"`
}

// SortedStages returns the job's stages ordered by their order field.
// The stored slice is never trusted to be in sequence.
func (j Job) SortedStages() []Stage {
	out := make([]Stage, len(j.Stages))
	copy(out, j.Stages)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Order < out[b].Order
	})
	return out
}

// StageIndex returns the position of stageID in sorted order, or -1
func (j Job) StageIndex(stageID string) int {
	for i, s := range j.SortedStages() {
		if s.ID == stageID {
			return i
		}
	}
	return -1
}

// Application is a student's application to a job
type Application struct {
	ID           string    `firestore:"-" json:"id"`
	JobID        string    `firestore:"jobId" json:"job_id"`
	StudentID    string    `firestore:"studentId" json:"student_id"`
	StudentEmail string    `firestore:"studentEmail" json:"student_email"`
	StudentName  string    `firestore:"studentName" json:"student_name"`
	Status       string    `firestore:"status" json:"status"`
	CreatedAt    time.Time `firestore:"createdAt" json:"created_at"`
}

// ApplicationShortlisted is the application status that feeds the first stage
const ApplicationShortlisted = "shortlisted"

// Participant is a student's record within one stage
type Participant struct {
	Key       string    `firestore:"-" json:"key"`
	Email     string    `firestore:"email" json:"email"`
	Name      string    `firestore:"name,omitempty" json:"name,omitempty"`
	Status    Status    `firestore:"status" json:"status"`
	Source    string    `firestore:"source" json:"source"`
	AddedAt   time.Time `firestore:"addedAt" json:"added_at"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// Participant sources other than a previous stage id
const (
	SourceApplicants = "applicants"
	SourceManual     = "manual"
	SourceUpload     = "upload"
)

// ParticipantRow is one tabular upload row before validation
type ParticipantRow struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// Import run states
const (
	ImportSucceeded = "succeeded"
	ImportPartial   = "partial"
	ImportFailed    = "failed"
)

// ImportRecord is the audit entry written for every upload-triggered import
type ImportRecord struct {
	RunID         string    `firestore:"-" json:"run_id"`
	JobID         string    `firestore:"jobId" json:"job_id"`
	StageID       string    `firestore:"stageId" json:"stage_id"`
	Object        string    `firestore:"object" json:"object"`
	Status        string    `firestore:"status" json:"status"`
	Attempted     int       `firestore:"attempted" json:"attempted"`
	Accepted      int       `firestore:"accepted" json:"accepted"`
	Rejected      int       `firestore:"rejected" json:"rejected"`
	Duplicates    int       `firestore:"duplicates" json:"duplicates"`
	BatchesFailed int       `firestore:"batchesFailed" json:"batches_failed"`
	Error         string    `firestore:"error,omitempty" json:"error,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt,serverTimestamp" json:"created_at"`
}
