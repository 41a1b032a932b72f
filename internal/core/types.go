package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/listsync/internal/remote"
)

// ListClient is the subset of the remote API the orchestrator needs.
// *remote.Client satisfies it; tests substitute a fake.
type ListClient interface {
	FetchMembers(ctx context.Context, listID string, status remote.MemberStatus) (map[string]struct{}, error)
	ImportBatch(ctx context.Context, listID string, subs []remote.Subscriber, resubscribe bool) (*remote.ImportResult, error)
	Unsubscribe(ctx context.Context, listID, email string) error
	ListDetails(ctx context.Context, listID string) (*remote.ListDetails, error)
}

// SyncOptions are the per-trigger switches of a sync.
type SyncOptions struct {
	// Unsubscribe enables reconciliation: remote active members missing
	// from the spreadsheet are unsubscribed.
	Unsubscribe bool

	// SkipUnsubscribed drops addresses already unsubscribed remotely
	// before import.
	SkipUnsubscribed bool

	// Resubscribe is sent with every import batch.
	Resubscribe bool
}

// BindingStatus is the outcome of syncing one binding.
type BindingStatus string

const (
	BindingPending   BindingStatus = "pending"
	BindingCompleted BindingStatus = "completed"
	BindingEmpty     BindingStatus = "empty"
	BindingFailed    BindingStatus = "failed"
	BindingCancelled BindingStatus = "cancelled"
)

// Totals aggregates import batch counters.
type Totals struct {
	New        int `json:"new"`
	Existing   int `json:"existing"`
	Duplicates int `json:"duplicates"`
	Failures   int `json:"failures"`
}

func (t *Totals) add(r *remote.ImportResult) {
	t.New += r.New
	t.Existing += r.Existing
	t.Duplicates += r.Duplicates
	t.Failures += len(r.Failures)
}

// BindingResult describes what a sync did to one remote list.
type BindingResult struct {
	Name   string        `json:"name"`
	ListID string        `json:"list_id"`
	Status BindingStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`

	Rows                int    `json:"rows"`
	Submitted           int    `json:"submitted"`
	SkippedUnsubscribed int    `json:"skipped_unsubscribed"`
	Batches             int    `json:"batches"`
	FailedBatches       int    `json:"failed_batches"`
	Totals              Totals `json:"totals"`

	ReconcileSkipped  bool `json:"reconcile_skipped"`
	Unsubscribed      int  `json:"unsubscribed"`
	UnsubscribeErrors int  `json:"unsubscribe_errors"`
}

// RunResult is the outcome of one sync trigger.
type RunResult struct {
	RunID      string          `json:"run_id"`
	Bindings   []BindingResult `json:"bindings"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Cancelled  bool            `json:"cancelled"`
	ExportPath string          `json:"export_path,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Failed reports whether the run was cancelled, crashed or had a failed binding.
func (r *RunResult) Failed() bool {
	if r.Cancelled || r.Error != "" {
		return true
	}
	for _, b := range r.Bindings {
		if b.Status == BindingFailed || b.Status == BindingCancelled {
			return true
		}
	}
	return false
}

// InvalidRecord is one address the remote service rejected.
type InvalidRecord struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// BindingInvalids groups the rejected addresses of one binding.
type BindingInvalids struct {
	Binding string          `json:"binding"`
	Records []InvalidRecord `json:"records"`
}

// RunInfo is a non-blocking view of a run for listings.
type RunInfo struct {
	ID          string    `json:"id"`
	Bindings    []string  `json:"bindings"`
	StartedAt   time.Time `json:"started_at"`
	Done        bool      `json:"done"`
	TriggeredBy Trigger   `json:"triggered_by"`
}
