package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/remote"
	"github.com/JonMunkholm/listsync/internal/sheet"
)

// execute syncs a run's bindings in declaration order. Failures are
// contained per binding; only cancellation stops the loop.
func (s *Service) execute(ctx context.Context, run *activeRun) *RunResult {
	result := &RunResult{
		RunID:     run.ID,
		StartedAt: run.StartedAt,
		Bindings:  make([]BindingResult, 0, len(run.Bindings)),
	}
	multi := len(run.Bindings) > 1

	for _, b := range run.Bindings {
		if err := ctx.Err(); err != nil {
			result.Bindings = append(result.Bindings, BindingResult{
				Name:   b.Name,
				ListID: b.ListID,
				Status: BindingCancelled,
				Reason: err.Error(),
			})
			continue
		}

		run.Log.SetBinding(b.Name)
		if multi {
			run.Log.Appendf("--- %s ---", b.Name)
		}

		br, imported := s.syncBinding(ctx, run.Log, b, run.Opts)
		result.Bindings = append(result.Bindings, br)

		if imported {
			if err := s.ExportInvalids(run.Log.Appendf); err == nil {
				result.ExportPath = s.opts.ExportPath
			}
		}
	}

	run.Log.SetBinding("")
	result.Cancelled = ctx.Err() != nil
	result.FinishedAt = time.Now()
	if result.Cancelled {
		run.Log.Appendf("Run stopped: %v", ctx.Err())
	}
	run.Log.Appendf("Run finished in %s", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	return result
}

// syncBinding runs the sync of one spreadsheet into one remote list. It
// reports whether the import phase was reached, which is when the invalid
// records for the binding were replaced and should be exported.
func (s *Service) syncBinding(ctx context.Context, log *RunLog, b config.Binding, opts SyncOptions) (BindingResult, bool) {
	res := BindingResult{Name: b.Name, ListID: b.ListID, Status: BindingPending}
	fail := func(err error) (BindingResult, bool) {
		res.Status = BindingFailed
		if ctx.Err() != nil {
			res.Status = BindingCancelled
		}
		res.Reason = err.Error()
		return res, false
	}

	table, err := sheet.Read(b.File)
	if err != nil {
		log.Appendf("Warning: could not read file %s: %v", b.File, err)
		return fail(err)
	}

	log.Appendf("Batch sync started: %s", filepath.Base(b.File))
	log.Appendf("Columns found: [%s]", strings.Join(table.Columns, ", "))

	emailCol, err := DetectEmailColumn(table.Columns)
	if err != nil {
		log.Appendf("Warning: no column containing an email address found")
		return fail(err)
	}

	if details, err := s.client.ListDetails(ctx, b.ListID); err != nil {
		log.Appendf("Warning: could not fetch list details: %s", describeRemoteError(err))
	} else {
		log.Appendf("Remote list: %s", details.Title)
	}

	var unsubscribed map[string]struct{}
	if opts.SkipUnsubscribed {
		unsubscribed, err = s.client.FetchMembers(ctx, b.ListID, remote.StatusUnsubscribed)
		if err != nil {
			log.Appendf("Warning: could not fetch unsubscribed addresses: %v", err)
			return fail(err)
		}
		log.Appendf("%d unsubscribed addresses will be skipped", len(unsubscribed))
	}

	res.Rows = len(table.Rows)
	subs := make([]remote.Subscriber, 0, len(table.Rows))
	sheetEmails := make(map[string]struct{}, len(table.Rows))
	for _, row := range table.Rows {
		sub, ok := NormalizeRow(table.Columns, row, emailCol, opts.Resubscribe)
		if !ok {
			continue
		}
		key := NormalizeEmail(sub.EmailAddress)
		if _, skip := unsubscribed[key]; skip {
			log.Appendf("Skipping unsubscribed %s", sub.EmailAddress)
			res.SkippedUnsubscribed++
			continue
		}
		subs = append(subs, sub)
		sheetEmails[key] = struct{}{}
	}

	if len(subs) == 0 {
		log.Appendf("Warning: no valid subscribers found in this file")
		res.Status = BindingEmpty
		res.Reason = ErrNoSubscribers.Error()
		return res, false
	}

	res.Submitted = len(subs)
	log.Appendf("Total subscribers to sync: %d", len(subs))

	// From here on this sync owns the binding's invalid records.
	s.invalids.Reset(b.Name)

	batches := Batches(subs, s.opts.BatchSize)
	for i, batch := range batches {
		n := i + 1
		if err := s.pacer.Wait(ctx); err != nil {
			log.Appendf("Batch %d: not sent, %v", n, err)
			break
		}

		ir, err := s.client.ImportBatch(ctx, b.ListID, batch, opts.Resubscribe)
		res.Batches++
		if err != nil {
			res.FailedBatches++
			log.Appendf("Batch %d: error %s", n, describeRemoteError(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		res.Totals.add(ir)
		for _, f := range ir.Failures {
			s.invalids.Add(b.Name, InvalidRecord{Email: f.EmailAddress, Reason: f.Message})
		}
		log.Appendf("Batch %d: new=%d, existing=%d, duplicates=%d, invalid=%d",
			n, ir.New, ir.Existing, ir.Duplicates, len(ir.Failures))
	}

	log.Appendf("=== Final report ===")
	log.Appendf("Total new: %d", res.Totals.New)
	log.Appendf("Total existing: %d", res.Totals.Existing)
	log.Appendf("Total duplicates: %d", res.Totals.Duplicates)
	log.Appendf("Total invalid: %d", res.Totals.Failures)
	if res.FailedBatches > 0 {
		log.Appendf("Failed batches: %d of %d", res.FailedBatches, len(batches))
	}

	if err := ctx.Err(); err != nil {
		res.Status = BindingCancelled
		res.Reason = err.Error()
		return res, true
	}

	if opts.Unsubscribe {
		log.Appendf("--- Unsubscribe check ---")
		s.reconcile(ctx, log, b, sheetEmails, &res)
	} else {
		log.Appendf("--- Unsubscribe skipped (not selected) ---")
	}

	res.Status = BindingCompleted
	if ctx.Err() != nil {
		res.Status = BindingCancelled
		res.Reason = ctx.Err().Error()
	}
	return res, true
}

// reconcile unsubscribes remote active members that are absent from the
// spreadsheet. A failed member fetch skips the step entirely so nothing
// is unsubscribed from partial data.
func (s *Service) reconcile(ctx context.Context, log *RunLog, b config.Binding, sheetEmails map[string]struct{}, res *BindingResult) {
	active, err := s.client.FetchMembers(ctx, b.ListID, remote.StatusActive)
	if err != nil {
		log.Appendf("Warning: could not fetch active subscribers, unsubscribe skipped: %v", err)
		res.ReconcileSkipped = true
		return
	}

	targets := UnsubscribeTargets(active, sheetEmails)
	log.Appendf("Active in remote list: %d", len(active))
	log.Appendf("In spreadsheet: %d", len(sheetEmails))
	log.Appendf("To unsubscribe: %d addresses", len(targets))

	for _, email := range targets {
		if ctx.Err() != nil {
			log.Appendf("Unsubscribe stopped: %v", ctx.Err())
			return
		}
		if err := s.client.Unsubscribe(ctx, b.ListID, email); err != nil {
			res.UnsubscribeErrors++
			log.Appendf("Warning: unsubscribe error %s: %s", email, describeRemoteError(err))
			continue
		}
		res.Unsubscribed++
		log.Appendf("Unsubscribed: %s", email)
	}
}

func describeRemoteError(err error) string {
	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("%d %s", statusErr.StatusCode, statusErr.Body)
	}
	return err.Error()
}
