package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/logging"
)

// Options configures a Service.
type Options struct {
	BatchSize        int
	BatchDelay       time.Duration
	SkipUnsubscribed bool
	Resubscribe      bool
	RunTimeout       time.Duration
	RunRetention     time.Duration
	MaxConcurrent    int
	MaxWait          time.Duration
	ExportPath       string
}

// OptionsFromConfig maps application configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:        cfg.Sync.BatchSize,
		BatchDelay:       cfg.Sync.BatchDelay,
		SkipUnsubscribed: cfg.Sync.SkipUnsubscribed,
		Resubscribe:      cfg.Sync.Resubscribe,
		RunTimeout:       cfg.Sync.Timeout,
		RunRetention:     cfg.Sync.RunRetention,
		MaxConcurrent:    cfg.Sync.MaxConcurrent,
		MaxWait:          cfg.Sync.MaxWait,
		ExportPath:       cfg.Export.Path(),
	}
}

// Service runs syncs and keeps their logs and results for a while.
type Service struct {
	bindings []config.Binding
	client   ListClient
	opts     Options

	pacer    *rate.Limiter
	limiter  *RunLimiter
	invalids *InvalidStore
	exportMu sync.Mutex

	mu     sync.RWMutex
	runs   map[string]*activeRun
	latest string
	// stale is a latest run past retention, dropped once another run starts.
	stale string
}

type activeRun struct {
	ID        string
	Trigger   Trigger
	Bindings  []config.Binding
	Opts      SyncOptions
	StartedAt time.Time
	Log       *RunLog
	Cancel    context.CancelFunc
	Result    *RunResult
	Done      chan struct{}
	finish    sync.Once
}

// NewService creates a Service over the given bindings.
func NewService(bindings []config.Binding, client ListClient, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Hour
	}
	if opts.RunRetention <= 0 {
		opts.RunRetention = time.Hour
	}

	limit := rate.Inf
	if opts.BatchDelay > 0 {
		limit = rate.Every(opts.BatchDelay)
	}

	return &Service{
		bindings: append([]config.Binding(nil), bindings...),
		client:   client,
		opts:     opts,
		pacer:    rate.NewLimiter(limit, 1),
		limiter:  NewRunLimiter(opts.MaxConcurrent, opts.MaxWait),
		invalids: NewInvalidStore(),
		runs:     make(map[string]*activeRun),
	}
}

// Bindings returns the configured bindings in declaration order.
func (s *Service) Bindings() []config.Binding {
	return append([]config.Binding(nil), s.bindings...)
}

// BindingIndex finds a binding by name, case-insensitively.
func (s *Service) BindingIndex(name string) (int, error) {
	for i, b := range s.bindings {
		if strings.EqualFold(b.Name, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownBinding, name)
}

// DefaultSyncOptions returns the configured per-trigger defaults.
func (s *Service) DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		SkipUnsubscribed: s.opts.SkipUnsubscribed,
		Resubscribe:      s.opts.Resubscribe,
	}
}

// ExportPath is where ExportInvalids writes the workbook.
func (s *Service) ExportPath() string {
	return s.opts.ExportPath
}

// Invalids returns the rejected addresses currently held.
func (s *Service) Invalids() []BindingInvalids {
	return s.invalids.Snapshot()
}

// InvalidCount is the number of rejected addresses currently held.
func (s *Service) InvalidCount() int {
	return s.invalids.Count()
}

// ExportInvalids writes the invalid-records workbook.
func (s *Service) ExportInvalids(logf func(format string, args ...any)) error {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()
	return ExportInvalids(s.invalids, s.opts.ExportPath, logf)
}

// LimiterStatus returns the run limiter state.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// StartSync begins an asynchronous sync of the binding at index.
// Returns the run ID immediately. Use SubscribeLog to follow it.
//
// Returns ErrTooManyRuns if no run slot frees up within the wait period.
func (s *Service) StartSync(ctx context.Context, index int, opts SyncOptions) (string, error) {
	if index < 0 || index >= len(s.bindings) {
		return "", fmt.Errorf("%w: index %d", ErrUnknownBinding, index)
	}
	return s.start(ctx, s.bindings[index:index+1], opts)
}

// StartSyncAll begins an asynchronous sync of every binding in order.
func (s *Service) StartSyncAll(ctx context.Context, opts SyncOptions) (string, error) {
	return s.start(ctx, s.bindings, opts)
}

func (s *Service) start(ctx context.Context, bindings []config.Binding, opts SyncOptions) (string, error) {
	// Acquire run slot (blocks until available or timeout)
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.opts.RunTimeout)
	run := s.newRun(ctx, bindings, opts, cancel)

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in sync run", "run_id", run.ID, "panic", r)
				run.Log.Appendf("Internal error: %v", r)
				s.finish(run, &RunResult{
					RunID:      run.ID,
					StartedAt:  run.StartedAt,
					FinishedAt: time.Now(),
					Error:      fmt.Sprintf("internal error: %v", r),
				})
			}
		}()
		s.finish(run, s.execute(runCtx, run))
	}()

	return run.ID, nil
}

// RunNow syncs the bindings at indexes synchronously, passing each log line
// to onLine as it is written. Used by the CLI.
func (s *Service) RunNow(ctx context.Context, indexes []int, opts SyncOptions, onLine func(string)) (*RunResult, error) {
	bindings := make([]config.Binding, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(s.bindings) {
			return nil, fmt.Errorf("%w: index %d", ErrUnknownBinding, i)
		}
		bindings = append(bindings, s.bindings[i])
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()
	run := s.newRun(ctx, bindings, opts, cancel)

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range run.Log.Subscribe(context.Background()) {
			if onLine != nil {
				onLine(line)
			}
		}
	}()

	s.finish(run, s.execute(runCtx, run))
	<-printed

	return run.Result, nil
}

func (s *Service) newRun(ctx context.Context, bindings []config.Binding, opts SyncOptions, cancel context.CancelFunc) *activeRun {
	id := uuid.New().String()
	trigger := TriggerFromContext(ctx)
	logger := logging.WithFields(ctx, "run_id", id)
	run := &activeRun{
		ID:        id,
		Trigger:   trigger,
		Bindings:  bindings,
		Opts:      opts,
		StartedAt: time.Now(),
		Log:       NewRunLog(logger),
		Cancel:    cancel,
		Done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.stale != "" {
		delete(s.runs, s.stale)
		s.stale = ""
	}
	s.runs[id] = run
	s.latest = id
	s.mu.Unlock()

	logger.Info("sync run started",
		"bindings", len(bindings),
		"source", trigger.Source,
		"ip", trigger.IPAddress,
		"unsubscribe", opts.Unsubscribe,
		"skip_unsubscribed", opts.SkipUnsubscribed,
	)
	return run
}

func (s *Service) finish(run *activeRun, result *RunResult) {
	run.finish.Do(func() {
		run.Result = result
		run.Log.Close()
		close(run.Done)
		s.cleanup(run.ID, s.opts.RunRetention)
	})
}

// cleanup forgets a finished run after retention. The latest run is kept
// so the stream endpoint always has something to show; it is marked stale
// and dropped when the next run starts.
func (s *Service) cleanup(runID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.latest == runID {
			s.stale = runID
			return
		}
		delete(s.runs, runID)
	})
}

func (s *Service) getRun(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// LatestRunID returns the most recently started run, if any.
func (s *Service) LatestRunID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != ""
}

// SubscribeLog streams a run's log from its first line. The channel closes
// when the run has finished and every line was delivered, or ctx ends.
func (s *Service) SubscribeLog(ctx context.Context, runID string) (<-chan string, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	return run.Log.Subscribe(ctx), nil
}

// LogLines returns the lines a run has logged so far and whether it has
// finished.
func (s *Service) LogLines(runID string) ([]string, bool, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, false, err
	}
	return run.Log.Lines(), run.Log.Closed(), nil
}

// RunResult returns the result of a run.
// Blocks until the run completes if still in progress.
func (s *Service) RunResult(ctx context.Context, runID string) (*RunResult, error) {
	run, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.Done:
		return run.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelRun stops an in-progress run between remote calls.
func (s *Service) CancelRun(runID string) error {
	run, err := s.getRun(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// Runs lists the runs still held, newest first.
func (s *Service) Runs() []RunInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]RunInfo, 0, len(s.runs))
	for _, run := range s.runs {
		names := make([]string, len(run.Bindings))
		for i, b := range run.Bindings {
			names[i] = b.Name
		}
		infos = append(infos, RunInfo{
			ID:          run.ID,
			Bindings:    names,
			StartedAt:   run.StartedAt,
			Done:        run.Log.Closed(),
			TriggeredBy: run.Trigger,
		})
	}
	slices.SortFunc(infos, func(a, b RunInfo) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return infos
}

// WaitForRuns blocks until no run holds a slot or ctx ends.
// Used for graceful shutdown.
func (s *Service) WaitForRuns(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
