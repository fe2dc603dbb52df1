// Package batch sequences entries through the expense pipeline: resolve,
// fill, submit, verify. Entries fail in isolation; a bad entry is recorded
// and the run moves on. Login failure is the one fatal case, and the
// session is released on every exit path.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tourcharge/internal/config"
	"tourcharge/internal/driver"
	"tourcharge/internal/form"
	"tourcharge/internal/logging"
	"tourcharge/internal/resolver"
	"tourcharge/internal/session"
	"tourcharge/internal/types"
	"tourcharge/internal/verify"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxReasonLen caps recorded failure reasons; wrapped driver errors can
// carry whole JS evaluation traces.
const maxReasonLen = 100

// Sink receives the finished BatchResult. Emit takes no context because
// results must be persisted even when the run's context was canceled.
type Sink interface {
	Emit(result *types.BatchResult) error
}

// Orchestrator owns one run's pipeline: a single session, a single page,
// one entry in flight at a time.
type Orchestrator struct {
	cfg      config.Config
	session  *session.Manager
	resolver *resolver.Resolver
	machine  *form.Machine
	verifier *verify.Extractor
	limiter  *rate.Limiter
	sinks    []Sink
	observe  func(done, total int, res types.Result)
	now      func() time.Time
}

// New wires a pipeline over the given driver. Sinks receive the
// BatchResult when the run ends, in the order given.
func New(cfg config.Config, drv driver.Driver, sinks ...Sink) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		session:  session.NewManager(cfg, drv),
		resolver: resolver.New(cfg, drv),
		machine:  form.New(cfg, drv),
		verifier: verify.New(drv),
		limiter:  rate.NewLimiter(rate.Every(cfg.Batch.EntryDelay()), 1),
		sinks:    sinks,
		now:      time.Now,
	}
}

// Session exposes the run's session manager, for callers that preflight
// the portal before starting.
func (o *Orchestrator) Session() *session.Manager { return o.session }

// OnResult registers an observer called after each processed entry with
// the 1-based position, the window size and the entry's result. It runs
// on the run goroutine and must not block.
func (o *Orchestrator) OnResult(fn func(done, total int, res types.Result)) {
	o.observe = fn
}

// Window returns the sub-slice selected by start offset and max count.
// A limit of zero means unbounded, matching the source windowing rules.
func Window(entries []types.Entry, start, limit int) []types.Entry {
	if start < 0 {
		start = 0
	}
	if start >= len(entries) {
		return nil
	}
	entries = entries[start:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

// Run processes the configured window of entries in source order. The
// returned BatchResult preserves that order and is emitted to the sinks
// even when the run was interrupted; it is nil only when login failed.
func (o *Orchestrator) Run(ctx context.Context, entries []types.Entry) (*types.BatchResult, error) {
	defer func() {
		if err := o.session.Release(); err != nil {
			logging.BatchError("release session: %v", err)
		}
	}()

	window := Window(entries, o.cfg.Batch.Start, o.cfg.Batch.Limit)
	result := &types.BatchResult{
		RunID:   uuid.New().String(),
		Started: o.now(),
	}
	logging.Batch("run %s: %d of %d entries (start %d, limit %d)",
		result.RunID, len(window), len(entries), o.cfg.Batch.Start, o.cfg.Batch.Limit)

	if err := o.session.Login(ctx); err != nil {
		logging.BatchError("run %s aborted: %v", result.RunID, err)
		return nil, fmt.Errorf("login: %w", err)
	}

	for i, entry := range window {
		// The limiter spaces entry starts; it also carries the only
		// cancellation point, so an in-flight fill is never interrupted.
		if err := o.limiter.Wait(ctx); err != nil {
			logging.BatchWarn("run %s interrupted after %d entries: %v",
				result.RunID, len(result.Results), err)
			return o.finish(result, err)
		}
		res := o.processEntry(ctx, entry)
		result.Append(res)
		logging.Batch("entry %d/%d %s: %s", i+1, len(window), entry.TourCode, res.Status)
		if o.observe != nil {
			o.observe(i+1, len(window), res)
		}
	}
	return o.finish(result, nil)
}

// processEntry runs one entry through resolve, fill and verify. All
// pipeline errors end here as a Failed result; nothing propagates.
func (o *Orchestrator) processEntry(ctx context.Context, entry types.Entry) (res types.Result) {
	res = types.Result{Entry: entry}
	defer func() { res.Timestamp = o.now() }()

	if err := entry.Validate(); err != nil {
		res.Status = types.StatusFailed
		res.Reason = types.TruncateReason(err.Error(), maxReasonLen)
		return res
	}

	code, err := o.resolver.Resolve(ctx, entry.TourCode)
	if err != nil {
		logging.BatchWarn("%s: %v", entry.TourCode, err)
		res.Status = types.StatusFailed
		res.Reason = FailureReason(err)
		return res
	}
	res.ProgramCode = code

	if err := o.machine.Run(ctx, entry, code); err != nil {
		logging.BatchWarn("%s: form failed at %s: %v", entry.TourCode, o.machine.State(), err)
		res.Status = types.StatusFailed
		res.Reason = FailureReason(err)
		return res
	}

	res.Status = types.StatusSuccess
	if id, ok := o.verifier.Extract(ctx); ok {
		res.ConfirmationID = id
		logging.Batch("%s: expense created: %s", entry.TourCode, id)
	} else {
		logging.Batch("%s: form submitted (no expense number returned)", entry.TourCode)
	}
	return res
}

// finish stamps the result, emits it, and folds sink failures into the
// run error when the run itself was clean.
func (o *Orchestrator) finish(result *types.BatchResult, runErr error) (*types.BatchResult, error) {
	result.Finished = o.now()
	logging.Batch("run %s finished: %s", result.RunID, result.Summary())

	if err := o.emit(result); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			logging.BatchError("emit after interrupted run: %v", err)
		}
	}
	return result, runErr
}

func (o *Orchestrator) emit(result *types.BatchResult) error {
	var errs []error
	for _, s := range o.sinks {
		if err := s.Emit(result); err != nil {
			logging.BatchError("sink %T: %v", s, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FailureReason maps a pipeline error to the short reason recorded on the
// result row.
func FailureReason(err error) string {
	var reason string
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		reason = "No program code found"
	case errors.Is(err, form.ErrProgramNotFound):
		reason = "Program not found"
	case errors.Is(err, form.ErrTourCodeNotFound):
		reason = "Tour code not found"
	case errors.Is(err, form.ErrSubmitControlNotFound):
		reason = "Submit button not found"
	default:
		reason = err.Error()
	}
	return types.TruncateReason(reason, maxReasonLen)
}
