// Package command sends operator actions to the server and folds partial
// failures into one report per action.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/five82/klaxon/internal/alarm"
	"github.com/five82/klaxon/internal/metrics"
)

// Server is the slice of the session API the dispatcher needs.
type Server interface {
	Acknowledge(ctx context.Context, id int64, sticky bool, timeout time.Duration) error
	ResolveAlarms(ctx context.Context, ids []int64) (map[int64]int, error)
	TerminateAlarms(ctx context.Context, ids []int64) (map[int64]int, error)
}

// Reporter receives reports that need the operator's attention.
type Reporter interface {
	OnCommandReport(Report)
}

// Failure is one alarm the server refused or the call could not reach.
type Failure struct {
	ID     int64
	Code   int // 0 when the failure was not a server result code
	Reason string
}

// Report summarizes one dispatched action.
type Report struct {
	Action       alarm.Action
	RequestID    string
	Requested    []int64
	Failures     []Failure
	NotAttempted []int64 // skipped after cancellation
	// Transport is set when the whole request failed.
	Transport error
}

// Clean reports whether every requested alarm was processed.
func (r Report) Clean() bool {
	return len(r.Failures) == 0 && len(r.NotAttempted) == 0 && r.Transport == nil
}

// Err returns a consolidated error, or nil for a clean report.
func (r Report) Err() error {
	if r.Clean() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures)+2)
	if r.Transport != nil {
		errs = append(errs, r.Transport)
	}
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("alarm %d: %s", f.ID, f.Reason))
	}
	if n := len(r.NotAttempted); n > 0 {
		errs = append(errs, fmt.Errorf("%d alarm(s) not attempted: %w", n, context.Canceled))
	}
	return fmt.Errorf("%s (request %s): %w", r.Action, r.RequestID, errors.Join(errs...))
}

// Summary is a one-paragraph description for dialogs and CLI output.
func (r Report) Summary() string {
	if r.Clean() {
		return fmt.Sprintf("%s: %d alarm(s) done", r.Action, len(r.Requested))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d alarm(s) failed", r.Action, len(r.Failures), len(r.Requested))
	if r.Transport != nil {
		fmt.Fprintf(&b, "\n  request failed: %v", r.Transport)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\n  [%d] %s", f.ID, f.Reason)
	}
	if n := len(r.NotAttempted); n > 0 {
		fmt.Fprintf(&b, "\n  %d not attempted (cancelled)", n)
	}
	return b.String()
}

// Server result codes with a known meaning.
const (
	CodeAccessDenied        = 3
	CodeInvalidAlarmID      = 19
	CodeAlarmNotOutstanding = 50
	CodeAlarmNotResolved    = 51
	CodeOutOfStateRequest   = 95
)

var codeText = map[int]string{
	CodeAccessDenied:        "access denied",
	CodeInvalidAlarmID:      "invalid alarm id",
	CodeAlarmNotOutstanding: "alarm is not outstanding",
	CodeAlarmNotResolved:    "alarm is not resolved",
	CodeOutOfStateRequest:   "request is out of state",
}

// Describe returns the text for a server result code.
func Describe(code int) string {
	if s, ok := codeText[code]; ok {
		return s
	}
	return fmt.Sprintf("server error %d", code)
}

// TimedAckPresets returns the default durations offered for a timed sticky
// acknowledgement.
func TimedAckPresets() []time.Duration {
	return []time.Duration{time.Hour, 4 * time.Hour, 24 * time.Hour, 48 * time.Hour}
}

// Dispatcher issues commands against a Server.
type Dispatcher struct {
	server   Server
	reporter Reporter
	log      zerolog.Logger
	metrics  *metrics.Metrics
	newID    func() string
}

// NewDispatcher returns a dispatcher. reporter may be nil.
func NewDispatcher(server Server, reporter Reporter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{server: server, reporter: reporter, log: logger, newID: uuid.NewString}
}

// SetReporter replaces the report sink.
func (d *Dispatcher) SetReporter(r Reporter) { d.reporter = r }

// SetMetrics enables command counters.
func (d *Dispatcher) SetMetrics(m *metrics.Metrics) { d.metrics = m }

// Acknowledge acknowledges each alarm in turn. A sticky acknowledgement with
// a positive duration expires after that long. Cancelling ctx stops the loop;
// the remaining ids are reported as not attempted.
func (d *Dispatcher) Acknowledge(ctx context.Context, ids []int64, sticky bool, duration time.Duration) Report {
	action := alarm.ActionAcknowledge
	if sticky {
		action = alarm.ActionStickyAcknowledge
	}
	r := d.begin(action, ids)
	for i, id := range ids {
		if ctx.Err() != nil {
			r.NotAttempted = append(r.NotAttempted, ids[i:]...)
			break
		}
		if err := d.server.Acknowledge(ctx, id, sticky, duration); err != nil {
			if ctx.Err() != nil {
				r.NotAttempted = append(r.NotAttempted, ids[i:]...)
				break
			}
			r.Failures = append(r.Failures, Failure{ID: id, Reason: err.Error()})
		}
	}
	return d.finish(r)
}

// Resolve resolves ids in one request.
func (d *Dispatcher) Resolve(ctx context.Context, ids []int64) Report {
	return d.bulk(ctx, alarm.ActionResolve, ids, d.server.ResolveAlarms)
}

// Terminate terminates ids in one request.
func (d *Dispatcher) Terminate(ctx context.Context, ids []int64) Report {
	return d.bulk(ctx, alarm.ActionTerminate, ids, d.server.TerminateAlarms)
}

func (d *Dispatcher) bulk(ctx context.Context, action alarm.Action, ids []int64, call func(context.Context, []int64) (map[int64]int, error)) Report {
	r := d.begin(action, ids)
	if len(ids) == 0 {
		return d.finish(r)
	}
	failures, err := call(ctx, ids)
	if err != nil {
		r.Transport = err
		return d.finish(r)
	}
	for id, code := range failures {
		r.Failures = append(r.Failures, Failure{ID: id, Code: code, Reason: Describe(code)})
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].ID < r.Failures[j].ID })
	return d.finish(r)
}

func (d *Dispatcher) begin(action alarm.Action, ids []int64) Report {
	return Report{Action: action, RequestID: d.newID(), Requested: append([]int64(nil), ids...)}
}

func (d *Dispatcher) finish(r Report) Report {
	ev := d.log.Info()
	if !r.Clean() {
		ev = d.log.Warn().Err(r.Err())
	}
	ev.Str("action", r.Action.String()).
		Str("request_id", r.RequestID).
		Int("requested", len(r.Requested)).
		Int("failed", len(r.Failures)).
		Int("not_attempted", len(r.NotAttempted)).
		Msg("command dispatched")
	d.metrics.ObserveCommand(r.Action.String(), r.Err())
	if !r.Clean() && d.reporter != nil {
		d.reporter.OnCommandReport(r)
	}
	return r
}
