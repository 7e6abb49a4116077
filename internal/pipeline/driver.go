package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wastetwin/provision-core/internal/entity"
	"github.com/wastetwin/provision-core/internal/fiware"
	"github.com/wastetwin/provision-core/internal/infrastructure/journal"
	"github.com/wastetwin/provision-core/internal/infrastructure/logging"
)

// Mode selects the direction of a run.
type Mode int

const (
	// Create provisions every record.
	Create Mode = iota

	// Delete retracts every record, tolerating already-absent targets.
	Delete
)

func (m Mode) String() string {
	if m == Delete {
		return "delete"
	}
	return "create"
}

// Record outcomes as stored in the journal and the report.
const (
	OutcomeCreated  = "created"
	OutcomeDeleted  = "deleted"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// Platform is the provisioning surface the driver dispatches to.
// *fiware.Client implements it.
type Platform interface {
	Authenticate(ctx context.Context) error
	CreateEntity(ctx context.Context, e entity.BrokerEntity) error
	DeleteEntity(ctx context.Context, id string) error
	CreateDevice(ctx context.Context, device *entity.Entity) error
	DeleteDevice(ctx context.Context, deviceID, protocol string) error
	CreateGroup(ctx context.Context, group *entity.Group) error
	DeleteGroup(ctx context.Context, apiKey, protocol string) error
}

// RowResult is one record's outcome within a run.
type RowResult struct {
	Source  string
	Line    int
	Key     string
	Target  string
	Outcome string
	Err     error
}

// Report summarises a run. Every streamed record is counted exactly once.
type Report struct {
	Mode       Mode
	RunID      string // journal run id, "" when the journal is disabled
	Succeeded  int
	Conflicted int
	Failed     int
	Rows       []RowResult
}

// Summary returns the one-line form printed at the end of a run.
func (r *Report) Summary() string {
	verb := "provisioned"
	if r.Mode == Delete {
		verb = "retracted"
	}
	return fmt.Sprintf("%d %s, %d conflicted, %d failed", r.Succeeded, verb, r.Conflicted, r.Failed)
}

// Clean reports whether every record succeeded.
func (r *Report) Clean() bool {
	return r.Conflicted == 0 && r.Failed == 0
}

// Options configures a Driver.
type Options struct {
	// DefaultProtocol is applied to records without a protocol of their own.
	DefaultProtocol string

	// FailFast aborts the run at the first failed record. Conflicts do not
	// trigger it: a conflict is the expected signal on re-runs.
	FailFast bool

	// Journal, when set, records the run and each record outcome.
	Journal *journal.Journal

	// Logger defaults to logging.Default().
	Logger *logging.Logger
}

// Driver executes provisioning runs.
type Driver struct {
	platform Platform
	journal  *journal.Journal
	log      *logging.Logger
	proto    string
	failFast bool
}

// New creates a Driver dispatching to the given platform.
func New(platform Platform, opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Driver{
		platform: platform,
		journal:  opts.Journal,
		log:      log.With("component", "pipeline"),
		proto:    opts.DefaultProtocol,
		failFast: opts.FailFast,
	}
}

// errStop aborts the record stream when fail-fast trips.
var errStop = errors.New("stop")

// errSkipFile abandons the rest of a file after a descriptor defect.
var errSkipFile = errors.New("skip file")

// Run processes every descriptor under the given paths.
//
// Records are dispatched independently in source order; groups defined in
// YAML files are visible to entities in the same and later files. Parse
// and classification failures abandon the rest of the offending file;
// conflict and transport failures are scoped to their record. The
// returned Report is valid even when err is non-nil.
//
// Returns:
//   - *Report: per-record outcomes and counters
//   - error: nil on a clean run; ErrRowsFailed when records failed or
//     conflicted; ErrAborted when fail-fast stopped the run; setup
//     failures (paths, auth, journal) are returned as-is
func (d *Driver) Run(ctx context.Context, paths []string, mode Mode) (*Report, error) {
	files, err := ExpandPaths(paths)
	if err != nil {
		return nil, err
	}

	if err := d.platform.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	report := &Report{Mode: mode}

	var runID string
	if d.journal != nil {
		runID, err = d.journal.StartRun(ctx, mode.String(), strings.Join(files, ","))
		if err != nil {
			return nil, err
		}
		report.RunID = runID
		defer func() {
			// The journal must record the run even when ctx was cancelled.
			if err := d.journal.FinishRun(context.WithoutCancel(ctx), runID); err != nil {
				d.log.Warn("finishing journal run", "error", err)
			}
		}()
	}

	groups := make(map[string]*entity.Group)
	seq := 0
	aborted := false

	for _, file := range files {
		err := forEachRecord(file, d.proto, groups, func(item Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			seq++
			result := d.dispatch(ctx, mode, item)
			d.record(ctx, runID, seq, report, result)
			if d.failFast && result.Outcome == OutcomeFailed {
				return errStop
			}
			if item.Err != nil {
				// A row that fails to parse or classify is a descriptor
				// defect, not a transient condition: the rest of the file
				// is untrustworthy. Remaining files still run.
				return errSkipFile
			}
			return nil
		})

		switch {
		case err == nil:
		case errors.Is(err, errSkipFile):
			d.log.Warn("skipping remainder of defective descriptor", "source", file)
		case errors.Is(err, errStop):
			aborted = true
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			// File-level failure: unreadable file or invalid header.
			seq++
			d.record(ctx, runID, seq, report, RowResult{
				Source:  file,
				Key:     file,
				Outcome: OutcomeFailed,
				Err:     err,
			})
			if d.failFast {
				aborted = true
			}
		}
		if aborted {
			break
		}
	}

	d.log.Info("run finished", "mode", mode.String(), "summary", report.Summary())

	switch {
	case aborted:
		return report, fmt.Errorf("%w after %d records: %s", ErrAborted, len(report.Rows), report.Summary())
	case !report.Clean():
		return report, fmt.Errorf("%w: %s", ErrRowsFailed, report.Summary())
	default:
		return report, nil
	}
}

// dispatch sends one record to the API that owns it and classifies the
// outcome.
func (d *Driver) dispatch(ctx context.Context, mode Mode, item Item) RowResult {
	result := RowResult{Source: item.Source, Line: item.Line}
	if item.Err != nil {
		result.Outcome = OutcomeFailed
		result.Err = item.Err
		return result
	}

	record := item.Record
	result.Key = record.Key()

	var err error
	switch {
	case record.Group != nil:
		result.Target = entity.IoTAgentGroup.String()
		err = d.dispatchGroup(ctx, mode, record.Group)
	default:
		var target entity.Target
		target, err = entity.Route(record.Entity)
		if err == nil {
			result.Target = target.String()
			err = d.dispatchEntity(ctx, mode, target, record.Entity)
		}
	}

	switch {
	case err == nil:
		if mode == Delete {
			result.Outcome = OutcomeDeleted
		} else {
			result.Outcome = OutcomeCreated
		}
	case errors.Is(err, fiware.ErrConflict):
		result.Outcome = OutcomeConflict
		result.Err = err
	default:
		result.Outcome = OutcomeFailed
		result.Err = err
	}
	return result
}

// dispatchGroup provisions or retracts a service group. Retraction runs
// one delete per registered protocol, concurrently.
func (d *Driver) dispatchGroup(ctx context.Context, mode Mode, group *entity.Group) error {
	if mode == Create {
		return d.platform.CreateGroup(ctx, group)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, protocol := range group.Protocol {
		protocol := protocol
		g.Go(func() error {
			return d.platform.DeleteGroup(gctx, group.APIKey, protocol)
		})
	}
	return g.Wait()
}

// dispatchEntity provisions or retracts one entity on its target.
//
// Retracting a device-managed entity fans out to both legs: the device
// registration and the broker entity the IoT-Agent created as a side
// effect of provisioning it.
func (d *Driver) dispatchEntity(ctx context.Context, mode Mode, target entity.Target, ent *entity.Entity) error {
	if mode == Create {
		if target == entity.IoTAgentDevice {
			return d.platform.CreateDevice(ctx, ent)
		}
		return d.platform.CreateEntity(ctx, entity.BrokerPayload(ent))
	}

	if target == entity.IoTAgentDevice {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return d.platform.DeleteDevice(gctx, ent.DeviceID, ent.Protocol)
		})
		g.Go(func() error {
			return d.platform.DeleteEntity(gctx, ent.DeviceID)
		})
		return g.Wait()
	}
	return d.platform.DeleteEntity(ctx, ent.DeviceID)
}

// record counts, logs, and journals one result.
func (d *Driver) record(ctx context.Context, runID string, seq int, report *Report, result RowResult) {
	report.Rows = append(report.Rows, result)
	switch result.Outcome {
	case OutcomeFailed:
		report.Failed++
		d.log.Error("record failed",
			"source", result.Source, "line", result.Line,
			"key", result.Key, "error", result.Err)
	case OutcomeConflict:
		report.Conflicted++
		d.log.Warn("record conflicted",
			"source", result.Source, "line", result.Line,
			"key", result.Key, "target", result.Target)
	default:
		report.Succeeded++
		d.log.Info("record "+result.Outcome,
			"source", result.Source, "line", result.Line,
			"key", result.Key, "target", result.Target)
	}

	if d.journal == nil {
		return
	}
	var errText string
	if result.Err != nil {
		errText = result.Err.Error()
	}
	err := d.journal.RecordRow(context.WithoutCancel(ctx), runID, journal.RowOutcome{
		Line:    seq,
		Key:     result.Key,
		Target:  result.Target,
		Outcome: result.Outcome,
		Error:   errText,
	})
	if err != nil {
		d.log.Warn("journalling record outcome", "error", err)
	}
}
