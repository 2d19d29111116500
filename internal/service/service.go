package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/cmplx"
	"time"

	"github.com/google/uuid"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/codec"
	"dendroreduce/internal/domain"
	"dendroreduce/internal/morphology"
	"dendroreduce/internal/reduce"
	"dendroreduce/internal/repository"
	"dendroreduce/internal/telemetry"
)

var (
	// ErrNoRoots is returned when a request names no subtree to reduce
	ErrNoRoots = errors.New("no subtree roots given")
	// ErrUnknownDomain is returned for a domain the model does not have
	ErrUnknownDomain = errors.New("unknown domain")
	// ErrNotUndoable is returned for a run that was already undone
	ErrNotUndoable = errors.New("run already undone")
	// ErrModelChanged is returned when the file no longer holds a run's result
	ErrModelChanged = errors.New("model changed since the run")
)

// ReduceRequest describes one reduction of a model file
type ReduceRequest struct {
	Model        string // source path, recorded with the run
	Output       string // destination path, defaults to Model
	Input        []byte
	Format       string
	OutputFormat string // defaults to Format, or yaml for SWC input
	Roots        []int
	Domains      []string // reduce every top section of these domains
	Config       reduce.Config
	DryRun       bool // reduce without recording a run

	// Write stores the result once the run is recorded. If it fails the
	// run is removed again. Dry runs never call it.
	Write func(output []byte) error
}

// ReduceResult is the outcome of a reduction
type ReduceResult struct {
	Run        *domain.Run
	Output     []byte
	Morphology *morphology.Morphology
}

// UndoRequest selects the run to undo
type UndoRequest struct {
	RunID   string // empty selects the latest applied run writing Output
	Output  string
	Current []byte // current file content; nil skips the change check
	Force   bool

	// Restore puts the pre-run content back. The run is only marked undone
	// after it succeeds.
	Restore func(run *domain.Run, before *domain.Snapshot) error
}

// ReductionService provides business logic for reduction runs
type ReductionService struct {
	repo      repository.Repository
	eventBus  *EventBus
	registry  *biophys.Registry
	telemetry *telemetry.Telemetry
	logger    *log.Logger
	newID     func() string
}

// NewReductionService creates a new reduction service. A nil registry
// means biophys.DefaultRegistry(); nil telemetry means the global providers.
func NewReductionService(repo repository.Repository, eventBus *EventBus, registry *biophys.Registry, tel *telemetry.Telemetry, logger *log.Logger) *ReductionService {
	if registry == nil {
		registry = biophys.DefaultRegistry()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReductionService{
		repo:      repo,
		eventBus:  eventBus,
		registry:  registry,
		telemetry: tel,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Load parses a model file
func (s *ReductionService) Load(format string, data []byte) (*morphology.Morphology, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, format)
	}
	m, err := c.Parse(bytes.NewReader(data), s.registry, morphology.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", format, err)
	}
	return m, nil
}

// Reduce replaces the requested subtrees by equivalent cylinders and, unless
// DryRun is set, records the run with snapshots of both file versions.
func (s *ReductionService) Reduce(ctx context.Context, req ReduceRequest) (*ReduceResult, error) {
	m, err := s.Load(req.Format, req.Input)
	if err != nil {
		return nil, err
	}
	roots, err := ResolveRoots(m, req.Roots, req.Domains)
	if err != nil {
		return nil, err
	}

	cfg := req.Config.WithDefaults()
	before := m.SegmentCount(m.Sections())

	opts := []reduce.Option{reduce.WithLogger(s.logger)}
	if s.telemetry != nil {
		opts = append(opts, reduce.WithTelemetry(s.telemetry))
	}
	results, err := reduce.New(m, opts...).ReduceMany(ctx, roots, cfg)
	if err != nil {
		s.eventBus.Publish(Event{
			Type:    EventRunFailed,
			Payload: map[string]string{"model": req.Model, "error": err.Error()},
		})
		return nil, fmt.Errorf("reduce %s: %w", req.Model, err)
	}

	outFormat := req.OutputFormat
	if outFormat == "" {
		outFormat = req.Format
		if outFormat == "swc" {
			outFormat = "yaml"
		}
	}
	out, err := codec.ForFormat(outFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, outFormat)
	}
	var buf bytes.Buffer
	if err := out.Export(m, &buf); err != nil {
		return nil, err
	}

	run := domain.NewRun(s.newID(), req.Model)
	if req.Output != "" {
		run.Output = req.Output
	}
	run.Fingerprint = repository.Fingerprint(req.Input)
	run.ResultFingerprint = repository.Fingerprint(buf.Bytes())
	run.Config = runConfig(cfg)
	run.SegmentsBefore = before
	run.SegmentsAfter = m.SegmentCount(m.Sections())
	for i, res := range results {
		run.Roots = append(run.Roots, int(roots[i]))
		run.Subtrees = append(run.Subtrees, summarize(res))
	}

	if !req.DryRun {
		if err := s.record(ctx, run, req.Format, req.Input, outFormat, buf.Bytes()); err != nil {
			return nil, err
		}
		if req.Write != nil {
			if err := req.Write(buf.Bytes()); err != nil {
				err = fmt.Errorf("write %s: %w", run.Output, err)
				return nil, errors.Join(err, s.repo.DeleteRun(ctx, run.ID))
			}
		}
	}

	s.eventBus.Publish(Event{
		Type:    EventRunCompleted,
		Payload: map[string]interface{}{"run_id": run.ID, "model": run.Model, "subtrees": len(run.Subtrees), "dry_run": req.DryRun},
	})

	return &ReduceResult{Run: run, Output: buf.Bytes(), Morphology: m}, nil
}

// record stores the run and both snapshots, removing the run again if a
// snapshot cannot be written
func (s *ReductionService) record(ctx context.Context, run *domain.Run, inFormat string, input []byte, outFormat string, output []byte) error {
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return err
	}
	snapshots := []*domain.Snapshot{
		domain.NewSnapshot(run.ID, domain.SnapshotBefore, inFormat, input),
		domain.NewSnapshot(run.ID, domain.SnapshotAfter, outFormat, output),
	}
	for _, snap := range snapshots {
		if err := s.repo.SaveSnapshot(ctx, snap); err != nil {
			return errors.Join(err, s.repo.DeleteRun(ctx, run.ID))
		}
	}
	return nil
}

// Undo restores the file content from before a run through req.Restore,
// then marks the run undone. It returns the run and the restored snapshot.
func (s *ReductionService) Undo(ctx context.Context, req UndoRequest) (*domain.Run, *domain.Snapshot, error) {
	var (
		run *domain.Run
		err error
	)
	if req.RunID != "" {
		run, err = s.repo.GetRun(ctx, req.RunID)
	} else {
		run, err = s.repo.LatestRun(ctx, req.Output)
	}
	if err != nil {
		return nil, nil, err
	}

	if !run.IsUndoable() {
		return nil, nil, fmt.Errorf("run %s: %w", run.ID, ErrNotUndoable)
	}
	if req.Current != nil && !req.Force {
		if got := repository.Fingerprint(req.Current); got != run.ResultFingerprint {
			return nil, nil, fmt.Errorf("%s: %w", run.Output, ErrModelChanged)
		}
	}

	snap, err := s.repo.GetSnapshot(ctx, run.ID, domain.SnapshotBefore)
	if err != nil {
		return nil, nil, err
	}
	if req.Restore != nil {
		if err := req.Restore(run, snap); err != nil {
			return nil, nil, fmt.Errorf("restore %s: %w", run.Output, err)
		}
	}

	now := time.Now()
	if err := s.repo.MarkRunUndone(ctx, run.ID, now); err != nil {
		return nil, nil, err
	}
	run.MarkUndone(now)

	s.eventBus.Publish(Event{
		Type:    EventRunUndone,
		Payload: map[string]string{"run_id": run.ID, "output": run.Output},
	})

	return run, snap, nil
}

// Runs returns recorded runs, newest first
func (s *ReductionService) Runs(ctx context.Context, model string, limit int) ([]domain.Run, error) {
	return s.repo.ListRuns(ctx, model, limit)
}

// Run retrieves a single run by ID
func (s *ReductionService) Run(ctx context.Context, id string) (*domain.Run, error) {
	return s.repo.GetRun(ctx, id)
}

// Snapshot retrieves one file snapshot of a run
func (s *ReductionService) Snapshot(ctx context.Context, runID string, kind domain.SnapshotKind) (*domain.Snapshot, error) {
	return s.repo.GetSnapshot(ctx, runID, kind)
}

// ResolveRoots turns section handles and domain names into subtree roots.
// A domain contributes each member whose parent lies outside the domain.
// Duplicates are dropped; overlap is left to the reducer to reject.
func ResolveRoots(m *morphology.Morphology, sections []int, domains []string) ([]morphology.SectionID, error) {
	var roots []morphology.SectionID
	seen := make(map[morphology.SectionID]bool)
	add := func(id morphology.SectionID) {
		if !seen[id] {
			seen[id] = true
			roots = append(roots, id)
		}
	}

	for _, id := range sections {
		add(morphology.SectionID(id))
	}
	for _, name := range domains {
		d := m.Domain(name)
		if d == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
		}
		for _, id := range d.Sections() {
			sec := m.Section(id)
			if sec.IsRoot() || d.Contains(sec.Parent) {
				continue
			}
			add(id)
		}
	}

	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	return roots, nil
}

func runConfig(cfg reduce.Config) domain.RunConfig {
	return domain.RunConfig{
		Frequency:     cfg.Frequency,
		Strategy:      string(cfg.Segmentation.Strategy),
		TotalSegments: cfg.Segmentation.TotalSegments,
		MinFraction:   cfg.Segmentation.MinFraction,
		Missing:       string(cfg.Missing),
		MaxIter:       cfg.MaxIter,
		Tolerance:     cfg.Tolerance,
	}
}

func summarize(res *reduce.Result) domain.ReducedSubtree {
	return domain.ReducedSubtree{
		Root:               int(res.Root),
		Section:            int(res.Section),
		Domain:             res.Domain,
		Length:             res.Params.Length,
		Diam:               res.Params.Diam,
		ElectrotonicLength: res.Params.ElectrotonicLength,
		Nseg:               res.Nseg,
		InputImpedance:     cmplx.Abs(res.Z0) / 1e6,
		Converged:          res.Converged,
		Diagnostics:        res.Diagnostics,
	}
}
