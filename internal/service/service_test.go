package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/codec"
	"dendroreduce/internal/domain"
	"dendroreduce/internal/morphology"
	"dendroreduce/internal/reduce"
	"dendroreduce/internal/repository"
	"dendroreduce/internal/repository/sqlite"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestService(t *testing.T) (*ReductionService, *sqlite.Repository, *EventBus) {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	bus := NewEventBus()
	svc := NewReductionService(repo, bus, nil, nil, log.New(io.Discard, "", 0))
	return svc, repo, bus
}

// newModelFile writes soma -> trunk -> {left, right} as a YAML model file.
// Sections load with ids 0..3 in that order and carry 16 segments.
func newModelFile(t *testing.T) []byte {
	t.Helper()
	reg := biophys.DefaultRegistry()
	if err := reg.Register(biophys.Mechanism{Name: "kdr", Params: map[string]float64{"gbar_kdr": 0}, Reducible: true}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	base := morphology.SectionSpec{Ra: 100, Cm: 1, GLeak: morphology.Float(1e-4), ELeak: morphology.Float(-70), Mechanisms: []string{"kdr"}}
	spec := func(key, parent int, dom string, length, diam float64, nseg int) morphology.SectionSpec {
		s := base
		s.Key, s.Parent, s.Domain = key, parent, dom
		s.Length, s.Diam, s.Nseg = length, diam, nseg
		s.Params = map[string]float64{"gbar_kdr": 0.01 * float64(key)}
		return s
	}
	m, err := morphology.Build([]morphology.SectionSpec{
		spec(1, morphology.NoParent, "soma", 20, 20, 1),
		spec(2, 1, "apic", 150, 3, 5),
		spec(3, 2, "apic", 200, 1.5, 7),
		spec(4, 2, "apic", 120, 1, 3),
	}, reg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var buf bytes.Buffer
	if err := codec.NewYAMLCodec().Export(m, &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	return buf.Bytes()
}

func newRequest(input []byte) ReduceRequest {
	return ReduceRequest{
		Model:  "cell.yaml",
		Input:  input,
		Format: "yaml",
		Roots:  []int{1},
		Config: reduce.Config{Frequency: 100},
	}
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

func assertEqual[T comparable](t *testing.T, got, want T, msg string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %v, want %v", msg, got, want)
	}
}

// ============================================================================
// Reduce
// ============================================================================

func TestReduceRecordsRun(t *testing.T) {
	svc, _, bus := newTestService(t)
	events := make(chan Event, 4)
	bus.Subscribe(events)
	ctx := context.Background()
	input := newModelFile(t)

	res, err := svc.Reduce(ctx, newRequest(input))
	assertNoError(t, err)

	run := res.Run
	assertEqual(t, run.Model, "cell.yaml", "model")
	assertEqual(t, run.Output, "cell.yaml", "output defaults to model")
	assertEqual(t, run.Status, domain.RunStatusApplied, "status")
	assertEqual(t, run.SegmentsBefore, 16, "segments before")
	assertEqual(t, run.Fingerprint, repository.Fingerprint(input), "fingerprint")
	assertEqual(t, run.ResultFingerprint, repository.Fingerprint(res.Output), "result fingerprint")
	assertEqual(t, run.Config.Strategy, string(reduce.StrategyLambda), "strategy")
	if len(run.Subtrees) != 1 || run.Subtrees[0].Root != 1 {
		t.Fatalf("subtrees = %+v", run.Subtrees)
	}
	sub := run.Subtrees[0]
	assertEqual(t, sub.Domain, "reduced_0", "reduced domain")
	assertEqual(t, run.SegmentsAfter, 1+sub.Nseg, "segments after")
	if sub.InputImpedance <= 0 || sub.Length <= 0 || sub.Diam <= 0 {
		t.Errorf("subtree summary = %+v", sub)
	}

	if got := len(res.Morphology.Sections()); got != 2 {
		t.Errorf("reduced morphology has %d sections, want 2", got)
	}
	if res.Morphology.Domain("apic") != nil {
		t.Error("emptied apic domain was not pruned")
	}

	stored, err := svc.Run(ctx, run.ID)
	assertNoError(t, err)
	assertEqual(t, stored.ResultFingerprint, run.ResultFingerprint, "stored result fingerprint")

	before, err := svc.Snapshot(ctx, run.ID, domain.SnapshotBefore)
	assertNoError(t, err)
	if !bytes.Equal(before.Data, input) {
		t.Error("before snapshot differs from the input")
	}
	after, err := svc.Snapshot(ctx, run.ID, domain.SnapshotAfter)
	assertNoError(t, err)
	if !bytes.Equal(after.Data, res.Output) {
		t.Error("after snapshot differs from the output")
	}

	select {
	case ev := <-events:
		assertEqual(t, ev.Type, EventRunCompleted, "event type")
	default:
		t.Error("no event published")
	}
}

func TestReduceOutputLoads(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.Reduce(context.Background(), newRequest(newModelFile(t)))
	assertNoError(t, err)

	m, err := svc.Load("yaml", res.Output)
	assertNoError(t, err)
	assertNoError(t, m.Validate())
	assertEqual(t, m.SegmentCount(m.Sections()), res.Run.SegmentsAfter, "segments in written file")
}

func TestReduceByDomain(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := newRequest(newModelFile(t))
	req.Roots = nil
	req.Domains = []string{"apic"}

	res, err := svc.Reduce(context.Background(), req)
	assertNoError(t, err)
	if len(res.Run.Roots) != 1 || res.Run.Roots[0] != 1 {
		t.Errorf("roots = %v, want [1]", res.Run.Roots)
	}
}

func TestReduceDryRun(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	req := newRequest(newModelFile(t))
	req.DryRun = true

	res, err := svc.Reduce(ctx, req)
	assertNoError(t, err)
	if len(res.Output) == 0 {
		t.Error("dry run produced no output")
	}

	runs, err := svc.Runs(ctx, "", 0)
	assertNoError(t, err)
	if len(runs) != 0 {
		t.Errorf("dry run recorded %d runs", len(runs))
	}
}

func TestReduceErrors(t *testing.T) {
	svc, _, bus := newTestService(t)
	events := make(chan Event, 4)
	bus.Subscribe(events)
	input := newModelFile(t)

	t.Run("no roots", func(t *testing.T) {
		req := newRequest(input)
		req.Roots = nil
		_, err := svc.Reduce(context.Background(), req)
		assertErrorIs(t, err, ErrNoRoots)
	})

	t.Run("unknown domain", func(t *testing.T) {
		req := newRequest(input)
		req.Domains = []string{"axon"}
		_, err := svc.Reduce(context.Background(), req)
		assertErrorIs(t, err, ErrUnknownDomain)
	})

	t.Run("unknown format", func(t *testing.T) {
		req := newRequest(input)
		req.Format = "asc"
		_, err := svc.Reduce(context.Background(), req)
		assertErrorIs(t, err, codec.ErrUnknownFormat)
	})

	t.Run("root section", func(t *testing.T) {
		req := newRequest(input)
		req.Roots = []int{0}
		if _, err := svc.Reduce(context.Background(), req); err == nil {
			t.Fatal("expected error reducing the soma")
		}
		select {
		case ev := <-events:
			assertEqual(t, ev.Type, EventRunFailed, "event type")
		default:
			t.Error("no failure event published")
		}
	})
}

func TestResolveRoots(t *testing.T) {
	svc, _, _ := newTestService(t)
	m, err := svc.Load("yaml", newModelFile(t))
	assertNoError(t, err)

	tests := []struct {
		name     string
		sections []int
		domains  []string
		want     []morphology.SectionID
	}{
		{"sections", []int{2, 3}, nil, []morphology.SectionID{2, 3}},
		{"domain tops", nil, []string{"apic"}, []morphology.SectionID{1}},
		{"duplicates dropped", []int{1}, []string{"apic"}, []morphology.SectionID{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRoots(m, tt.sections, tt.domains)
			assertNoError(t, err)
			if len(got) != len(tt.want) {
				t.Fatalf("roots = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("roots = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// ============================================================================
// Undo
// ============================================================================

func TestUndo(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	input := newModelFile(t)

	res, err := svc.Reduce(ctx, newRequest(input))
	assertNoError(t, err)

	run, snap, err := svc.Undo(ctx, UndoRequest{Output: "cell.yaml", Current: res.Output})
	assertNoError(t, err)
	assertEqual(t, run.ID, res.Run.ID, "undone run")
	assertEqual(t, run.Status, domain.RunStatusUndone, "status")
	if run.UndoneAt == nil {
		t.Error("UndoneAt not set")
	}
	if !bytes.Equal(snap.Data, input) {
		t.Error("restored content differs from the input")
	}

	stored, err := svc.Run(ctx, run.ID)
	assertNoError(t, err)
	assertEqual(t, stored.Status, domain.RunStatusUndone, "stored status")

	t.Run("latest already undone", func(t *testing.T) {
		_, _, err := svc.Undo(ctx, UndoRequest{Output: "cell.yaml"})
		assertErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("by id already undone", func(t *testing.T) {
		_, _, err := svc.Undo(ctx, UndoRequest{RunID: run.ID})
		assertErrorIs(t, err, ErrNotUndoable)
	})
}

func TestUndoModelChanged(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Reduce(ctx, newRequest(newModelFile(t)))
	assertNoError(t, err)

	edited := append([]byte("# edited\n"), res.Output...)
	_, _, err = svc.Undo(ctx, UndoRequest{RunID: res.Run.ID, Current: edited})
	assertErrorIs(t, err, ErrModelChanged)

	run, _, err := svc.Undo(ctx, UndoRequest{RunID: res.Run.ID, Current: edited, Force: true})
	assertNoError(t, err)
	assertEqual(t, run.Status, domain.RunStatusUndone, "status after forced undo")
}

func TestUndoLatestOfSeveral(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	input := newModelFile(t)

	first, err := svc.Reduce(ctx, newRequest(input))
	assertNoError(t, err)
	req := newRequest(first.Output)
	req.Roots = nil
	req.Domains = []string{"reduced_0"}
	second, err := svc.Reduce(ctx, req)
	assertNoError(t, err)

	run, snap, err := svc.Undo(ctx, UndoRequest{Output: "cell.yaml", Current: second.Output})
	assertNoError(t, err)
	assertEqual(t, run.ID, second.Run.ID, "latest run undone first")
	if !bytes.Equal(snap.Data, first.Output) {
		t.Error("restored content is not the first run's output")
	}

	runs, err := svc.Runs(ctx, "cell.yaml", 0)
	assertNoError(t, err)
	assertEqual(t, len(runs), 2, "recorded runs")
}

func TestReduceWrite(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var written []byte
	req := newRequest(newModelFile(t))
	req.Write = func(output []byte) error {
		written = output
		return nil
	}
	res, err := svc.Reduce(ctx, req)
	assertNoError(t, err)
	if !bytes.Equal(written, res.Output) {
		t.Error("Write did not receive the result")
	}

	written = nil
	req.DryRun = true
	_, err = svc.Reduce(ctx, req)
	assertNoError(t, err)
	if written != nil {
		t.Error("dry run called Write")
	}
}

func TestReduceWriteFailureRemovesRun(t *testing.T) {
	svc, _, bus := newTestService(t)
	events := make(chan Event, 4)
	bus.Subscribe(events)
	ctx := context.Background()
	diskFull := errors.New("no space left on device")

	req := newRequest(newModelFile(t))
	req.Write = func([]byte) error { return diskFull }
	_, err := svc.Reduce(ctx, req)
	assertErrorIs(t, err, diskFull)

	runs, err := svc.Runs(ctx, "", 0)
	assertNoError(t, err)
	if len(runs) != 0 {
		t.Errorf("%d runs left after a failed write", len(runs))
	}
	_, _, err = svc.Undo(ctx, UndoRequest{Output: "cell.yaml"})
	assertErrorIs(t, err, repository.ErrNotFound)

	select {
	case ev := <-events:
		t.Errorf("unexpected %s event after a failed write", ev.Type)
	default:
	}
}

func TestUndoRestoreFailureKeepsRunApplied(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	input := newModelFile(t)

	res, err := svc.Reduce(ctx, newRequest(input))
	assertNoError(t, err)

	readOnly := errors.New("read-only file system")
	_, _, err = svc.Undo(ctx, UndoRequest{
		RunID:   res.Run.ID,
		Current: res.Output,
		Restore: func(*domain.Run, *domain.Snapshot) error { return readOnly },
	})
	assertErrorIs(t, err, readOnly)

	stored, err := svc.Run(ctx, res.Run.ID)
	assertNoError(t, err)
	assertEqual(t, stored.Status, domain.RunStatusApplied, "status after failed restore")

	var restored []byte
	run, _, err := svc.Undo(ctx, UndoRequest{
		RunID:   res.Run.ID,
		Current: res.Output,
		Restore: func(_ *domain.Run, before *domain.Snapshot) error {
			restored = before.Data
			return nil
		},
	})
	assertNoError(t, err)
	assertEqual(t, run.Status, domain.RunStatusUndone, "status after retry")
	if !bytes.Equal(restored, input) {
		t.Error("Restore did not receive the pre-run content")
	}
}

// ============================================================================
// Events
// ============================================================================

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 1)
	slow := make(chan Event)
	bus.Subscribe(fast)
	bus.Subscribe(slow)

	bus.Publish(Event{Type: EventRunUndone})
	select {
	case ev := <-fast:
		assertEqual(t, ev.Type, EventRunUndone, "event type")
	default:
		t.Error("subscriber missed the event")
	}
}
