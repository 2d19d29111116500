package reduce

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gonum.org/v1/gonum/floats"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/impedance"
	"dendroreduce/internal/morphology"
	"dendroreduce/internal/telemetry"
)

var ErrOverlappingRoots = errors.New("subtree roots overlap")

// ReducedDomain is the base name of domains holding equivalent cylinders
const ReducedDomain = "reduced"

// Config controls one reduction request
type Config struct {
	Frequency    float64       `yaml:"frequency" json:"frequency" validate:"gte=0"`
	Segmentation Segmentation  `yaml:"segmentation" json:"segmentation"`
	Missing      MissingPolicy `yaml:"missing" json:"missing" validate:"omitempty,oneof=unset zero"`
	MaxIter      int           `yaml:"max_iter" json:"max_iter" validate:"gte=0"`
	Tolerance    float64       `yaml:"tolerance" json:"tolerance" validate:"gte=0"`
}

// WithDefaults fills zero fields
func (c Config) WithDefaults() Config {
	if c.Segmentation.Strategy == "" {
		c.Segmentation.Strategy = StrategyLambda
	}
	if c.Missing == "" {
		c.Missing = MissingUnset
	}
	if c.MaxIter <= 0 {
		c.MaxIter = DefaultMaxIter
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	return c
}

// Result describes one replaced subtree
type Result struct {
	Root        morphology.SectionID
	Section     morphology.SectionID
	Domain      string
	Params      CableParams
	Nseg        int
	Z0          complex128
	ZLow        complex128
	Converged   bool
	Locations   map[morphology.SegmentID]float64
	Mapping     map[morphology.SegmentID]morphology.SegmentID
	Diagnostics []string
}

// Reducer replaces subtrees of a morphology by equivalent cylinders
type Reducer struct {
	morph      *morphology.Morphology
	oracle     *impedance.Oracle
	logger     *log.Logger
	telemetry  *telemetry.Telemetry
	tracer     trace.Tracer
	instrument *telemetry.Instrument
}

// Option configures a Reducer
type Option func(*Reducer)

// WithOracle replaces the default cable oracle
func WithOracle(o *impedance.Oracle) Option {
	return func(r *Reducer) {
		r.oracle = o
	}
}

// WithLogger sets the diagnostics logger
func WithLogger(l *log.Logger) Option {
	return func(r *Reducer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTelemetry sets the tracer and instruments. A nil Tracer traces
// nothing and a nil Instrument records nothing.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Reducer) {
		r.telemetry = t
	}
}

// New creates a reducer over m. Without options it measures with the
// passive cable engine and logs through m's logger.
func New(m *morphology.Morphology, opts ...Option) *Reducer {
	r := &Reducer{
		morph:  m,
		logger: m.Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.oracle == nil {
		r.oracle = impedance.ForMorphology(m)
	}
	tel := r.telemetry
	if tel == nil {
		var err error
		if tel, err = telemetry.Default(); err != nil {
			r.logger.Printf("Warning: telemetry unavailable: %v", err)
		}
	}
	if tel != nil {
		r.tracer = tel.Tracer
		r.instrument = tel.Instrument
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("dendroreduce/reduce")
	}
	return r
}

// Reduce replaces the subtree rooted at root by one equivalent cylinder
func (r *Reducer) Reduce(ctx context.Context, root morphology.SectionID, cfg Config) (*Result, error) {
	results, err := r.ReduceMany(ctx, []morphology.SectionID{root}, cfg)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// plan is everything measured on the original subtree before it is
// replaced.
type plan struct {
	root       morphology.SectionID
	cylinder   *Cylinder
	table      ParamTable
	mechanisms []string
	locs       map[morphology.SegmentID]float64
	order      []morphology.SegmentID
	points     []morphology.Point
	segments   int
}

// ReduceMany reduces several disjoint subtrees. All subtrees are measured
// before any is replaced and segment counts are allocated jointly. On error
// the morphology may be partly modified; callers keep a snapshot to restore.
func (r *Reducer) ReduceMany(ctx context.Context, roots []morphology.SectionID, cfg Config) (_ []*Result, err error) {
	cfg = cfg.WithDefaults()
	ctx, span := r.tracer.Start(ctx, "reduce.ReduceMany", trace.WithAttributes(
		attribute.Int("reduce.roots", len(roots)),
		attribute.Float64("reduce.frequency", cfg.Frequency),
		attribute.String("reduce.strategy", string(cfg.Segmentation.Strategy)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := r.checkRoots(roots); err != nil {
		return nil, err
	}

	plans := make([]*plan, len(roots))
	cables := make([]CableParams, len(roots))
	original := 0
	for i, root := range roots {
		p, err := r.prepare(ctx, root, cfg)
		if err != nil {
			return nil, fmt.Errorf("reduce section %d: %w", root, err)
		}
		plans[i] = p
		cables[i] = p.cylinder.Params
		original += p.segments
	}

	nsegs, err := Plan(cables, cfg.Segmentation, original, r.logger)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(plans))
	for i, p := range plans {
		start := time.Now()
		res, err := r.apply(ctx, p, nsegs[i], cfg)
		if err != nil {
			return nil, fmt.Errorf("reduce section %d: %w", p.root, err)
		}
		if r.instrument != nil {
			r.instrument.ReductionRecord(ctx, float64(time.Since(start).Microseconds())/1000, res.Domain, res.Nseg)
		}
		results[i] = res
	}

	r.morph.PruneDomains()
	return results, nil
}

func (r *Reducer) checkRoots(roots []morphology.SectionID) error {
	if len(roots) == 0 {
		return errors.New("no subtree roots given")
	}
	set := make(map[morphology.SectionID]bool, len(roots))
	for _, root := range roots {
		sec := r.morph.Section(root)
		if sec == nil {
			return fmt.Errorf("%w: %d", morphology.ErrSectionNotFound, root)
		}
		if sec.IsRoot() {
			return fmt.Errorf("section %d is the morphology root and cannot be reduced", root)
		}
		if set[root] {
			return fmt.Errorf("%w: section %d given twice", ErrOverlappingRoots, root)
		}
		set[root] = true
	}
	for _, root := range roots {
		for p := r.morph.Section(root).Parent; p != morphology.NoSection; p = r.morph.Section(p).Parent {
			if set[p] {
				return fmt.Errorf("%w: section %d lies in the subtree of %d", ErrOverlappingRoots, root, p)
			}
		}
	}
	return nil
}

// prepare measures one subtree and derives its cylinder and segment
// locations.
func (r *Reducer) prepare(ctx context.Context, root morphology.SectionID, cfg Config) (*plan, error) {
	_, span := r.tracer.Start(ctx, "reduce.Measure", trace.WithAttributes(attribute.Int("reduce.root", int(root))))
	defer span.End()

	sections, err := r.morph.Subtree(root)
	if err != nil {
		return nil, err
	}
	table, mechanisms, err := Collect(r.morph, sections)
	if err != nil {
		return nil, err
	}

	meas, err := r.oracle.Measure(root, cfg.Frequency)
	if err != nil {
		return nil, err
	}
	cyl, err := EquivalentCylinder(r.morph, meas, cfg.MaxIter, cfg.Tolerance, r.logger)
	if err != nil {
		return nil, err
	}
	if r.instrument != nil {
		r.instrument.ElectrotonicLengthRecord(ctx, cyl.Params.ElectrotonicLength, cyl.Search.Converged)
	}
	span.SetAttributes(
		attribute.Float64("reduce.electrotonic_length", cyl.Params.ElectrotonicLength),
		attribute.Float64("reduce.diam", cyl.Params.Diam),
		attribute.Float64("reduce.length", cyl.Params.Length),
	)

	locs, order, err := Relocate(r.morph, meas, cyl, cfg.MaxIter, cfg.Tolerance, r.logger)
	if err != nil {
		return nil, err
	}

	return &plan{
		root:       root,
		cylinder:   cyl,
		table:      table,
		mechanisms: mechanisms,
		locs:       locs,
		order:      order,
		points:     straightPoints(r.morph.Section(root), cyl.Params.Length, cyl.Params.Diam),
		segments:   r.morph.SegmentCount(sections),
	}, nil
}

// apply replaces the subtree with its cylinder and migrates parameters
func (r *Reducer) apply(ctx context.Context, p *plan, nseg int, cfg Config) (*Result, error) {
	_, span := r.tracer.Start(ctx, "reduce.Apply", trace.WithAttributes(
		attribute.Int("reduce.root", int(p.root)),
		attribute.Int("reduce.nseg", nseg),
	))
	defer span.End()

	params := p.cylinder.Params
	domain := r.nextDomain()
	mechanisms := make([]string, 0, len(p.mechanisms))
	for _, name := range p.mechanisms {
		if name != biophys.LeakMechanism {
			mechanisms = append(mechanisms, name)
		}
	}

	id, err := r.morph.ReplaceSubtree(p.root, morphology.SectionSpec{
		Domain:     domain,
		Points:     p.points,
		Length:     params.Length,
		Diam:       params.Diam,
		Ra:         params.Ra,
		Cm:         params.Cm,
		GLeak:      morphology.Float(1 / params.Rm),
		ELeak:      morphology.Float(params.ELeak),
		Nseg:       nseg,
		Mechanisms: mechanisms,
	})
	if err != nil {
		return nil, err
	}

	mapping, err := MapToSegments(r.morph, id, p.locs, p.order)
	if err != nil {
		return nil, err
	}
	means := Average(Group(p.table, mapping, p.order))

	res := &Result{
		Root:      p.root,
		Section:   id,
		Domain:    domain,
		Params:    params,
		Nseg:      nseg,
		Z0:        p.cylinder.Z0,
		ZLow:      p.cylinder.ZLow,
		Converged: p.cylinder.Search.Converged,
		Locations: p.locs,
		Mapping:   mapping,
	}
	if err := r.assign(res, means, cfg.Missing); err != nil {
		return nil, err
	}
	return res, nil
}

// assign writes averaged values onto the new segments and interpolates the
// ones nothing mapped to.
func (r *Reducer) assign(res *Result, means ParamTable, policy MissingPolicy) error {
	sec := r.morph.Section(res.Section)
	segs := r.morph.Segments(res.Section)
	xs := make([]float64, len(segs))
	for i, seg := range segs {
		xs[i] = seg.X
	}

	names := r.morph.Registry().ReducibleParams(sec.Mechanisms)
	if len(names) == 0 {
		return nil
	}

	var unmapped []int
	for i, seg := range segs {
		if _, ok := means[seg.ID]; !ok {
			unmapped = append(unmapped, i)
		}
	}
	if len(unmapped) > 0 {
		r.diagnose(res, "interpolating segments %v of section %d in %s", unmapped, res.Section, res.Domain)
	}

	for _, name := range names {
		values := make([]float64, len(segs))
		set := make([]bool, len(segs))
		for i, seg := range segs {
			if v, ok := means[seg.ID][name]; ok {
				values[i], set[i] = v, true
				continue
			}
			v, err := r.morph.Param(seg.ID, name)
			if err != nil {
				return err
			}
			values[i] = v
		}

		filled, anchored := Interpolate(xs, values, set, policy)
		if !anchored {
			r.diagnose(res, "no values for %s in domain %s (section %d), leaving default", name, res.Domain, res.Section)
		}
		for i, seg := range segs {
			if err := r.morph.SetParam(seg.ID, name, filled[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reducer) diagnose(res *Result, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	res.Diagnostics = append(res.Diagnostics, msg)
	r.logger.Print(msg)
}

// nextDomain returns the first unused reduced_<n> name
func (r *Reducer) nextDomain() string {
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s_%d", ReducedDomain, n)
		if d := r.morph.Domain(name); d == nil || d.IsEmpty() {
			return name
		}
	}
}

// straightPoints lays the cylinder out from the first point of the old root
// along the root's overall direction.
func straightPoints(root *morphology.Section, length, diam float64) []morphology.Point {
	if len(root.Points) == 0 {
		return nil
	}
	start := root.Points[0]
	end := root.Points[len(root.Points)-1]
	dir := []float64{end.X - start.X, end.Y - start.Y, end.Z - start.Z}
	if norm := floats.Norm(dir, 2); norm > 0 {
		floats.Scale(1/norm, dir)
	} else {
		dir = []float64{1, 0, 0}
	}
	floats.Scale(length, dir)

	return []morphology.Point{
		{X: start.X, Y: start.Y, Z: start.Z, R: diam / 2},
		{X: start.X + dir[0], Y: start.Y + dir[1], Z: start.Z + dir[2], R: diam / 2},
	}
}
