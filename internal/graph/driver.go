package graph

import "github.com/banshee-data/fgtrack.report/internal/pose"

// Graph is an ordered collection of factors pending submission to the solver.
type Graph struct {
	factors []Factor
}

// NewGraph returns an empty graph.
func NewGraph() *Graph { return &Graph{} }

// Add appends a factor.
func (g *Graph) Add(f Factor) { g.factors = append(g.factors, f) }

// Len returns the number of factors.
func (g *Graph) Len() int { return len(g.factors) }

// Factors returns the underlying factor slice.
func (g *Graph) Factors() []Factor { return g.factors }

// Reset drops all factors.
func (g *Graph) Reset() { g.factors = nil }

// Driver accumulates one step's main and loose deltas and submits them to the
// solver in the fixed order: main graph, one settling sweep, five extra
// sweeps when a loop closed this step, then the loose sub-graph with its own
// settling sweep.
type Driver struct {
	solver Incremental

	main      *Graph
	mainInit  Values
	loose     *Graph
	looseInit Values
}

// NewDriver wraps an incremental solver.
func NewDriver(solver Incremental) *Driver {
	return &Driver{
		solver:    solver,
		main:      NewGraph(),
		mainInit:  NewValues(),
		loose:     NewGraph(),
		looseInit: NewValues(),
	}
}

// Solver exposes the wrapped solver for estimate and covariance reads.
func (d *Driver) Solver() Incremental { return d.solver }

// AddMain queues a factor for the main graph.
func (d *Driver) AddMain(f Factor) { d.main.Add(f) }

// AddLoose queues a factor for the loose sub-graph.
func (d *Driver) AddLoose(f Factor) { d.loose.Add(f) }

// InsertMain queues an initial value for a variable introduced by the main
// graph.
func (d *Driver) InsertMain(k Key, p pose.Pose) { d.mainInit.Insert(k, p) }

// InsertLoose queues an initial value for a variable introduced by the loose
// sub-graph.
func (d *Driver) InsertLoose(k Key, p pose.Pose) { d.looseInit.Insert(k, p) }

// EraseMainInitial removes a queued main initial value. Used to drop the ego
// pin before the solver sees the step.
func (d *Driver) EraseMainInitial(k Key) { d.mainInit.Erase(k) }

// HasMainInitial reports whether an initial value is queued for the key.
func (d *Driver) HasMainInitial(k Key) bool { return d.mainInit.Has(k) }

// PendingMain returns the number of queued main factors.
func (d *Driver) PendingMain() int { return d.main.Len() }

// PendingLoose returns the number of queued loose factors.
func (d *Driver) PendingLoose() int { return d.loose.Len() }

// Step submits the queued deltas. loopClosed requests the extra sweeps that
// re-flow a closure's correction through the graph. The queues are cleared
// whether or not the update succeeds.
func (d *Driver) Step(loopClosed bool) error {
	defer d.reset()

	if err := d.solver.Update(d.main, d.mainInit); err != nil {
		return err
	}
	if err := d.solver.Refine(); err != nil {
		return err
	}
	if loopClosed {
		for i := 0; i < 5; i++ {
			if err := d.solver.Refine(); err != nil {
				return err
			}
		}
	}

	if d.loose.Len() > 0 || d.looseInit.Len() > 0 {
		if err := d.solver.Update(d.loose, d.looseInit); err != nil {
			return err
		}
		if err := d.solver.Refine(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) reset() {
	d.main = NewGraph()
	d.mainInit = NewValues()
	d.loose = NewGraph()
	d.looseInit = NewValues()
}
