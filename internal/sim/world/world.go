package world

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"twinforge/internal/protocol"
	"twinforge/internal/sim/physics"
)

// TickLogger receives one entry per completed tick. Implementations must
// not block the caller for long; disk writers buffer internally.
type TickLogger interface {
	WriteTick(TickLogEntry) error
}

type TickLogEntry struct {
	Tick      uint64  `json:"tick"`
	Timestamp float64 `json:"timestamp"`
	Objects   int     `json:"objects"`
	Viewers   int     `json:"viewers"`
	StepMS    float64 `json:"step_ms"`
	StepErr   string  `json:"step_err,omitempty"`
}

// World owns the simulated objects and the most recent snapshot. All
// object state is mutated only by the clock loop; everything else reads
// snapshots.
type World struct {
	cfg     Config
	stepper physics.Stepper
	log     *log.Logger

	registry *Registry

	mu     sync.Mutex // guards bodies/byID between AddObject and the loop
	bodies []*physics.Body
	byID   map[string]*physics.Body

	rng    *rand.Rand
	lastTS float64

	tick       atomic.Uint64
	stepErrs   atomic.Uint64
	latest     atomic.Value // frame
	metrics    atomic.Value // Metrics
	tickLogger TickLogger
	stop       chan struct{}
	stopOnce   sync.Once
}

func New(cfg Config, stepper physics.Stepper, logger *log.Logger) (*World, error) {
	cfg.applyDefaults()
	if stepper == nil {
		return nil, fmt.Errorf("world: nil stepper")
	}
	if logger == nil {
		logger = log.Default()
	}
	w := &World{
		cfg:      cfg,
		stepper:  stepper,
		log:      logger,
		registry: NewRegistry(),
		byID:     make(map[string]*physics.Body),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:     make(chan struct{}),
	}
	w.metrics.Store(Metrics{})
	return w, nil
}

func (w *World) Config() Config      { return w.cfg }
func (w *World) Registry() *Registry { return w.registry }
func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

// AddObject registers a simulated object. Objects persist for the
// process lifetime; there is no remove.
func (w *World) AddObject(id string, pos physics.Vec3, mass float64) error {
	if id == "" {
		return fmt.Errorf("world: empty object id")
	}
	if mass <= 0 {
		return fmt.Errorf("world: object %q: mass must be positive, got %v", id, mass)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.byID[id]; ok {
		return fmt.Errorf("world: object %q already registered", id)
	}
	b := &physics.Body{ID: id, Pos: pos, Mass: mass}
	w.bodies = append(w.bodies, b)
	w.byID[id] = b
	return nil
}

// frame pairs a marshaled snapshot with its timestamp so out-of-cadence
// pushes can be ordered against the tick loop's broadcasts.
type frame struct {
	ts   float64
	data []byte
}

// LatestState returns the marshaled snapshot of the most recent tick, or
// nil before the first tick.
func (w *World) LatestState() []byte {
	f, _ := w.latest.Load().(frame)
	return f.data
}

// LatestFrame returns the most recent snapshot with its timestamp. Used
// for out-of-cadence "request_data" pushes, which must carry the
// timestamp so Conn.Push can discard a frame that lost the race against
// a newer broadcast.
func (w *World) LatestFrame() ([]byte, float64) {
	f, _ := w.latest.Load().(frame)
	return f.data, f.ts
}

// StepOnce advances the world by one tick and returns the snapshot. The
// clock loop calls this; tests call it directly.
func (w *World) StepOnce(now time.Time, dt float64) protocol.StateMsg {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	w.mu.Lock()
	stepErr := w.stepBodies(dt)
	state := w.buildState(now)
	w.mu.Unlock()

	if stepErr != nil {
		w.stepErrs.Add(1)
		w.log.Printf("tick %d: step failed, keeping previous world: %v", nowTick, stepErr)
	}

	if b, err := marshalState(state); err != nil {
		w.log.Printf("tick %d: marshal snapshot: %v", nowTick, err)
	} else {
		w.latest.Store(frame{ts: state.Timestamp, data: b})
		w.broadcast(b, state.Timestamp)
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	viewers := w.registry.Len()
	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:      nowTick,
			Timestamp: state.Timestamp,
			Objects:   len(state.Objects),
			Viewers:   viewers,
			StepMS:    stepMS,
		}
		if stepErr != nil {
			entry.StepErr = stepErr.Error()
		}
		_ = w.tickLogger.WriteTick(entry)
	}

	w.tick.Add(1)
	w.metrics.Store(Metrics{
		Tick:          nowTick + 1,
		Viewers:       viewers,
		Objects:       len(state.Objects),
		StepMS:        stepMS,
		StepErrors:    w.stepErrs.Load(),
		LastTimestamp: state.Timestamp,
	})
	return state
}

// stepBodies advances object state all-or-nothing: the integrator runs on
// a scratch copy and commits only on success, so a failed step leaves the
// previous valid world intact.
func (w *World) stepBodies(dt float64) error {
	if len(w.bodies) == 0 {
		return nil
	}
	scratch := make([]physics.Body, len(w.bodies))
	refs := make([]*physics.Body, len(w.bodies))
	for i, b := range w.bodies {
		scratch[i] = *b
		refs[i] = &scratch[i]
	}
	if err := w.stepper.Step(refs, dt); err != nil {
		return err
	}
	for i, b := range w.bodies {
		*b = scratch[i]
	}
	return nil
}

// buildState stamps a snapshot with a strictly increasing wall-clock
// timestamp; a clock that stands still or steps backwards is nudged
// forward by a microsecond.
func (w *World) buildState(now time.Time) protocol.StateMsg {
	ts := float64(now.UnixNano()) / 1e9
	if ts <= w.lastTS {
		ts = w.lastTS + 1e-6
	}
	w.lastTS = ts

	objects := make([]protocol.ObjectState, 0, len(w.bodies))
	for _, b := range w.bodies {
		objects = append(objects, protocol.ObjectState{
			ID:   b.ID,
			Pos:  [3]float64{b.Pos.X, b.Pos.Y, b.Pos.Z},
			Vel:  [3]float64{b.Vel.X, b.Vel.Y, b.Vel.Z},
			Mass: b.Mass,
		})
	}
	return protocol.StateMsg{
		Type:      protocol.TypeState,
		Timestamp: ts,
		Objects:   objects,
		Sensors:   w.readSensors(),
	}
}
