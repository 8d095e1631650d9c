package querydb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/types"
)

// Value is any query result. Values must be treated as immutable once
// returned: they are shared between callers and cached across requests.
type Value any

// Key identifies a query node: the query kind plus its arguments. Keys are
// comparable and used directly as map keys.
type Key struct {
	Query string
	File  types.FileID
	Arg   string
}

func (k Key) String() string {
	if k.Arg == "" {
		return fmt.Sprintf("%s(%d)", k.Query, k.File)
	}
	return fmt.Sprintf("%s(%d,%s)", k.Query, k.File, k.Arg)
}

// ComputeFunc computes a query value. Every read of another query must go
// through ctx.Get so the read-set is recorded; reads that bypass ctx break
// the dependency-tracking invariant.
type ComputeFunc func(ctx *Ctx, key Key) (Value, error)

// HashFunc produces the fingerprint used by red-green verification. Two
// values with equal fingerprints are treated as identical, so the hash must
// cover everything dependents can observe.
type HashFunc func(Value) uint64

// QueryDef registers one query kind. Compute is nil for input queries,
// whose values are set directly via SetInput.
type QueryDef struct {
	Name    string
	Compute ComputeFunc
	Hash    HashFunc
}

type nodeState uint8

const (
	stateStale nodeState = iota
	stateClean
	statePoisoned // internal invariant violation; permanently invalid
)

// node is one memoized query result with its dependency bookkeeping.
//
// Invariant: deps always reflects the exact reads performed during the most
// recent successful computation. changedAt is the revision at which the
// value last actually changed (by fingerprint); verifiedAt is the revision
// at which the node was last confirmed up to date. changedAt <= verifiedAt.
type node struct {
	key         Key
	value       Value
	fingerprint uint64
	deps        []Key
	changedAt   types.Revision
	verifiedAt  types.Revision
	state       nodeState
	hasValue    bool
	err         error // for poisoned nodes
}

// Stats counts database activity. Tests use the compute counter to verify
// memoization and the no-false-invalidation property.
type Stats struct {
	Computes      uint64
	CacheHits     uint64
	GreenVerifies uint64
	Evictions     uint64
}

// DB is the incremental query database: a dependency-tracked memoization
// graph over input values.
//
// Invalidation is lazy. An edit only bumps the revision and the edited
// input's changedAt; derived nodes are re-verified bottom-up the next time
// they are demanded ("red-green"): if every recorded dependency still has
// changedAt <= the node's verifiedAt after being brought up to date, the
// node is marked clean without recomputation. Otherwise it is recomputed,
// and if the freshly computed value's fingerprint equals the old one the
// node's changedAt is left untouched, cutting invalidation off for
// everything above it.
//
// Concurrency: any number of goroutines may Get concurrently. A single key
// is computed by at most one goroutine at a time (singleflight); duplicate
// requests join the in-flight computation. The caller (the engine) is
// responsible for not mutating inputs while reads are in flight.
type DB struct {
	mu    sync.Mutex
	defs  map[string]QueryDef
	nodes map[Key]*node
	lru   *lruIndex

	revision atomic.Uint64
	group    singleflight.Group
	maxNodes int

	computes      atomic.Uint64
	cacheHits     atomic.Uint64
	greenVerifies atomic.Uint64
	evictions     atomic.Uint64
}

// New creates an empty database. maxNodes bounds the memo table; zero or
// negative means unbounded.
func New(maxNodes int) *DB {
	return &DB{
		defs:     make(map[string]QueryDef),
		nodes:    make(map[Key]*node),
		lru:      newLRUIndex(),
		maxNodes: maxNodes,
	}
}

// Register adds a query definition. Registration happens at construction
// time, before any Get; re-registering a name replaces the definition.
func (db *DB) Register(def QueryDef) {
	if def.Hash == nil {
		panic("querydb: query " + def.Name + " registered without a hash function")
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.defs[def.Name] = def
}

// Revision returns the current input generation.
func (db *DB) Revision() types.Revision {
	return types.Revision(db.revision.Load())
}

// SetInput stores an input value and bumps the revision. Only the input's
// own changedAt moves; derived nodes are invalidated lazily on next demand.
// Setting a value whose fingerprint is unchanged still bumps the revision
// but keeps changedAt, so dependents re-verify green at no recompute cost.
func (db *DB) SetInput(key Key, value Value) types.Revision {
	db.mu.Lock()
	defer db.mu.Unlock()

	def, ok := db.defs[key.Query]
	if !ok || def.Compute != nil {
		panic("querydb: SetInput on non-input query " + key.Query)
	}

	rev := types.Revision(db.revision.Add(1))
	fp := def.Hash(value)

	n, exists := db.nodes[key]
	if !exists {
		n = &node{key: key}
		db.nodes[key] = n
	}
	if !n.hasValue || n.fingerprint != fp {
		n.changedAt = rev
		n.fingerprint = fp
		n.value = value
		n.hasValue = true
	}
	n.verifiedAt = rev
	n.state = stateClean
	return rev
}

// RemoveInput deletes an input, bumping the revision. Dependent queries
// observe ErrNoInput on their next computation.
func (db *DB) RemoveInput(key Key) types.Revision {
	db.mu.Lock()
	defer db.mu.Unlock()
	rev := types.Revision(db.revision.Add(1))
	if _, ok := db.nodes[key]; ok {
		delete(db.nodes, key)
		db.lru.remove(key)
	}
	return rev
}

// Get computes or returns the memoized value for key. It is the external
// entry point; queries reading other queries use Ctx.Get instead so the
// read is recorded.
func (db *DB) Get(ctx context.Context, key Key) (Value, error) {
	_, v, err := db.fetch(ctx, nil, key)
	return v, err
}

// Stats returns a snapshot of the activity counters.
func (db *DB) Stats() Stats {
	return Stats{
		Computes:      db.computes.Load(),
		CacheHits:     db.cacheHits.Load(),
		GreenVerifies: db.greenVerifies.Load(),
		Evictions:     db.evictions.Load(),
	}
}

// Ctx is passed to compute functions. Reads through Ctx.Get extend the
// in-flight key path (for cycle detection) and record the dependency.
type Ctx struct {
	context.Context
	db   *DB
	path []Key
	deps []Key
}

// Get reads another query from within a computation, recording the
// dependency edge.
func (c *Ctx) Get(key Key) (Value, error) {
	_, v, err := c.db.fetch(c.Context, c.path, key)
	c.deps = append(c.deps, key)
	return v, err
}

// fetch brings key up to date and returns its changedAt revision and value.
// path is the chain of in-flight keys leading here, used to detect cycles.
func (db *DB) fetch(ctx context.Context, path []Key, key Key) (types.Revision, Value, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	for _, k := range path {
		if k == key {
			return 0, nil, &CycleError{Path: appendPath(path, key)}
		}
	}

	rev := db.Revision()

	// Fast path: clean and already verified at the current revision.
	db.mu.Lock()
	if n, ok := db.nodes[key]; ok && n.state == stateClean && n.verifiedAt == rev {
		changed, v := n.changedAt, n.value
		db.lru.touch(key)
		db.mu.Unlock()
		db.cacheHits.Add(1)
		return changed, v, nil
	}
	db.mu.Unlock()

	// Slow path: verification or recomputation, one goroutine per key.
	type result struct {
		changed types.Revision
		value   Value
	}
	ch := db.group.DoChan(key.String(), func() (any, error) {
		changed, v, err := db.refresh(ctx, path, key, rev)
		if err != nil {
			return nil, err
		}
		return result{changed, v}, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return 0, nil, r.Err
		}
		res := r.Val.(result)
		return res.changed, res.value, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// refresh re-verifies or recomputes a single node at revision rev.
func (db *DB) refresh(ctx context.Context, path []Key, key Key, rev types.Revision) (types.Revision, Value, error) {
	def, ok := db.defs[key.Query]
	if !ok {
		return 0, nil, fmt.Errorf("querydb: unknown query %q", key.Query)
	}

	db.mu.Lock()
	n, exists := db.nodes[key]
	if !exists {
		n = &node{key: key}
		db.nodes[key] = n
	}
	if n.state == statePoisoned {
		err := n.err
		db.mu.Unlock()
		return 0, nil, err
	}
	// Another caller may have refreshed it between our fast path and the
	// singleflight slot.
	if n.state == stateClean && n.verifiedAt >= rev {
		changed, v := n.changedAt, n.value
		db.lru.touch(key)
		db.mu.Unlock()
		db.cacheHits.Add(1)
		return changed, v, nil
	}
	hasValue := n.hasValue
	verifiedAt := n.verifiedAt
	deps := append([]Key(nil), n.deps...)
	db.mu.Unlock()

	if def.Compute == nil {
		// Inputs have no compute: a missing node means the input was
		// removed or never set.
		if !hasValue {
			return 0, nil, &NoInputError{Key: key}
		}
		// An input can only change through SetInput, which re-verifies it;
		// a later revision bump from another input leaves the value intact.
		db.mu.Lock()
		n.verifiedAt = rev
		n.state = stateClean
		changed, v := n.changedAt, n.value
		db.lru.touch(key)
		db.mu.Unlock()
		return changed, v, nil
	}

	// Green check: if every recorded dependency, once brought up to date,
	// last changed at or before our verification point, the memoized value
	// still holds and no recomputation is needed.
	if hasValue {
		green := true
		for _, dep := range deps {
			depChanged, _, err := db.fetch(ctx, appendPath(path, key), dep)
			if err != nil {
				green = false
				break
			}
			if depChanged > verifiedAt {
				green = false
				break
			}
		}
		if green {
			db.mu.Lock()
			n.verifiedAt = rev
			n.state = stateClean
			changed, v := n.changedAt, n.value
			db.lru.touch(key)
			db.mu.Unlock()
			db.greenVerifies.Add(1)
			return changed, v, nil
		}
	}

	// Recompute.
	debug.LogQuery("compute %v at rev %d", key, rev)
	cctx := &Ctx{Context: ctx, db: db, path: appendPath(path, key)}
	value, err := db.runCompute(def, cctx, key, n)
	if err != nil {
		return 0, nil, err
	}

	fp := def.Hash(value)
	db.mu.Lock()
	n.deps = cctx.deps
	if !n.hasValue || n.fingerprint != fp {
		// Value actually changed.
		n.changedAt = rev
		n.fingerprint = fp
		n.value = value
		n.hasValue = true
	}
	// Fingerprint unchanged: keep the old changedAt so dependents verify
	// green. This is the cut-off that stops body-only edits from rippling
	// through the whole graph.
	n.verifiedAt = rev
	n.state = stateClean
	changed, v := n.changedAt, n.value
	db.lru.touch(key)
	evict := db.maxNodes > 0 && len(db.nodes) > db.maxNodes
	db.mu.Unlock()

	if evict {
		db.evictExcess()
	}
	return changed, v, nil
}

// runCompute executes the compute function, isolating panics to this node:
// a panicking query poisons its own node and surfaces an error, it never
// corrupts the rest of the database.
func (db *DB) runCompute(def QueryDef, cctx *Ctx, key Key, n *node) (value Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := fmt.Errorf("querydb: internal failure in %s: %v", key, r)
			debug.Logf("query %s poisoned: %v", key, r)
			db.mu.Lock()
			n.state = statePoisoned
			n.err = perr
			n.hasValue = false
			n.value = nil
			db.mu.Unlock()
			value, err = nil, perr
		}
	}()
	db.computes.Add(1)
	return def.Compute(cctx, key)
}

// evictExcess removes least-recently-used clean nodes until the table fits
// the configured bound. Eviction only costs recomputation, never
// correctness: evicted values rebuild from current inputs on next demand.
func (db *DB) evictExcess() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for db.maxNodes > 0 && len(db.nodes) > db.maxNodes {
		key, ok := db.lru.oldest()
		if !ok {
			return
		}
		n := db.nodes[key]
		if n != nil && n.state == statePoisoned {
			// Keep poison markers; they are cheap and intentionally sticky.
			db.lru.remove(key)
			continue
		}
		def := db.defs[key.Query]
		if def.Compute == nil {
			// Never evict inputs; they cannot be recomputed.
			db.lru.remove(key)
			continue
		}
		delete(db.nodes, key)
		db.lru.remove(key)
		db.evictions.Add(1)
	}
}

func appendPath(path []Key, key Key) []Key {
	out := make([]Key, 0, len(path)+1)
	out = append(out, path...)
	return append(out, key)
}
