package engine

import (
	"fmt"
	"os"
	"sort"
)

// Engine is the main entry point: an in-memory store driven by a Schema,
// exposing one Delegate per entity.
type Engine struct {
	schema     *Schema
	store      *Store
	validator  *Validator
	generators *GeneratorRegistry
	delegates  map[string]*Delegate
	seed       State

	caseInsensitive bool
	useIndexes      bool
	adapter         ErrorAdapter
	clock           Clock
	metrics         *Metrics
	validatorConfig ValidatorConfig

	// Debug context
	Debug *DebugContext

	// Mutation factory (abstract, injected)
	mutations MutationFactory
}

// ============================================================
// OPTIONS
// ============================================================

// Option configures an Engine at construction
type Option func(*Engine) error

// WithSeed provides the initial records per entity. They are deep-copied
// and restored by Reset.
func WithSeed(data map[string][]Record) Option {
	return func(e *Engine) error {
		e.seed.Entities = data
		return nil
	}
}

// WithSeedState provides initial records and join records
func WithSeedState(st State) Option {
	return func(e *Engine) error {
		e.seed = st
		return nil
	}
}

// WithCaseInsensitive lower-cases both sides of every string comparison
func WithCaseInsensitive(enabled bool) Option {
	return func(e *Engine) error {
		e.caseInsensitive = enabled
		return nil
	}
}

// WithIndexes toggles the index fast path (on by default)
func WithIndexes(enabled bool) Option {
	return func(e *Engine) error {
		e.useIndexes = enabled
		return nil
	}
}

// WithErrorAdapter maps engine errors before they leave a Delegate
func WithErrorAdapter(a ErrorAdapter) Option {
	return func(e *Engine) error {
		e.adapter = a
		return nil
	}
}

// WithGenerator registers (or replaces) the generator for a default kind
func WithGenerator(kind string, g Generator) Option {
	return func(e *Engine) error {
		e.generators.Register(kind, g)
		return nil
	}
}

// WithClock sets the time source for now() and @updatedAt
func WithClock(c Clock) Option {
	return func(e *Engine) error {
		e.clock = c
		return nil
	}
}

// WithDebugContext sets where and how verbosely operations are logged
func WithDebugContext(dc *DebugContext) Option {
	return func(e *Engine) error {
		e.Debug = dc
		return nil
	}
}

// WithMetrics records operation metrics on m
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithValidatorConfig overrides payload validation settings
func WithValidatorConfig(cfg ValidatorConfig) Option {
	return func(e *Engine) error {
		e.validatorConfig = cfg
		return nil
	}
}

// ============================================================
// ENGINE INITIALIZATION
// ============================================================

// NewEngine validates the schema, builds the store and its index, seeds
// it and registers one Delegate per entity.
//
// Usage:
//
//	eng, err := engine.NewEngine(schema, engine.WithSeed(seed))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	user, err := eng.Model("User").Create(engine.M{"data": engine.M{"email": "ana@mail.com"}})
func NewEngine(schema *Schema, opts ...Option) (*Engine, error) {
	if schema == nil {
		return nil, fmt.Errorf("no schema loaded")
	}
	schema.index()

	e := &Engine{
		schema:          schema,
		generators:      NewGeneratorRegistry(),
		useIndexes:      true,
		clock:           SystemClock{},
		validatorConfig: DefaultValidatorConfig(),
		Debug:           DefaultDebugContext(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.validator = NewValidator(schema, e.validatorConfig)
	if err := e.validator.ValidateSchema(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	index := NewIndexStore(schema)
	index.registerSchema()
	e.store = newStore(schema, index)

	seed, err := e.normalizeState(e.seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	e.seed = seed
	e.store.restore(seed)

	e.delegates = make(map[string]*Delegate, len(schema.Entities))
	for _, ent := range schema.Entities {
		e.delegates[ent.Name] = &Delegate{engine: e, entity: ent}
	}

	return e, nil
}

// NewEngineFromFile loads a schema descriptor file and builds an engine
func NewEngineFromFile(schemaPath string, opts ...Option) (*Engine, error) {
	if _, err := os.Stat(schemaPath); err != nil {
		return nil, fmt.Errorf("schema file not found: %s", schemaPath)
	}
	schema, err := LoadSchemaFromFile(schemaPath)
	if err != nil {
		return nil, err
	}
	return NewEngine(schema, opts...)
}

// normalizeState converts the scalar values of every known field to their
// canonical type. Unknown entities are rejected.
func (e *Engine) normalizeState(st State) (State, error) {
	out := State{Entities: map[string][]Record{}, Links: st.Links}
	for name, recs := range st.Entities {
		ent := e.schema.GetEntity(name)
		if ent == nil {
			return State{}, &UnknownEntityError{Entity: name, Available: e.schema.EntityNames()}
		}
		normalized := make([]Record, len(recs))
		for i, rec := range recs {
			n := copyRecord(rec)
			for _, f := range ent.ScalarFields() {
				v, ok := n[f.Name]
				if !ok {
					continue
				}
				val, err := normalizeValue(f, v)
				if err != nil {
					return State{}, err
				}
				n[f.Name] = val
			}
			normalized[i] = n
		}
		out.Entities[name] = normalized
	}
	return out, nil
}

// WithDebug sets the debug level, logging to stdout
func (e *Engine) WithDebug(level DebugLevel) *Engine {
	e.Debug = &DebugContext{
		Level:       level,
		Writer:      os.Stdout,
		ColorOutput: true,
	}
	return e
}

// Schema returns the schema the engine was built from
func (e *Engine) Schema() *Schema {
	return e.schema
}

// ─────────────────────────────────────────────────────────────
// Delegates
// ─────────────────────────────────────────────────────────────

// Model returns the delegate for an entity. It panics on an unknown name;
// use LookupModel to get an error instead.
func (e *Engine) Model(name string) *Delegate {
	d, err := e.LookupModel(name)
	if err != nil {
		panic(err)
	}
	return d
}

// LookupModel returns the delegate for an entity
func (e *Engine) LookupModel(name string) (*Delegate, error) {
	d, ok := e.delegates[name]
	if !ok {
		return nil, &UnknownEntityError{Entity: name, Available: e.schema.EntityNames()}
	}
	return d, nil
}

// Models lists the entity names with a delegate, sorted
func (e *Engine) Models() []string {
	names := make([]string, 0, len(e.delegates))
	for name := range e.delegates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ─────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────

// Connect is a no-op kept for client interface parity
func (e *Engine) Connect() error { return nil }

// Disconnect is a no-op kept for client interface parity
func (e *Engine) Disconnect() error { return nil }

// GetInternalState returns a deep copy of every collection and join record
func (e *Engine) GetInternalState() State {
	return e.store.snapshot()
}

// SetInternalState replaces the whole store with a deep copy of st and
// rebuilds the index.
func (e *Engine) SetInternalState(st State) {
	e.store.restore(st)
}

// Reset restores the seed taken at construction and resets every default
// generator.
func (e *Engine) Reset() {
	e.store.restore(e.seed)
	e.generators.Reset()
	e.Debug.Log(DebugOps, "store reset to seed")
}

// Use is not supported
func (e *Engine) Use(any) error {
	return &NotImplementedError{Operation: "$use"}
}

// On is not supported
func (e *Engine) On(string, any) error {
	return &NotImplementedError{Operation: "$on"}
}

// ─────────────────────────────────────────────────────────────
// Mutation wiring (NO concrete dependencies)
// ─────────────────────────────────────────────────────────────

// SetMutationFactory injects a mutation factory implementation
func (e *Engine) SetMutationFactory(factory MutationFactory) {
	e.mutations = factory
}

func (e *Engine) ensureMutationFactory() {
	if e.mutations == nil {
		panic(
			"mutation factory not initialized\n" +
				"Call mutation.Register(engine) after creating the engine",
		)
	}
}

// Insert starts a new insert mutation
func (e *Engine) Insert(entity string) InsertMutation {
	e.ensureMutationFactory()
	return e.mutations.NewInsert(entity)
}

// Update starts a new update mutation
func (e *Engine) Update(entity string) UpdateMutation {
	e.ensureMutationFactory()
	return e.mutations.NewUpdate(entity)
}

// Delete starts a new delete mutation
func (e *Engine) Delete(entity string) DeleteMutation {
	e.ensureMutationFactory()
	return e.mutations.NewDelete(entity)
}
