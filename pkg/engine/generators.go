package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================
// CLOCK
// ============================================================

// Clock supplies the current time for now() defaults and @updatedAt
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ============================================================
// GENERATORS
// ============================================================

// GeneratorContext describes the field being defaulted
type GeneratorContext struct {
	Entity  *Entity
	Field   *Field
	Records []Record // current collection of the entity
	Now     time.Time
}

// Generator produces default values of one kind
type Generator interface {
	Next(ctx GeneratorContext) (any, error)
	Reset()
}

// GeneratorRegistry resolves default kinds to generators. Each engine owns
// its registry, so counters never leak across instances.
type GeneratorRegistry struct {
	generators map[string]Generator
}

// NewGeneratorRegistry returns a registry with the built-in kinds:
// autoincrement, uuid, cuid and now.
func NewGeneratorRegistry() *GeneratorRegistry {
	r := &GeneratorRegistry{generators: make(map[string]Generator)}
	r.Register("autoincrement", NewAutoincrementGenerator())
	r.Register("uuid", UUIDGenerator{})
	r.Register("cuid", CUIDGenerator{})
	r.Register("now", NowGenerator{})
	return r
}

// Register adds or replaces the generator for kind
func (r *GeneratorRegistry) Register(kind string, g Generator) {
	r.generators[kind] = g
}

// Generate produces the next value of kind
func (r *GeneratorRegistry) Generate(kind string, ctx GeneratorContext) (any, error) {
	g, ok := r.generators[kind]
	if !ok {
		return nil, &NotImplementedError{Operation: "default generator " + kind + "()"}
	}
	return g.Next(ctx)
}

// Reset resets every generator
func (r *GeneratorRegistry) Reset() {
	for _, g := range r.generators {
		g.Reset()
	}
}

// AutoincrementGenerator hands out per entity.field sequences that never
// go below the largest value already stored.
type AutoincrementGenerator struct {
	counters map[string]int64
}

func NewAutoincrementGenerator() *AutoincrementGenerator {
	return &AutoincrementGenerator{counters: make(map[string]int64)}
}

func (g *AutoincrementGenerator) Next(ctx GeneratorContext) (any, error) {
	key := ctx.Entity.Name + "." + ctx.Field.Name
	next := g.counters[key]
	for _, r := range ctx.Records {
		if n, ok := toExactInt(r[ctx.Field.Name]); ok && n > next {
			next = n
		}
	}
	next++
	g.counters[key] = next

	if ctx.Field.Type == TypeBigInt {
		return next, nil
	}
	return int(next), nil
}

func (g *AutoincrementGenerator) Reset() {
	g.counters = make(map[string]int64)
}

// UUIDGenerator produces random v4 UUID strings
type UUIDGenerator struct{}

func (UUIDGenerator) Next(GeneratorContext) (any, error) { return uuid.NewString(), nil }
func (UUIDGenerator) Reset()                             {}

// CUIDGenerator produces 25 character, time-ordered, collision resistant ids
type CUIDGenerator struct{}

func (CUIDGenerator) Next(GeneratorContext) (any, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return "c" + strings.ReplaceAll(id.String(), "-", "")[:24], nil
}

func (CUIDGenerator) Reset() {}

// NowGenerator returns the engine clock's current time
type NowGenerator struct{}

func (NowGenerator) Next(ctx GeneratorContext) (any, error) { return ctx.Now, nil }
func (NowGenerator) Reset()                                 {}
