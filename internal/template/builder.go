package template

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Builder memoizes one plan template for the lifetime of a batch. The first
// GetOrBuild pays the cost; later calls reuse the result. Callers get a deep
// clone, never the cached value.
type Builder struct {
	mu     sync.Mutex
	cached *PlanTemplate

	gen     Generator
	bank    []PlanTemplate
	theme   string
	useBank bool
	rng     *rand.Rand
}

// NewGenerationBuilder builds templates by calling the generator (mode A).
// Generation failure after the generator's own retries is fatal for the batch.
func NewGenerationBuilder(gen Generator) *Builder {
	return &Builder{
		gen: gen,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewBankBuilder picks from pre-baked templates filtered by theme (mode B).
// An empty theme matches any template. No candidate is an error, never a
// fallback to generation.
func NewBankBuilder(bank []PlanTemplate, theme string) *Builder {
	return &Builder{
		bank:    bank,
		theme:   strings.TrimSpace(theme),
		useBank: true,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetOrBuild returns the batch template, building it on first use.
func (b *Builder) GetOrBuild(ctx context.Context) (*PlanTemplate, error) {
	if b == nil {
		return nil, errors.New("template: nil builder")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cached != nil {
		return b.cached.Clone(), nil
	}

	var tmpl *PlanTemplate
	var err error
	if b.useBank {
		tmpl, err = b.pickFromBank()
	} else {
		tmpl, err = b.generate(ctx)
	}
	if err != nil {
		return nil, err
	}

	b.cached = tmpl
	return tmpl.Clone(), nil
}

func (b *Builder) generate(ctx context.Context) (*PlanTemplate, error) {
	if b.gen == nil {
		return nil, errors.New("template: no generator configured")
	}
	tmpl, err := b.gen.Generate(ctx, NewQuestionnaire(b.rng))
	if err != nil {
		return nil, fmt.Errorf("template: generate: %w", err)
	}
	return tmpl, nil
}

func (b *Builder) pickFromBank() (*PlanTemplate, error) {
	var candidates []PlanTemplate
	for _, tmpl := range b.bank {
		if b.theme == "" || strings.EqualFold(tmpl.Theme, b.theme) {
			candidates = append(candidates, tmpl)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("template: no bank template matches theme %q", b.theme)
	}
	picked := candidates[b.rng.Intn(len(candidates))]
	if strings.TrimSpace(picked.Fingerprint) == "" {
		return nil, fmt.Errorf("template: bank template %q has no fingerprint", picked.Title)
	}
	return &picked, nil
}
