package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/raulk/clock"
	"github.com/rs/zerolog"

	"dbpoll/internal/domain"
	"dbpoll/internal/metrics"
)

// ── Source ──────────────────────────────────────────────────
// A Source builds running instances from a SourceConfig.
// Implementations live in etl/sources/: one file per source type.

// SourceSpec describes a source type.
type SourceSpec struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Env carries the collaborators an instance needs.
type Env struct {
	Log     zerolog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Sink    Sink
}

// Instance is one configured, runnable source.
type Instance interface {
	// Run blocks until ctx is cancelled, the source finishes, or a fatal
	// error occurs. A cancelled ctx is a clean shutdown and returns nil.
	Run(ctx context.Context) error

	// State reports the current lifecycle state, for health checks.
	State() string

	// Close releases the instance's resources. Call it after Run returns.
	Close() error
}

// Source is the interface every source type must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// CanAcknowledge reports whether the source can acknowledge delivery
	// back to its origin.
	CanAcknowledge() bool

	// Build validates cfg and creates an instance. Nothing is dialed yet.
	Build(cfg domain.SourceConfig, env Env) (Instance, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source by its spec type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Type] = s
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unknown source type: %q", typ)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
