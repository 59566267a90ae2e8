package resolver

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btraven00/tinkuy/pkg/accessions"
	"github.com/btraven00/tinkuy/pkg/cache"
	"github.com/btraven00/tinkuy/pkg/xref"
)

// countingSource wraps another source and counts Resolve calls.
type countingSource struct {
	xref.Source
	mu    sync.Mutex
	calls int
}

func (s *countingSource) Resolve(ctx context.Context, acc accessions.Accession) (*xref.Mapping, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	return s.Source.Resolve(ctx, acc)
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// flakySource fails the first failures calls, then succeeds.
type flakySource struct {
	name     string
	mapping  *xref.Mapping
	failures int
	mu       sync.Mutex
	calls    int
}

func (s *flakySource) Name() string { return s.name }

func (s *flakySource) CanResolve(acc accessions.Accession) bool { return true }

func (s *flakySource) Resolve(ctx context.Context, acc accessions.Accession) (*xref.Mapping, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	if call <= s.failures {
		return xref.Empty(acc), errors.New("transient failure")
	}

	return s.mapping, nil
}

func newTestResolver(t *testing.T, config Config, source xref.Source) *Resolver {
	t.Helper()

	registry := xref.NewRegistry()
	require.NoError(t, registry.Register(source))

	return New(config, WithRegistry(registry))
}

func TestResolveKnownMappingsSkipNetwork(t *testing.T) {
	source := &countingSource{Source: &stubSource{name: "stub"}}
	r := newTestResolver(t, Config{}, source)

	results, err := r.Resolve(context.Background(), []string{"ERP127673", "SRP324458"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "PRJEB43688", results["ERP127673"].BioProjectID)
	assert.Equal(t, "E-MTAB-10220", results["ERP127673"].GEOID)
	assert.Equal(t, "PRJNA738600", results["SRP324458"].BioProjectID)
	assert.Equal(t, "GSE178360", results["SRP324458"].GEOID)

	assert.Equal(t, 0, source.callCount(), "known mappings must not trigger lookups")
}

func TestResolveMalformedAccession(t *testing.T) {
	source := &countingSource{Source: &stubSource{name: "stub"}}
	r := newTestResolver(t, Config{}, source)

	results, err := r.Resolve(context.Background(), []string{"banana", ""})
	require.NoError(t, err)
	require.Len(t, results, 1)

	m := results["BANANA"]
	require.NotNil(t, m)
	assert.False(t, m.Found())
	assert.Equal(t, "unrecognized accession format", m.Error)
	assert.Equal(t, 0, source.callCount())
}

func TestResolveViaSource(t *testing.T) {
	source := &stubSource{
		name: "stub",
		mappings: map[string]*xref.Mapping{
			"SRP000123": {Accession: "SRP000123", BioProjectID: "PRJNA123", GEOID: "GSE123", Source: "stub"},
		},
	}

	r := newTestResolver(t, Config{}, source)

	results, err := r.Resolve(context.Background(), []string{"srp000123"})
	require.NoError(t, err)

	m := results["SRP000123"]
	require.NotNil(t, m)
	assert.Equal(t, "PRJNA123", m.BioProjectID)
	assert.Equal(t, "GSE123", m.GEOID)
}

func TestResolveDeduplicates(t *testing.T) {
	source := &countingSource{Source: &stubSource{
		name: "stub",
		mappings: map[string]*xref.Mapping{
			"SRP000123": {Accession: "SRP000123", BioProjectID: "PRJNA123"},
		},
	}}

	r := newTestResolver(t, Config{}, source)

	results, err := r.Resolve(context.Background(), []string{"SRP000123", " srp000123 ", "SRP000123"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, source.callCount())
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	source := &flakySource{
		name:     "flaky",
		failures: 2,
		mapping:  &xref.Mapping{Accession: "SRP000123", BioProjectID: "PRJNA123"},
	}

	r := newTestResolver(t, Config{MaxRetries: 3}, source)

	results, err := r.Resolve(context.Background(), []string{"SRP000123"})
	require.NoError(t, err)

	m := results["SRP000123"]
	require.NotNil(t, m)
	assert.Equal(t, "PRJNA123", m.BioProjectID)
	assert.Equal(t, 3, source.calls)
}

func TestResolveUnresolvableYieldsEmptyMapping(t *testing.T) {
	source := &stubSource{name: "stub", err: errors.New("archive unavailable")}

	r := newTestResolver(t, Config{MaxRetries: 1}, source)

	results, err := r.Resolve(context.Background(), []string{"SRP000123", "SRP000456"})
	require.NoError(t, err, "per-accession failures must not abort the run")
	require.Len(t, results, 2)

	for _, id := range []string{"SRP000123", "SRP000456"} {
		m := results[id]
		require.NotNil(t, m, "every input must map to a result")
		assert.False(t, m.Found())
		assert.Equal(t, "stub", m.Source)
	}
}

func TestResolvePersistsFoundMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	source := &stubSource{
		name: "stub",
		mappings: map[string]*xref.Mapping{
			"SRP000123": {Accession: "SRP000123", BioProjectID: "PRJNA123"},
		},
	}

	registry := xref.NewRegistry()
	require.NoError(t, registry.Register(source))

	store := cache.NewStore(path)
	r := New(Config{}, WithRegistry(registry), WithStore(store))

	_, err := r.Resolve(context.Background(), []string{"SRP000123", "SRP000456"})
	require.NoError(t, err)

	reloaded := cache.NewStore(path)
	require.NoError(t, reloaded.Load())

	m, ok := reloaded.Get("SRP000123")
	require.True(t, ok)
	assert.Equal(t, "PRJNA123", m.BioProjectID)

	_, ok = reloaded.Get("SRP000456")
	assert.False(t, ok, "empty results are not persisted")
}

func TestResolveUsesFileCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	store := cache.NewStore(path)
	store.Put(&xref.Mapping{Accession: "SRP000123", BioProjectID: "PRJNA123"})
	require.NoError(t, store.Save())

	source := &countingSource{Source: &stubSource{name: "stub"}}

	registry := xref.NewRegistry()
	require.NoError(t, registry.Register(source))

	r := New(Config{}, WithRegistry(registry), WithStore(cache.NewStore(path)))

	results, err := r.Resolve(context.Background(), []string{"SRP000123"})
	require.NoError(t, err)

	assert.Equal(t, "PRJNA123", results["SRP000123"].BioProjectID)
	assert.Equal(t, 0, source.callCount(), "cached entries must not trigger lookups")
}

func TestResolveReportsProgress(t *testing.T) {
	source := &stubSource{
		name: "stub",
		mappings: map[string]*xref.Mapping{
			"SRP000123": {Accession: "SRP000123", BioProjectID: "PRJNA123"},
		},
	}

	registry := xref.NewRegistry()
	require.NoError(t, registry.Register(source))

	var lastCompleted, lastTotal int

	r := New(Config{}, WithRegistry(registry), WithProgress(func(completed, total int) {
		lastCompleted = completed
		lastTotal = total
	}))

	_, err := r.Resolve(context.Background(), []string{"ERP127673", "SRP000123"})
	require.NoError(t, err)

	assert.Equal(t, 2, lastCompleted)
	assert.Equal(t, 2, lastTotal)
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{" erp127673", "ERP127673", "", "SRP324458", "srp324458 "})
	assert.Equal(t, []string{"ERP127673", "SRP324458"}, got)
}
