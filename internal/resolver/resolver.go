// Package resolver orchestrates accession cross-reference resolution: it
// deduplicates input identifiers, consults the known-mapping table and the
// file cache, partitions the remainder by archive, and dispatches batched
// parallel lookups with rate-limit-friendly delays and bounded retries.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/btraven00/tinkuy/pkg/accessions"
	"github.com/btraven00/tinkuy/pkg/cache"
	"github.com/btraven00/tinkuy/pkg/xref"
	"github.com/btraven00/tinkuy/pkg/xref/ebi"
	"github.com/btraven00/tinkuy/pkg/xref/ncbi"
)

// Config holds configuration for the resolver.
type Config struct {
	Workers        int
	BatchSize      int
	BatchDelay     time.Duration
	RetryDelay     time.Duration
	MaxRetries     int
	TimeoutSeconds int
	OutputFormat   string
	CacheFile      string
	NCBIAPIKey     string
	Verbose        bool
}

// ProgressFunc receives the number of resolved identifiers so far and the
// total number of unique identifiers.
type ProgressFunc func(completed, total int)

// Resolver resolves accession cross-references through registered sources.
type Resolver struct {
	config   Config
	registry *xref.Registry
	store    *cache.Store
	progress ProgressFunc
}

// Option defines configuration options for the Resolver.
type Option func(*Resolver)

// WithRegistry replaces the default source registry.
func WithRegistry(registry *xref.Registry) Option {
	return func(r *Resolver) {
		r.registry = registry
	}
}

// WithStore replaces the default result cache store.
func WithStore(store *cache.Store) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

// WithProgress sets a progress callback.
func WithProgress(progress ProgressFunc) Option {
	return func(r *Resolver) {
		r.progress = progress
	}
}

// New creates a new Resolver. Unless overridden, the registry holds the
// NCBI and EBI clients configured from the Config.
func New(config Config, options ...Option) *Resolver {
	if config.Workers <= 0 {
		config.Workers = 2
	}

	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}

	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 30
	}

	r := &Resolver{config: config}

	for _, option := range options {
		option(r)
	}

	if r.registry == nil {
		timeout := time.Duration(config.TimeoutSeconds) * time.Second

		registry := xref.NewRegistry()
		_ = registry.Register(ncbi.NewClient(
			ncbi.WithTimeout(timeout),
			ncbi.WithAPIKey(config.NCBIAPIKey),
			ncbi.WithVerbose(config.Verbose),
		))
		_ = registry.Register(ebi.NewClient(
			ebi.WithTimeout(timeout),
			ebi.WithVerbose(config.Verbose),
		))

		r.registry = registry
	}

	if r.store == nil {
		r.store = cache.NewStore(config.CacheFile)
	}

	return r
}

// Resolve resolves the given identifiers and returns a mapping for every
// unique input ID. A per-ID failure never aborts the run: unresolvable
// identifiers map to empty results carrying an error description.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (map[string]*xref.Mapping, error) {
	unique := dedupe(ids)
	if r.config.Verbose {
		fmt.Printf("Processing %d unique accessions out of %d total\n", len(unique), len(ids))
	}

	if err := r.store.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	results := make(map[string]*xref.Mapping, len(unique))
	total := len(unique)
	completed := 0

	// Cache pass: known mappings first, then the file cache.
	var pending []accessions.Accession

	for _, id := range unique {
		acc, matched := accessions.Classify(id)

		if m, ok := cache.Known(acc.ID); ok {
			results[acc.ID] = m
			completed++

			continue
		}

		if m, ok := r.store.Get(acc.ID); ok {
			results[acc.ID] = m
			completed++

			continue
		}

		if !matched {
			m := xref.Empty(acc)
			m.Error = "unrecognized accession format"
			results[acc.ID] = m
			completed++

			continue
		}

		pending = append(pending, acc)
	}

	r.reportProgress(completed, total)

	if r.config.Verbose {
		fmt.Printf("Found %d accessions in cache/known mappings, %d remaining\n",
			len(unique)-len(pending), len(pending))
	}

	// Partition the remainder by resolving source.
	groups := make(map[string][]accessions.Accession)
	order := make([]string, 0)

	for _, acc := range pending {
		source := r.registry.FindSource(acc)
		if source == nil {
			m := xref.Empty(acc)
			m.Error = fmt.Sprintf("no source can resolve kind %s", acc.Kind)
			results[acc.ID] = m
			completed++

			continue
		}

		if _, seen := groups[source.Name()]; !seen {
			order = append(order, source.Name())
		}

		groups[source.Name()] = append(groups[source.Name()], acc)
	}

	sort.Strings(order)

	for _, name := range order {
		source, err := r.registry.Get(name)
		if err != nil {
			continue
		}

		if r.config.Verbose {
			fmt.Printf("Processing %d accessions via %s in batches of %d\n",
				len(groups[name]), name, r.config.BatchSize)
		}

		completed = r.resolveGroup(ctx, source, groups[name], results, completed, total)
	}

	// Persist newly resolved mappings.
	for _, m := range results {
		if m.Found() {
			r.store.Put(m)
		}
	}

	if err := r.store.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	return results, nil
}

// resolveGroup processes one source's accessions in fixed-size batches with
// a delay between batches, re-queuing failed lookups for up to MaxRetries
// additional passes.
func (r *Resolver) resolveGroup(ctx context.Context, source xref.Source, accs []accessions.Accession, results map[string]*xref.Mapping, completed, total int) int {
	failed := accs

	for attempt := 0; attempt <= r.config.MaxRetries && len(failed) > 0; attempt++ {
		if attempt > 0 {
			if r.config.Verbose {
				fmt.Printf("Retry %d/%d for %d failed accessions\n", attempt, r.config.MaxRetries, len(failed))
			}

			sleepCtx(ctx, r.config.RetryDelay)
		}

		ids := make([]string, len(failed))
		byID := make(map[string]accessions.Accession, len(failed))

		for i, acc := range failed {
			ids[i] = acc.ID
			byID[acc.ID] = acc
		}

		var stillFailed []accessions.Accession

		batches := Batches(ids, r.config.BatchSize)

		for bi, batch := range batches {
			if ctx.Err() != nil {
				break
			}

			pool := NewWorkerPool(ctx, r.config.Workers, time.Duration(r.config.TimeoutSeconds)*time.Second)
			pool.Start()

			go func(batch []string) {
				for _, id := range batch {
					pool.Submit(LookupTask{Accession: byID[id], Source: source})
				}

				pool.Wait()
			}(batch)

			for res := range pool.Results() {
				id := res.Task.Accession.ID

				switch {
				case res.Err == nil && res.Mapping.Found():
					results[id] = res.Mapping
					completed++

					r.reportProgress(completed, total)
				default:
					if res.Err != nil && r.config.Verbose {
						fmt.Fprintf(os.Stderr, "Warning: lookup failed for %s: %v\n", id, res.Err)
					}

					stillFailed = append(stillFailed, res.Task.Accession)
				}
			}

			// Sleep between batches to respect the archive rate limits,
			// but only if more batches remain.
			if bi < len(batches)-1 {
				sleepCtx(ctx, r.config.BatchDelay)
			}
		}

		failed = stillFailed
	}

	if len(failed) > 0 && r.config.Verbose {
		fmt.Fprintf(os.Stderr, "Warning: %d accessions unresolved after %d retries\n",
			len(failed), r.config.MaxRetries)
	}

	// Record empty results for accessions that never resolved.
	for _, acc := range failed {
		m := xref.Empty(acc)
		m.Source = source.Name()
		results[acc.ID] = m
		completed++

		r.reportProgress(completed, total)
	}

	return completed
}

func (r *Resolver) reportProgress(completed, total int) {
	if r.progress != nil {
		r.progress(completed, total)
	}
}

// OutputResults writes the mappings for the given identifiers, in input
// order, in the configured output format.
func (r *Resolver) OutputResults(ids []string, results map[string]*xref.Mapping) error {
	ordered := make([]*xref.Mapping, 0, len(results))

	for _, id := range dedupe(ids) {
		acc, _ := accessions.Classify(id)
		if m, ok := results[acc.ID]; ok {
			ordered = append(ordered, m)
		}
	}

	switch strings.ToLower(r.config.OutputFormat) {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")

		return encoder.Encode(ordered)
	case "csv":
		return gocsv.Marshal(ordered, os.Stdout)
	case "human", "":
		return outputHuman(ordered)
	default:
		return fmt.Errorf("unsupported output format: %s", r.config.OutputFormat)
	}
}

func outputHuman(mappings []*xref.Mapping) error {
	for _, m := range mappings {
		if m.Error != "" {
			fmt.Printf("❌ %s: %s\n", m.Accession, m.Error)
			continue
		}

		if !m.Found() {
			fmt.Printf("❌ %s: no cross-references found\n", m.Accession)
			continue
		}

		fmt.Printf("✅ %s\n", m.Accession)

		if m.BioProjectID != "" {
			fmt.Printf("   📁 BioProject: %s\n", m.BioProjectID)
		}

		if m.GEOID != "" {
			fmt.Printf("   🧬 GEO/ArrayExpress: %s\n", m.GEOID)
		}

		if m.Source != "" {
			fmt.Printf("   🔎 Source: %s\n", m.Source)
		}
	}

	return nil
}

// dedupe returns the unique normalized identifiers preserving first-seen
// order. Empty strings are dropped.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))

	for _, id := range ids {
		normalized := strings.TrimSpace(strings.ToUpper(id))
		if normalized == "" || seen[normalized] {
			continue
		}

		seen[normalized] = true
		unique = append(unique, normalized)
	}

	return unique
}

// sleepCtx sleeps for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
