// Package xref defines the cross-reference result model and the Source
// interface implemented by the archive API clients (NCBI E-utilities,
// EBI ENA/BioStudies).
package xref

import (
	"context"
	"time"

	"github.com/btraven00/tinkuy/pkg/accessions"
)

// Mapping is the result of resolving one accession: the linked BioProject
// identifier (PRJNA/PRJEB) and the linked GEO series or ArrayExpress
// experiment identifier (GSE/E-MTAB). Empty fields mean "not found".
// A Mapping is never mutated after creation.
type Mapping struct {
	Accession    string    `json:"accession" csv:"accession"`
	Kind         string    `json:"kind,omitempty" csv:"kind"`
	BioProjectID string    `json:"bioproject_id" csv:"bioproject_id"`
	GEOID        string    `json:"geo_id" csv:"geo_id"`
	Source       string    `json:"source,omitempty" csv:"source"`
	Error        string    `json:"error,omitempty" csv:"error"`
	ResolvedAt   time.Time `json:"resolved_at,omitempty" csv:"-"`
}

// Found reports whether the lookup produced at least one linked identifier.
func (m *Mapping) Found() bool {
	return m != nil && (m.BioProjectID != "" || m.GEOID != "")
}

// Empty returns a not-found mapping for the given accession.
func Empty(acc accessions.Accession) *Mapping {
	return &Mapping{Accession: acc.ID, Kind: string(acc.Kind)}
}

// Source resolves accessions against one external archive API.
type Source interface {
	// Name returns the source identifier (e.g. "ncbi", "ebi")
	Name() string

	// CanResolve reports whether this source can handle the accession
	CanResolve(acc accessions.Accession) bool

	// Resolve looks up the linked identifiers for the accession.
	// Lookup failures (network errors, missing records) are reported
	// through the returned error; callers degrade them to an empty
	// Mapping rather than aborting a batch.
	Resolve(ctx context.Context, acc accessions.Accession) (*Mapping, error)
}
