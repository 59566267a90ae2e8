package xref

import (
	"context"
	"testing"

	"github.com/btraven00/tinkuy/pkg/accessions"
)

// fakeSource resolves accessions whose archive matches its name.
type fakeSource struct {
	name string
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) CanResolve(acc accessions.Accession) bool {
	return acc.Archive() == s.name
}

func (s *fakeSource) Resolve(_ context.Context, acc accessions.Accession) (*Mapping, error) {
	return &Mapping{Accession: acc.ID, Source: s.name}, nil
}

func TestRegistryRegister(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(&fakeSource{name: "ncbi"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := registry.Register(&fakeSource{name: "ncbi"}); err == nil {
		t.Error("Expected error registering duplicate source name")
	}

	if err := registry.Register(nil); err == nil {
		t.Error("Expected error registering nil source")
	}

	if err := registry.Register(&fakeSource{name: ""}); err == nil {
		t.Error("Expected error registering source with empty name")
	}
}

func TestRegistryGet(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(&fakeSource{name: "ebi"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	source, err := registry.Get("ebi")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if source.Name() != "ebi" {
		t.Errorf("Get returned source %q, expected %q", source.Name(), "ebi")
	}

	// Lookup is case-insensitive
	if _, err := registry.Get("  EBI "); err != nil {
		t.Errorf("Get with padded uppercase name failed: %v", err)
	}

	if _, err := registry.Get("missing"); err == nil {
		t.Error("Expected error for unregistered source name")
	}
}

func TestRegistryFindSource(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(&fakeSource{name: "ncbi"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := registry.Register(&fakeSource{name: "ebi"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"SRP324458", "ncbi"},
		{"ERP127673", "ebi"},
		{"GSE178360", "ncbi"},
		{"E-MTAB-10220", "ebi"},
	}

	for _, tt := range tests {
		acc, _ := accessions.Classify(tt.input)

		source := registry.FindSource(acc)
		if source == nil {
			t.Errorf("FindSource(%q) returned nil", tt.input)
			continue
		}

		if source.Name() != tt.expected {
			t.Errorf("FindSource(%q) = %q, expected %q", tt.input, source.Name(), tt.expected)
		}
	}

	unknown, _ := accessions.Classify("banana")
	if source := registry.FindSource(unknown); source != nil {
		t.Errorf("FindSource for unknown accession = %q, expected nil", source.Name())
	}
}

func TestMappingFound(t *testing.T) {
	tests := []struct {
		name     string
		mapping  *Mapping
		expected bool
	}{
		{"nil mapping", nil, false},
		{"empty mapping", &Mapping{Accession: "SRP1"}, false},
		{"bioproject only", &Mapping{Accession: "SRP1", BioProjectID: "PRJNA1"}, true},
		{"geo only", &Mapping{Accession: "SRP1", GEOID: "GSE1"}, true},
		{"both", &Mapping{Accession: "SRP1", BioProjectID: "PRJNA1", GEOID: "GSE1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mapping.Found(); got != tt.expected {
				t.Errorf("Found() = %t, expected %t", got, tt.expected)
			}
		})
	}
}
