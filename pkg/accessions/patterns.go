// Package accessions classifies bioinformatics accession identifiers
// (SRA studies, experiments and runs, BioProjects, GEO series, ArrayExpress
// experiments) by prefix pattern, so callers can route each identifier to
// the archive that can resolve it.
package accessions

import (
	"regexp"
	"strings"
)

// Kind represents the type of a biological database accession.
type Kind string

const (
	// Study level accessions
	StudySRA Kind = "sra_study" // SRP, ERP, DRP

	// Project level accessions
	BioProject Kind = "bioproject" // PRJNA, PRJEB, PRJDB
	SeriesGEO  Kind = "geo_series" // GSE

	// Experiment and run level accessions
	ExperimentSRA Kind = "sra_experiment" // SRX, ERX, DRX
	RunSRA        Kind = "sra_run"        // SRR, ERR, DRR

	// ArrayExpress experiment accessions
	ArrayExpress Kind = "arrayexpress" // E-MTAB, E-GEOD, ...

	// Bare numeric Entrez UIDs
	EntrezID Kind = "entrez_id"

	// Unknown or invalid
	Unknown Kind = "unknown"
)

// Accession is an identifier string tagged with its classified kind.
// It is immutable once classified.
type Accession struct {
	ID   string
	Kind Kind
}

// Archive returns which archive's API resolves this accession kind:
// "ncbi" for NCBI Entrez E-utilities, "ebi" for ENA/BioStudies.
func (a Accession) Archive() string {
	switch a.Kind {
	case StudySRA, ExperimentSRA, RunSRA:
		if strings.HasPrefix(a.ID, "E") {
			return "ebi"
		}
		return "ncbi"
	case BioProject:
		if strings.HasPrefix(a.ID, "PRJEB") {
			return "ebi"
		}
		return "ncbi"
	case ArrayExpress:
		return "ebi"
	case SeriesGEO, EntrezID:
		return "ncbi"
	default:
		return ""
	}
}

// Pattern defines a regex pattern for matching accession IDs.
type Pattern struct {
	Kind        Kind
	Regex       *regexp.Regexp
	Description string
	Examples    []string
	Archive     string
	Priority    int // Higher priority patterns are checked first
}

// Patterns holds all recognized accession patterns, sorted by priority.
var Patterns []Pattern

func init() {
	Patterns = []Pattern{
		{
			Kind:        BioProject,
			Regex:       regexp.MustCompile(`^PRJ[EDN][A-Z]\d+$`),
			Description: "BioProject identifiers from NCBI (PRJNA), EBI (PRJEB), or DDBJ (PRJDB)",
			Examples:    []string{"PRJNA738600", "PRJEB43688"},
			Archive:     "bioproject",
			Priority:    100,
		},
		{
			Kind:        SeriesGEO,
			Regex:       regexp.MustCompile(`^GSE\d+$`),
			Description: "GEO Series identifiers for gene expression studies",
			Examples:    []string{"GSE178360", "GSE158703"},
			Archive:     "geo",
			Priority:    98,
		},
		{
			Kind:        ArrayExpress,
			Regex:       regexp.MustCompile(`^E-[A-Z]{4}-\d+$`),
			Description: "ArrayExpress experiment identifiers from EBI BioStudies",
			Examples:    []string{"E-MTAB-10220", "E-GEOD-12345"},
			Archive:     "arrayexpress",
			Priority:    95,
		},
		{
			Kind:        StudySRA,
			Regex:       regexp.MustCompile(`^[EDS]RP\d{5,}$`),
			Description: "SRA Study identifiers from NCBI (SRP), ENA (ERP), or DDBJ (DRP)",
			Examples:    []string{"SRP324458", "ERP127673"},
			Archive:     "sra",
			Priority:    90,
		},
		{
			Kind:        ExperimentSRA,
			Regex:       regexp.MustCompile(`^[EDS]RX\d{5,}$`),
			Description: "SRA Experiment identifiers from NCBI (SRX), ENA (ERX), or DDBJ (DRX)",
			Examples:    []string{"SRX5126512", "ERX11148735"},
			Archive:     "sra",
			Priority:    80,
		},
		{
			Kind:        RunSRA,
			Regex:       regexp.MustCompile(`^[EDS]RR\d{5,}$`),
			Description: "SRA Run identifiers from NCBI (SRR), ENA (ERR), or DDBJ (DRR)",
			Examples:    []string{"SRR123456", "ERR123456"},
			Archive:     "sra",
			Priority:    70,
		},
		{
			Kind:        EntrezID,
			Regex:       regexp.MustCompile(`^\d{4,}$`),
			Description: "Bare numeric NCBI Entrez UIDs",
			Examples:    []string{"12345678"},
			Archive:     "entrez",
			Priority:    10,
		},
	}

	// Sort patterns by priority (descending)
	for i := 0; i < len(Patterns)-1; i++ {
		for j := i + 1; j < len(Patterns); j++ {
			if Patterns[j].Priority > Patterns[i].Priority {
				Patterns[i], Patterns[j] = Patterns[j], Patterns[i]
			}
		}
	}
}

// Classify matches an input string against the known accession patterns
// and returns the tagged accession. The second return value reports whether
// a pattern matched; on no match the accession carries the Unknown kind.
func Classify(input string) (Accession, bool) {
	normalized := strings.TrimSpace(strings.ToUpper(input))

	for i := range Patterns {
		if Patterns[i].Regex.MatchString(normalized) {
			return Accession{ID: normalized, Kind: Patterns[i].Kind}, true
		}
	}

	return Accession{ID: normalized, Kind: Unknown}, false
}

// Match returns the highest-priority pattern matching the input, if any.
func Match(input string) (*Pattern, bool) {
	normalized := strings.TrimSpace(strings.ToUpper(input))

	for i := range Patterns {
		if Patterns[i].Regex.MatchString(normalized) {
			return &Patterns[i], true
		}
	}

	return nil, false
}

// ValidateFormat performs basic format validation and reports issues.
func ValidateFormat(input string) (bool, []string) {
	if input == "" {
		return false, []string{"empty input"}
	}

	normalized := strings.TrimSpace(input)
	var issues []string

	if normalized != strings.ToUpper(normalized) {
		issues = append(issues, "accession should be uppercase")
	}

	if strings.Contains(normalized, " ") {
		issues = append(issues, "accession contains spaces")
	}

	if len(normalized) < 4 {
		issues = append(issues, "accession too short (minimum 4 characters)")
	}

	if len(normalized) > 20 {
		issues = append(issues, "accession too long (maximum 20 characters)")
	}

	validChars := regexp.MustCompile(`^[A-Z0-9._-]+$`)
	if !validChars.MatchString(strings.ToUpper(normalized)) {
		issues = append(issues, "accession contains invalid characters")
	}

	return len(issues) == 0, issues
}

// ExtractFromText finds accession IDs embedded in a free-text string,
// deduplicated in order of first appearance.
func ExtractFromText(text string) []string {
	var found []string
	seen := make(map[string]bool)

	words := regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9-]{3,19}\b`).FindAllString(text, -1)

	for _, word := range words {
		upperWord := strings.ToUpper(word)
		if _, matched := Match(upperWord); matched {
			if !seen[upperWord] {
				found = append(found, upperWord)
				seen[upperWord] = true
			}
		}
	}

	return found
}
