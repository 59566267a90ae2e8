// Package ncbi implements an NCBI Entrez E-utilities client that resolves
// SRA accessions (SRP/SRX/SRR) and bare Entrez UIDs to their linked
// BioProject (PRJNA) and GEO series (GSE) identifiers, using the
// esearch/esummary/efetch utilities with rate limiting.
package ncbi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/btraven00/tinkuy/pkg/accessions"
	"github.com/btraven00/tinkuy/pkg/xref"
)

const (
	defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// E-utilities allow 3 requests/second without an API key and
	// 10 requests/second with one.
	rateLimit           = time.Second
	rateLimitWithAPIKey = 334 * time.Millisecond
)

var gsePattern = regexp.MustCompile(`GSE\d+`)

// Client queries NCBI Entrez E-utilities.
type Client struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	tool         string
	email        string
	verbose      bool
	interval     time.Duration
	intervalWith time.Duration
	mu           sync.Mutex
	lastRequest  time.Time
}

// Option defines configuration options for the NCBI client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sets the NCBI API key for increased rate limits
// (10 req/sec instead of 3).
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithBaseURL overrides the E-utilities base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *Client) {
		c.verbose = verbose
	}
}

// NewClient creates a new E-utilities client.
func NewClient(options ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		tool:         "tinkuy",
		email:        "tinkuy@example.com",
		interval:     rateLimit,
		intervalWith: rateLimitWithAPIKey,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return "ncbi"
}

// CanResolve reports whether the accession belongs to an NCBI archive.
func (c *Client) CanResolve(acc accessions.Accession) bool {
	return acc.Archive() == "ncbi"
}

// Resolve looks up the BioProject and GEO identifiers linked to the
// accession. Missing links leave the corresponding field empty; only
// transport-level failures surface as errors.
func (c *Client) Resolve(ctx context.Context, acc accessions.Accession) (*xref.Mapping, error) {
	mapping := &xref.Mapping{
		Accession:  acc.ID,
		Kind:       string(acc.Kind),
		Source:     c.Name(),
		ResolvedAt: time.Now(),
	}

	switch acc.Kind {
	case accessions.StudySRA:
		return c.resolveStudy(ctx, acc.ID, mapping)
	case accessions.ExperimentSRA, accessions.RunSRA, accessions.EntrezID:
		return c.resolveSRARecord(ctx, acc.ID, mapping)
	case accessions.BioProject:
		mapping.BioProjectID = acc.ID
		if gse, err := c.gseFromTerm(ctx, fmt.Sprintf("%s[BioProject]", acc.ID)); err == nil {
			mapping.GEOID = gse
		}

		return mapping, nil
	case accessions.SeriesGEO:
		mapping.GEOID = acc.ID
		if prj, err := c.bioprojectFromGEO(ctx, acc.ID); err == nil {
			mapping.BioProjectID = prj
		}

		return mapping, nil
	default:
		return mapping, fmt.Errorf("unsupported accession kind: %s", acc.Kind)
	}
}

// resolveStudy handles SRP study accessions: the BioProject comes from the
// SRA record's external IDs, the GSE from a GEO DataSets search seeded with
// both the BioProject and the study accession.
func (c *Client) resolveStudy(ctx context.Context, id string, mapping *xref.Mapping) (*xref.Mapping, error) {
	content, err := c.fetchSRARecord(ctx, id)
	if err != nil {
		return mapping, err
	}

	external := externalIDs(content)
	mapping.BioProjectID = external["BioProject"]

	term := id
	if mapping.BioProjectID != "" {
		term = fmt.Sprintf("%s[BioProject] OR %s", mapping.BioProjectID, id)
	}

	if gse, err := c.gseFromTerm(ctx, term); err == nil && gse != "" {
		mapping.GEOID = gse
	} else if gse := gsePattern.FindString(string(content)); gse != "" {
		// The SRA record itself sometimes carries the GEO alias.
		mapping.GEOID = gse
	}

	return mapping, nil
}

// resolveSRARecord handles experiment/run accessions and bare Entrez UIDs:
// a single efetch provides both the BioProject external ID and, when the
// submission originated in GEO, the GSE alias.
func (c *Client) resolveSRARecord(ctx context.Context, id string, mapping *xref.Mapping) (*xref.Mapping, error) {
	content, err := c.fetchSRARecord(ctx, id)
	if err != nil {
		return mapping, err
	}

	external := externalIDs(content)
	mapping.BioProjectID = external["BioProject"]

	if geo := external["GEO"]; strings.HasPrefix(geo, "GSE") {
		mapping.GEOID = geo
	} else if gse := gsePattern.FindString(string(content)); gse != "" {
		mapping.GEOID = gse
	}

	return mapping, nil
}

// fetchSRARecord searches the SRA database for the identifier and fetches
// the full XML record of the first hit.
func (c *Client) fetchSRARecord(ctx context.Context, id string) ([]byte, error) {
	uids, err := c.esearch(ctx, "sra", id, 1)
	if err != nil {
		return nil, err
	}

	if len(uids) == 0 {
		return nil, fmt.Errorf("no SRA record found for %s", id)
	}

	params := url.Values{}
	params.Set("db", "sra")
	params.Set("id", uids[0])
	params.Set("retmode", "xml")

	return c.get(ctx, "efetch.fcgi", params)
}

// gseFromTerm searches GEO DataSets for the term and returns the first
// GSE accession among the hit summaries.
func (c *Client) gseFromTerm(ctx context.Context, term string) (string, error) {
	uids, err := c.esearch(ctx, "gds", term, 5)
	if err != nil {
		return "", err
	}

	for _, uid := range uids {
		accession, err := c.esummaryAccession(ctx, "gds", uid)
		if err != nil {
			continue
		}

		if strings.HasPrefix(accession, "GSE") {
			return accession, nil
		}
	}

	return "", fmt.Errorf("no GSE record found for term %q", term)
}

// bioprojectFromGEO finds the BioProject linked to a GEO series by scanning
// its GEO DataSets summary.
func (c *Client) bioprojectFromGEO(ctx context.Context, gse string) (string, error) {
	uids, err := c.esearch(ctx, "gds", fmt.Sprintf("%s[Accession]", gse), 1)
	if err != nil {
		return "", err
	}

	if len(uids) == 0 {
		return "", fmt.Errorf("no GEO record found for %s", gse)
	}

	params := url.Values{}
	params.Set("db", "gds")
	params.Set("id", uids[0])
	params.Set("retmode", "json")

	content, err := c.get(ctx, "esummary.fcgi", params)
	if err != nil {
		return "", err
	}

	if prj := regexp.MustCompile(`PRJ[EDN][A-Z]\d+`).Find(content); prj != nil {
		return string(prj), nil
	}

	return "", fmt.Errorf("no BioProject found for %s", gse)
}

// esearchResult mirrors the JSON envelope returned by esearch.fcgi.
type esearchResult struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// esearch runs an esearch query and returns the matching UIDs.
func (c *Client) esearch(ctx context.Context, db, term string, retmax int) ([]string, error) {
	params := url.Values{}
	params.Set("db", db)
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", fmt.Sprintf("%d", retmax))

	content, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var result esearchResult
	if err := json.Unmarshal(content, &result); err != nil {
		return nil, fmt.Errorf("failed to parse esearch response: %w", err)
	}

	return result.ESearchResult.IDList, nil
}

// esummaryAccession fetches the document summary for a UID and returns its
// accession field.
func (c *Client) esummaryAccession(ctx context.Context, db, uid string) (string, error) {
	params := url.Values{}
	params.Set("db", db)
	params.Set("id", uid)
	params.Set("retmode", "json")

	content, err := c.get(ctx, "esummary.fcgi", params)
	if err != nil {
		return "", err
	}

	var envelope struct {
		Result map[string]json.RawMessage `json:"result"`
	}

	if err := json.Unmarshal(content, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse esummary response: %w", err)
	}

	raw, ok := envelope.Result[uid]
	if !ok {
		return "", fmt.Errorf("no summary found for UID %s", uid)
	}

	var doc struct {
		Accession string `json:"accession"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("failed to parse summary for UID %s: %w", uid, err)
	}

	return doc.Accession, nil
}

// get makes a rate-limited GET request to an E-utilities endpoint.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	params.Set("tool", c.tool)
	params.Set("email", c.email)

	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	requestURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	c.rateLimitWait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("E-utilities rate limit exceeded (HTTP 429). Consider setting NCBI_API_KEY environment variable for higher limits")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("E-utilities request failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// rateLimitWait enforces the minimum interval between E-utilities requests.
func (c *Client) rateLimitWait() {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.interval
	if c.apiKey != "" {
		limit = c.intervalWith
	}

	if elapsed := time.Since(c.lastRequest); elapsed < limit {
		time.Sleep(limit - elapsed)
	}

	c.lastRequest = time.Now()
}

// externalIDs walks an SRA XML record and collects EXTERNAL_ID elements
// keyed by their namespace attribute (e.g. "BioProject", "GEO").
func externalIDs(content []byte) map[string]string {
	ids := make(map[string]string)
	decoder := xml.NewDecoder(strings.NewReader(string(content)))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "EXTERNAL_ID" {
			continue
		}

		var namespace string

		for _, attr := range start.Attr {
			if attr.Name.Local == "namespace" {
				namespace = attr.Value
			}
		}

		var value string
		if err := decoder.DecodeElement(&value, &start); err != nil {
			continue
		}

		if namespace != "" {
			if _, seen := ids[namespace]; !seen {
				ids[namespace] = strings.TrimSpace(value)
			}
		}
	}

	return ids
}
