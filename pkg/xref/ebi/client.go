// Package ebi implements an EBI client that resolves ENA study accessions
// (ERP) to their BioProject (PRJEB) and ArrayExpress (E-MTAB) identifiers,
// combining the ENA Portal API, the ENA Browser XML API, and the BioStudies
// search API with rate limiting.
package ebi

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
	defaultPortalURL     = "https://www.ebi.ac.uk/ena/portal/api"
	defaultBrowserURL    = "https://www.ebi.ac.uk/ena/browser/api"
	defaultBioStudiesURL = "https://www.ebi.ac.uk/biostudies/api/v1"

	// EBI asks for no more than one request per second.
	rateLimit = time.Second
)

var (
	erpNumber      = regexp.MustCompile(`^ERP(\d+)$`)
	emtabPattern   = regexp.MustCompile(`E-MTAB-\d+`)
	arrayExpressID = regexp.MustCompile(`^E-[A-Z]{4}-\d+$`)
)

// Client queries the EBI ENA and BioStudies APIs.
type Client struct {
	client        *http.Client
	portalURL     string
	browserURL    string
	bioStudiesURL string
	verbose       bool
	interval      time.Duration
	mu            sync.Mutex
	lastRequest   time.Time
}

// Option defines configuration options for the EBI client.
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

// WithBaseURLs overrides the ENA Portal, ENA Browser, and BioStudies base
// URLs, in that order. Empty strings leave the defaults in place.
func WithBaseURLs(portal, browser, bioStudies string) Option {
	return func(c *Client) {
		if portal != "" {
			c.portalURL = strings.TrimSuffix(portal, "/")
		}

		if browser != "" {
			c.browserURL = strings.TrimSuffix(browser, "/")
		}

		if bioStudies != "" {
			c.bioStudiesURL = strings.TrimSuffix(bioStudies, "/")
		}
	}
}

// WithVerbose enables verbose logging.
func WithVerbose(verbose bool) Option {
	return func(c *Client) {
		c.verbose = verbose
	}
}

// NewClient creates a new EBI client.
func NewClient(options ...Option) *Client {
	c := &Client{
		client:        &http.Client{Timeout: 30 * time.Second},
		portalURL:     defaultPortalURL,
		browserURL:    defaultBrowserURL,
		bioStudiesURL: defaultBioStudiesURL,
		interval:      rateLimit,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return "ebi"
}

// CanResolve reports whether the accession belongs to an EBI archive.
func (c *Client) CanResolve(acc accessions.Accession) bool {
	return acc.Archive() == "ebi"
}

// Resolve looks up the BioProject and ArrayExpress identifiers linked to
// the accession. Every lookup method is a fallback for the previous one;
// only fully failed lookups surface as errors.
func (c *Client) Resolve(ctx context.Context, acc accessions.Accession) (*xref.Mapping, error) {
	mapping := &xref.Mapping{
		Accession:  acc.ID,
		Kind:       string(acc.Kind),
		Source:     c.Name(),
		ResolvedAt: time.Now(),
	}

	switch acc.Kind {
	case accessions.StudySRA, accessions.ExperimentSRA, accessions.RunSRA:
		mapping.BioProjectID = c.bioproject(ctx, acc.ID)
		mapping.GEOID = c.arrayExpress(ctx, acc.ID, mapping.BioProjectID)

		return mapping, nil
	case accessions.BioProject:
		mapping.BioProjectID = acc.ID
		mapping.GEOID = c.arrayExpress(ctx, acc.ID, acc.ID)

		return mapping, nil
	case accessions.ArrayExpress:
		mapping.GEOID = acc.ID

		return mapping, nil
	default:
		return mapping, fmt.Errorf("unsupported accession kind: %s", acc.Kind)
	}
}

// bioproject resolves the PRJEB identifier for an ENA accession, trying the
// Portal filereport endpoint, then the Browser XML record, then the direct
// numeric rewrite of the ERP accession.
func (c *Client) bioproject(ctx context.Context, id string) string {
	if prj, err := c.bioprojectFromFilereport(ctx, id); err == nil {
		return prj
	}

	if prj, err := c.bioprojectFromBrowserXML(ctx, id); err == nil {
		return prj
	}

	// ERP and PRJEB accessions share their number for most ENA studies.
	// Not guaranteed for old submissions, hence last resort.
	if m := erpNumber.FindStringSubmatch(id); m != nil {
		return "PRJEB" + m[1]
	}

	return ""
}

// filereportRow mirrors one record of a Portal filereport JSON response.
type filereportRow struct {
	StudyAccession string `json:"study_accession"`
}

// bioprojectFromFilereport asks the ENA Portal for the study accession of
// the reads filed under the identifier.
func (c *Client) bioprojectFromFilereport(ctx context.Context, id string) (string, error) {
	params := url.Values{}
	params.Set("accession", id)
	params.Set("result", "read_run")
	params.Set("fields", "study_accession")
	params.Set("format", "json")

	requestURL := fmt.Sprintf("%s/filereport?%s", c.portalURL, params.Encode())

	content, err := c.get(ctx, requestURL)
	if err != nil {
		return "", err
	}

	var rows []filereportRow
	if err := json.Unmarshal(content, &rows); err != nil {
		return "", fmt.Errorf("failed to parse filereport response: %w", err)
	}

	for _, row := range rows {
		if strings.HasPrefix(row.StudyAccession, "PRJ") {
			return row.StudyAccession, nil
		}
	}

	return "", fmt.Errorf("no study accession in filereport for %s", id)
}

// bioprojectFromBrowserXML scans the ENA Browser XML record for a PROJECT
// or STUDY accession, or a BioProject external ID.
func (c *Client) bioprojectFromBrowserXML(ctx context.Context, id string) (string, error) {
	content, err := c.get(ctx, fmt.Sprintf("%s/xml/%s", c.browserURL, url.PathEscape(id)))
	if err != nil {
		return "", err
	}

	decoder := xml.NewDecoder(strings.NewReader(string(content)))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "PROJECT", "STUDY":
			for _, attr := range start.Attr {
				if attr.Name.Local == "accession" && strings.HasPrefix(attr.Value, "PRJ") {
					return attr.Value, nil
				}
			}
		case "EXTERNAL_ID":
			var namespace string

			for _, attr := range start.Attr {
				if attr.Name.Local == "namespace" {
					namespace = attr.Value
				}
			}

			if strings.Contains(namespace, "BioProject") {
				var value string
				if err := decoder.DecodeElement(&value, &start); err == nil {
					return strings.TrimSpace(value), nil
				}
			}
		}
	}

	return "", fmt.Errorf("no BioProject in ENA record for %s", id)
}

// arrayExpress resolves the ArrayExpress identifier for an ENA accession,
// trying BioStudies search with the accession and then with the BioProject,
// and falling back to the ENA Browser cross-reference links.
func (c *Client) arrayExpress(ctx context.Context, id, bioproject string) string {
	if ae, err := c.arrayExpressFromBioStudies(ctx, id); err == nil {
		return ae
	}

	if bioproject != "" && bioproject != id {
		if ae, err := c.arrayExpressFromBioStudies(ctx, bioproject); err == nil {
			return ae
		}
	}

	for _, query := range []string{id, bioproject} {
		if query == "" {
			continue
		}

		if ae, err := c.arrayExpressFromBrowserLinks(ctx, query); err == nil {
			return ae
		}
	}

	return ""
}

// bioStudiesResponse mirrors the BioStudies search JSON envelope.
type bioStudiesResponse struct {
	Hits []struct {
		Accession string `json:"accession"`
	} `json:"hits"`
}

// arrayExpressFromBioStudies searches BioStudies for the query and returns
// the first ArrayExpress-style accession among the hits.
func (c *Client) arrayExpressFromBioStudies(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("query", query)

	content, err := c.get(ctx, fmt.Sprintf("%s/search?%s", c.bioStudiesURL, params.Encode()))
	if err != nil {
		return "", err
	}

	var response bioStudiesResponse
	if err := json.Unmarshal(content, &response); err != nil {
		return "", fmt.Errorf("failed to parse BioStudies response: %w", err)
	}

	for _, hit := range response.Hits {
		if arrayExpressID.MatchString(hit.Accession) {
			return hit.Accession, nil
		}
	}

	return "", fmt.Errorf("no ArrayExpress hit in BioStudies for %q", query)
}

// arrayExpressFromBrowserLinks scans the ENA Browser XML record, including
// cross-reference links, for an ArrayExpress identifier.
func (c *Client) arrayExpressFromBrowserLinks(ctx context.Context, id string) (string, error) {
	requestURL := fmt.Sprintf("%s/xml/%s?includeLinks=true", c.browserURL, url.PathEscape(id))

	content, err := c.get(ctx, requestURL)
	if err != nil {
		return "", err
	}

	type xrefLink struct {
		DB string `xml:"DB"`
		ID string `xml:"ID"`
	}

	decoder := xml.NewDecoder(strings.NewReader(string(content)))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "XREF_LINK" {
			continue
		}

		var link xrefLink
		if err := decoder.DecodeElement(&link, &start); err != nil {
			continue
		}

		if link.DB == "ArrayExpress" && strings.HasPrefix(link.ID, "E-") {
			return link.ID, nil
		}
	}

	// Some records mention the experiment only in free text.
	if ae := emtabPattern.Find(content); ae != nil {
		return string(ae), nil
	}

	return "", fmt.Errorf("no ArrayExpress link in ENA record for %s", id)
}

// get makes a rate-limited GET request to an EBI endpoint.
func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("EBI request failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// rateLimitWait enforces the minimum interval between EBI requests.
func (c *Client) rateLimitWait() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elapsed := time.Since(c.lastRequest); elapsed < c.interval {
		time.Sleep(c.interval - elapsed)
	}

	c.lastRequest = time.Now()
}
