// Package entrez queries the NCBI eutils API for SRA run metadata.
// It is the concrete adapter behind the selector's MetadataService
// boundary: esearch resolves search terms to UIDs, efetch returns
// runinfo XML that is parsed into domain.RunInfo values.
package entrez

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dereneaton/kmunity/internal/config"
	"github.com/dereneaton/kmunity/internal/domain"
)

// pageSize is how many UIDs one efetch call resolves. NCBI rejects
// large id lists, so unpopulated-candidate scans page through results.
const pageSize = 20

// maxScan caps how many archive entries one candidate query inspects.
const maxScan = 200

// Client talks to the NCBI eutils endpoints.
type Client struct {
	baseURL        string
	tool           string
	email          string
	minBases       int64
	excludedTaxids map[int]bool
	retries        int
	backoff        time.Duration
	httpClient     *http.Client
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.EntrezConfig) *Client {
	excluded := make(map[int]bool, len(cfg.ExcludedTaxids))
	for _, id := range cfg.ExcludedTaxids {
		excluded[id] = true
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		tool:           cfg.Tool,
		email:          cfg.Email,
		minBases:       cfg.MinBases,
		excludedTaxids: excluded,
		retries:        cfg.Retries,
		backoff:        cfg.RetryBackoff,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
	}
}

// LookupRun resolves a single run accession to its metadata, including
// which categories its taxonomy falls under.
func (c *Client) LookupRun(ctx context.Context, accession string) (*domain.RunInfo, error) {
	uids, _, err := c.searchUIDs(ctx, AccessionTerm(accession), 0, pageSize)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("run %s not in archive: %w", accession, domain.ErrNoCandidateFound)
	}

	infos, err := c.fetchRunInfo(ctx, uids)
	if err != nil {
		return nil, err
	}
	var info *domain.RunInfo
	for _, ri := range infos {
		if ri.Run == accession {
			info = ri
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("run %s missing from runinfo response: %w", accession, domain.ErrNoCandidateFound)
	}

	// Probe each category term to learn which partitions the run's
	// taxonomy maps to.
	for _, cat := range domain.Categories {
		term := "(" + AccessionTerm(accession) + ") AND (" + SearchTerm(cat) + ")"
		_, count, err := c.searchUIDs(ctx, term, 0, 1)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			info.CategoryHints = append(info.CategoryHints, cat)
		}
	}
	return info, nil
}

// QueryUnpopulated returns candidate runs for a category that are
// absent from the known set, in archive query order. Runs below the
// minimum base count or from excluded taxa are skipped.
func (c *Client) QueryUnpopulated(ctx context.Context, category domain.Category, known map[string]bool) ([]*domain.RunInfo, error) {
	term := SearchTerm(category)
	var candidates []*domain.RunInfo

	for start := 0; start < maxScan; start += pageSize {
		uids, count, err := c.searchUIDs(ctx, term, start, pageSize)
		if err != nil {
			return nil, err
		}
		if len(uids) == 0 {
			break
		}

		infos, err := c.fetchRunInfo(ctx, uids)
		if err != nil {
			return nil, err
		}
		for _, ri := range infos {
			if known[ri.Run] {
				continue
			}
			if ri.Bases < c.minBases {
				continue
			}
			if c.excludedTaxids[ri.TaxID] {
				continue
			}
			candidates = append(candidates, ri)
		}

		if start+pageSize >= count {
			break
		}
	}
	return candidates, nil
}

// searchUIDs runs an esearch query and returns the matching UIDs plus
// the total match count.
func (c *Client) searchUIDs(ctx context.Context, term string, retstart, retmax int) ([]string, int, error) {
	params := url.Values{
		"db":       {"sra"},
		"term":     {term},
		"retmode":  {"text"},
		"retstart": {fmt.Sprint(retstart)},
		"retmax":   {fmt.Sprint(retmax)},
	}
	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, 0, err
	}

	var res eSearchResult
	if err := xml.Unmarshal(body, &res); err != nil {
		return nil, 0, fmt.Errorf("parsing esearch response: %w", domain.ErrMetadataUnavailable)
	}
	return res.IDs, res.Count, nil
}

// fetchRunInfo resolves UIDs to run metadata via efetch.
func (c *Client) fetchRunInfo(ctx context.Context, uids []string) ([]*domain.RunInfo, error) {
	params := url.Values{
		"db":      {"sra"},
		"id":      {strings.Join(uids, ",")},
		"retmode": {"text"},
	}
	body, err := c.get(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, err
	}
	infos, err := ParseRunInfo(body)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrMetadataUnavailable)
	}
	return infos, nil
}

// get performs one eutils request with bounded retries. Transient
// transport and 5xx failures are retried with doubling backoff; the
// final failure is reported as MetadataUnavailable.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	params.Set("tool", c.tool)
	params.Set("email", c.email)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var lastErr error
	backoff := c.backoff
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("eutils returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("eutils returned %d: %w", resp.StatusCode, domain.ErrMetadataUnavailable)
		}
		return body, nil
	}
	return nil, fmt.Errorf("%s: %v: %w", endpoint, lastErr, domain.ErrMetadataUnavailable)
}
