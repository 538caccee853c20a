package pubmed

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/observability"
	"github.com/helixir/pubmed-harvester/internal/papersources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxResultsLimit is the largest retmax esearch accepts.
	MaxResultsLimit = 10000

	// EarliestYear is the lower bound of the PubMed publication date index.
	EarliestYear = 1809

	// sourceName is the human-readable name used in errors.
	sourceName = "PubMed"

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 10 << 20
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional NCBI API key appended to every request.
	APIKey string

	// Timeout is the request timeout.
	// Defaults to DefaultTimeout if zero.
	Timeout time.Duration

	// RateLimit caps requests per second. Zero leaves requests unthrottled;
	// pacing is the scheduler's concern.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed when RateLimit is set.
	BurstSize int

	// MaxRetries enables transport retries on 429/5xx. Zero disables them.
	MaxRetries int

	// UserAgent overrides the transport User-Agent.
	UserAgent string

	// MaxResults is the esearch retmax. Defaults to MaxResultsLimit.
	MaxResults int

	// Logger and Metrics are handed to the transport.
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxResults <= 0 || c.MaxResults > MaxResultsLimit {
		c.MaxResults = MaxResultsLimit
	}
}

// SearchParams describes one discovery query. Years are four-digit strings;
// an empty bound falls back to EarliestYear or the current year.
type SearchParams struct {
	Query     string
	StartYear string
	EndYear   string
}

// Client talks to the E-utilities esearch and efetch endpoints.
// It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	now        func() time.Time
}

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := papersources.HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
	}

	return &Client{
		config:     cfg,
		httpClient: papersources.NewHTTPClient(httpCfg),
		now:        time.Now,
	}
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// HasAPIKey reports whether requests carry an API key.
func (c *Client) HasAPIKey() bool {
	return c.config.APIKey != ""
}

// Search returns the PMIDs matching params, in the order esearch lists them.
// A query that matches nothing returns domain.ErrNoResults.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]string, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", BuildTerm(params, c.now().Year()))
	q.Set("retmax", strconv.Itoa(c.config.MaxResults))

	result, err := c.esearch(ctx, q)
	if err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, domain.NewExternalAPIError(sourceName, http.StatusOK, strings.TrimSpace(result.Error), nil)
	}

	ids := make([]string, 0, len(result.IDList.IDs))
	for _, id := range result.IDList.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, domain.ErrNoResults
	}

	return ids, nil
}

// FetchRaw retrieves the raw record for a single PMID.
func (c *Client) FetchRaw(ctx context.Context, id string) (*PubmedArticle, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", id)
	q.Set("retmode", "xml")

	body, err := c.get(ctx, "/efetch.fcgi", q)
	if err != nil {
		return nil, err
	}

	if msg, ok := findErrorElement(body); ok {
		return nil, domain.NewExternalAPIError(sourceName, http.StatusOK, msg, nil)
	}

	var set PubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}

	if len(set.Articles) == 0 {
		return nil, domain.NewNotFoundError("pubmed record", id)
	}

	return &set.Articles[0], nil
}

// ValidateAPIKey issues a minimal search with the configured key.
// It returns nil when no key is configured, and an error wrapping
// domain.ErrUnauthorized when NCBI rejects the key.
func (c *Client) ValidateAPIKey(ctx context.Context) error {
	if c.config.APIKey == "" {
		return nil
	}

	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", "test")
	q.Set("retmax", "1")

	result, err := c.esearch(ctx, q)
	if err != nil {
		var apiErr *domain.ExternalAPIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: api key rejected: %w", domain.ErrUnauthorized, err)
		}
		return fmt.Errorf("validate api key: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, strings.TrimSpace(result.Error))
	}

	return nil
}

// BuildTerm renders the esearch term. Without year bounds the query is sent
// as is; with either bound it becomes
// "<query> AND (<start>[PDAT] : <end>[PDAT])".
func BuildTerm(params SearchParams, currentYear int) string {
	query := strings.TrimSpace(params.Query)
	if params.StartYear == "" && params.EndYear == "" {
		return query
	}

	start := params.StartYear
	if start == "" {
		start = strconv.Itoa(EarliestYear)
	}
	end := params.EndYear
	if end == "" {
		end = strconv.Itoa(currentYear)
	}

	return fmt.Sprintf("%s AND (%s[PDAT] : %s[PDAT])", query, start, end)
}

func (c *Client) esearch(ctx context.Context, q url.Values) (*ESearchResult, error) {
	body, err := c.get(ctx, "/esearch.fcgi", q)
	if err != nil {
		return nil, err
	}

	var result ESearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}

	return &result, nil
}

// get performs a GET against an E-utilities endpoint and returns the body of
// a 200 response. Any other status becomes an ExternalAPIError.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	u, err := url.Parse(c.config.BaseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	return body, nil
}

// findErrorElement reports the text of the first <ERROR> element anywhere in
// the document. E-utilities signals hard failures this way with status 200.
func findErrorElement(body []byte) (string, bool) {
	d := xml.NewDecoder(bytes.NewReader(body))
	d.Strict = false

	for {
		tok, err := d.Token()
		if err != nil {
			return "", false
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "ERROR" {
			continue
		}

		var msg Text
		if err := msg.UnmarshalXML(d, start); err != nil {
			return "error", true
		}
		if s := strings.TrimSpace(msg.String()); s != "" {
			return s, true
		}
		return "error", true
	}
}
