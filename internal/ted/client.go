// Package ted implements the client for the TED v3 notice search API.
package ted

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendertrack/tendertrack/internal/cache"
	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/transport"
)

const (
	searchPath = "/v3/notices/search"
	maxLimit   = 250

	// Pagination modes accepted by the search endpoint.
	ModePageNumber = "PAGE_NUMBER"
	ModeIteration  = "ITERATION"
)

// SearchRequest is the POST body of the search endpoint.
type SearchRequest struct {
	Query              string   `json:"query"`
	Page               int      `json:"page"`
	Limit              int      `json:"limit"`
	Scope              string   `json:"scope"`
	CheckQuerySyntax   bool     `json:"checkQuerySyntax"`
	PaginationMode     string   `json:"paginationMode"`
	OnlyLatestVersions bool     `json:"onlyLatestVersions"`
	Fields             []string `json:"fields"`
	IterationNextToken string   `json:"iterationNextToken,omitempty"`
}

// SearchResponse is the parsed search result. The continuation token is
// kept raw because the service has been observed returning non-string
// values; NextToken validates it.
type SearchResponse struct {
	Notices            []model.Notice  `json:"notices"`
	IterationNextToken json.RawMessage `json:"iterationNextToken,omitempty"`
	TotalNoticeCount   int             `json:"totalNoticeCount,omitempty"`
}

// NextToken returns the continuation token. ok is false when the token is
// absent, not a JSON string, or blank.
func (r *SearchResponse) NextToken() (string, bool) {
	if len(r.IterationNextToken) == 0 {
		return "", false
	}
	var token string
	if err := json.Unmarshal(r.IterationNextToken, &token); err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

// Client talks to the search API through the retrying transport.
type Client struct {
	baseURL   string
	transport *transport.Transport
	cache     cache.Cache // nil disables response caching
	logger    *slog.Logger
}

// NewClient creates a search client. responses is optional; when set,
// page-mode responses are served from and stored into it.
func NewClient(baseURL string, tr *transport.Transport, responses cache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: tr,
		cache:     responses,
		logger:    logger,
	}
}

// Search posts one search request and parses the response. Defaults are
// applied the way the service expects them: scope ALL, the standard field
// list, limit clamped to the service maximum, onlyLatestVersions always
// forced on.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	applyDefaults(&req)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cacheable := c.cache != nil && req.PaginationMode == ModePageNumber
	key := ""
	if cacheable {
		key = cache.Key(payload)
		if cached, found := c.cache.Get(key); found {
			c.logger.Debug("search served from cache", "query", req.Query, "page", req.Page)
			var resp SearchResponse
			if err := json.Unmarshal(cached, &resp); err == nil {
				return &resp, nil
			}
			// Corrupt entry; fall through to the network.
			_ = c.cache.Delete(key)
		}
	}

	body, err := c.transport.PostJSON(ctx, c.baseURL+searchPath, payload)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid json in response: %w", err)
	}

	c.logger.Info("search completed",
		"query", req.Query,
		"mode", req.PaginationMode,
		"records", len(resp.Notices),
	)

	if cacheable {
		if err := c.cache.Set(key, body, 0); err != nil {
			c.logger.Warn("cache write failed", "error", err)
		}
	}

	return &resp, nil
}

func applyDefaults(req *SearchRequest) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Scope == "" {
		req.Scope = "ALL"
	}
	if req.PaginationMode == "" {
		req.PaginationMode = ModePageNumber
	}
	if len(req.Fields) == 0 {
		req.Fields = model.DefaultFields
	}
	req.OnlyLatestVersions = true
	if req.PaginationMode != ModeIteration {
		req.IterationNextToken = ""
	}
}
