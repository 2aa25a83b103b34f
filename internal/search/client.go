package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// HardMax caps how many records a single query may return.
const HardMax = 20000

// pageSize is the largest page the search endpoint serves.
const pageSize = 500

const timeLayout = "200601021504"

// Query selects records matching Rule between Start and End.
type Query struct {
	Rule       string
	Start      time.Time
	End        time.Time
	MaxResults int // 0 or anything above HardMax means HardMax
}

func (q Query) limit() int {
	if q.MaxResults <= 0 || q.MaxResults > HardMax {
		return HardMax
	}
	return q.MaxResults
}

type request struct {
	Query      string `json:"query"`
	FromDate   string `json:"fromDate,omitempty"`
	ToDate     string `json:"toDate,omitempty"`
	MaxResults int    `json:"maxResults"`
	Next       string `json:"next,omitempty"`
}

type Client struct {
	endpoint string
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

func NewClient(endpoint, username, password string, logger *slog.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		username: username,
		password: password,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// Fetch pages through the results of q, calling fn with each raw record. It
// stops once the query limit is reached or the endpoint has no next page, and
// returns the number of records handed to fn.
func (c *Client) Fetch(ctx context.Context, q Query, fn func(raw []byte) error) (int, error) {
	if q.Rule == "" {
		return 0, errors.New("empty rule")
	}
	if !q.Start.IsZero() && !q.End.IsZero() && !q.Start.Before(q.End) {
		return 0, fmt.Errorf("start %s is not before end %s", q.Start, q.End)
	}

	limit := q.limit()
	req := request{Query: q.Rule, MaxResults: min(pageSize, limit)}
	if !q.Start.IsZero() {
		req.FromDate = q.Start.UTC().Format(timeLayout)
	}
	if !q.End.IsZero() {
		req.ToDate = q.End.UTC().Format(timeLayout)
	}

	count, pages := 0, 0
	for {
		body, err := c.page(ctx, req)
		if err != nil {
			return count, fmt.Errorf("page %d: %w", pages+1, err)
		}
		pages++

		var stop bool
		gjson.GetBytes(body, "results").ForEach(func(_, v gjson.Result) bool {
			if count >= limit {
				stop = true
				return false
			}
			if ferr := fn([]byte(v.Raw)); ferr != nil {
				err = ferr
				return false
			}
			count++
			return true
		})
		if err != nil {
			return count, err
		}

		next := gjson.GetBytes(body, "next").String()
		if stop || count >= limit || next == "" {
			break
		}
		req.Next = next
	}

	c.logger.Info("search complete", "rule", q.Rule, "records", count, "pages", pages)
	return count, nil
}

func (c *Client) page(ctx context.Context, r request) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = string(body)
		}
		return nil, fmt.Errorf("search error (status %d): %s", resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid json response")
	}
	return body, nil
}
