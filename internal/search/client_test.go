package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pagedServer serves total records in pages of per, numbered from 1.
func pagedServer(t *testing.T, total, per int, seen *[]request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "me" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad credentials"}}`)
			return
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		*seen = append(*seen, req)

		start := 0
		if req.Next != "" {
			fmt.Sscanf(req.Next, "p%d", &start)
		}
		end := min(start+per, total)

		var items []string
		for i := start; i < end; i++ {
			items = append(items, fmt.Sprintf(`{"id":%d,"body":"tweet %d"}`, i+1, i+1))
		}
		next := ""
		if end < total {
			next = fmt.Sprintf(`,"next":"p%d"`, end)
		}
		fmt.Fprintf(w, `{"results":[%s]%s}`, strings.Join(items, ","), next)
	}))
}

func TestFetch_Pages(t *testing.T) {
	var seen []request
	server := pagedServer(t, 5, 2, &seen)
	defer server.Close()

	c := NewClient(server.URL, "me", "pw", discardLogger())
	q := Query{
		Rule:  "apple lang:en",
		Start: time.Date(2016, 7, 25, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2016, 7, 26, 0, 0, 0, 0, time.UTC),
	}

	var got []string
	n, err := c.Fetch(context.Background(), q, func(raw []byte) error {
		got = append(got, string(raw))
		return nil
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n != 5 || len(got) != 5 {
		t.Fatalf("fetched %d (%d), want 5", n, len(got))
	}
	if got[4] != `{"id":5,"body":"tweet 5"}` {
		t.Errorf("last record = %s", got[4])
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 page requests, got %d", len(seen))
	}
	if seen[0].Query != "apple lang:en" || seen[0].FromDate != "201607250000" || seen[0].ToDate != "201607260000" {
		t.Errorf("unexpected first request %+v", seen[0])
	}
	if seen[1].Next != "p2" || seen[2].Next != "p4" {
		t.Errorf("unexpected next tokens %q, %q", seen[1].Next, seen[2].Next)
	}
}

func TestFetch_StopsAtMaxResults(t *testing.T) {
	var seen []request
	server := pagedServer(t, 10, 4, &seen)
	defer server.Close()

	c := NewClient(server.URL, "me", "pw", discardLogger())
	n, err := c.Fetch(context.Background(), Query{Rule: "x", MaxResults: 5}, func([]byte) error { return nil })
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n != 5 {
		t.Errorf("fetched %d, want 5", n)
	}
	if len(seen) != 2 {
		t.Errorf("expected 2 page requests, got %d", len(seen))
	}
	if seen[0].MaxResults != 5 {
		t.Errorf("page size = %d, want 5", seen[0].MaxResults)
	}
}

func TestQuery_Limit(t *testing.T) {
	tests := []struct {
		max  int
		want int
	}{
		{0, HardMax},
		{-3, HardMax},
		{100, 100},
		{HardMax + 1, HardMax},
	}
	for _, tt := range tests {
		if got := (Query{MaxResults: tt.max}).limit(); got != tt.want {
			t.Errorf("limit(%d) = %d, want %d", tt.max, got, tt.want)
		}
	}
}

func TestFetch_Unauthorized(t *testing.T) {
	var seen []request
	server := pagedServer(t, 3, 3, &seen)
	defer server.Close()

	c := NewClient(server.URL, "me", "wrong", discardLogger())
	_, err := c.Fetch(context.Background(), Query{Rule: "x"}, func([]byte) error { return nil })
	if err == nil || !strings.Contains(err.Error(), "bad credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestFetch_CallbackError(t *testing.T) {
	var seen []request
	server := pagedServer(t, 3, 3, &seen)
	defer server.Close()

	c := NewClient(server.URL, "me", "pw", discardLogger())
	n, err := c.Fetch(context.Background(), Query{Rule: "x"}, func([]byte) error {
		return fmt.Errorf("disk full")
	})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected callback error, got %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestFetch_InvalidQuery(t *testing.T) {
	c := NewClient("http://unused", "", "", discardLogger())
	ctx := context.Background()

	if _, err := c.Fetch(ctx, Query{}, nil); err == nil {
		t.Error("expected error for empty rule")
	}
	now := time.Now()
	if _, err := c.Fetch(ctx, Query{Rule: "x", Start: now, End: now.Add(-time.Hour)}, nil); err == nil {
		t.Error("expected error for inverted range")
	}
}
