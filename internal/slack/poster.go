package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Stage is one line of a run summary.
type Stage struct {
	Name      string
	Records   int
	Labeled   int
	Precision *float64 // nil when nothing was labeled
}

// PostSummary posts a run summary and returns its message timestamp, which
// PostThread uses to attach follow-ups.
func (p *Poster) PostSummary(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	ts, err := p.post(ctx, body)
	if err != nil {
		return "", err
	}
	p.logger.Info("posted run summary to slack", "ts", ts)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = p.post(ctx, body)
	return err
}

func (p *Poster) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

// FormatRunSummary renders the per-stage results of an evaluation run.
func FormatRunSummary(name, rule string, stages []Stage) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Run:* %s\n", name)
	if rule != "" {
		fmt.Fprintf(&sb, "*Rule:* `%s`\n", rule)
	}
	sb.WriteString("\n")

	if len(stages) == 0 {
		sb.WriteString("_No stages were evaluated._")
		return sb.String()
	}
	for _, s := range stages {
		if s.Precision == nil {
			fmt.Fprintf(&sb, "• *%s*: %d records, %d labeled, precision n/a\n", s.Name, s.Records, s.Labeled)
			continue
		}
		fmt.Fprintf(&sb, "• *%s*: %d records, %d labeled, precision %.2f\n", s.Name, s.Records, s.Labeled, *s.Precision)
	}
	return sb.String()
}

// FormatClasses renders class sizes, largest first.
func FormatClasses(classes map[string]int) string {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if classes[names[i]] != classes[names[j]] {
			return classes[names[i]] > classes[names[j]]
		}
		return names[i] < names[j]
	})

	var sb strings.Builder
	sb.WriteString("*Classes:*\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "%s: %d\n", name, classes[name])
	}
	return sb.String()
}
