package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectRunCompleted carries a RunCompleted event when an evaluation finishes.
	SubjectRunCompleted = "lblr.run.completed"
	// SubjectLabelsFlushed carries a LabelsFlushed event per labeled stage.
	SubjectLabelsFlushed = "lblr.labels.flushed"
)

// RunCompleted summarizes a finished evaluation run.
type RunCompleted struct {
	RunID      string             `json:"run_id"`
	Name       string             `json:"name"`
	Rule       string             `json:"rule"`
	Status     string             `json:"status"`
	Metrics    map[string]float64 `json:"metrics"`
	Records    int                `json:"records"`
	FinishedAt time.Time          `json:"finished_at"`
}

// LabelsFlushed reports the labels an operator committed for one stage.
type LabelsFlushed struct {
	RunID    string `json:"run_id"`
	Stage    string `json:"stage"`
	Labeled  int    `json:"labeled"`
	Complete bool   `json:"complete"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("lblr"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

// Flush waits until published messages have reached the server. Contexts
// without a deadline get a five second one.
func (c *Client) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return c.conn.FlushWithContext(ctx)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
