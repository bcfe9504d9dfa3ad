package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/metrics"
	"github.com/fystack/chainsync/pkg/retry"
)

const (
	webhookAttempts = 3
	webhookInterval = time.Second
)

// SlackNotifier posts notifications to one incoming webhook per level.
// Delivery is retried a few times, then logged and dropped.
type SlackNotifier struct {
	in       <-chan fanout.Message
	hooks    map[types.NotifyLevel]string
	client   *http.Client
	attempts int
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSlackNotifier(in <-chan fanout.Message, cfg config.SlackConfig, m *metrics.Metrics) *SlackNotifier {
	return &SlackNotifier{
		in: in,
		hooks: map[types.NotifyLevel]string{
			types.LevelInfo:  cfg.InfoWebhook,
			types.LevelWarn:  cfg.WarnWebhook,
			types.LevelError: cfg.ErrorWebhook,
		},
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: webhookAttempts,
		interval: webhookInterval,
		metrics:  m,
		logger:   logger.With("sink", constant.SinkSlack),
	}
}

func (n *SlackNotifier) Name() string { return constant.SinkSlack }

func (n *SlackNotifier) Run(ctx context.Context) error {
	return drain(ctx, n.Name(), n.in, n.handle)
}

func (n *SlackNotifier) handle(ctx context.Context, msg fanout.Message) {
	m, ok := msg.(types.NotifyMessage)
	if !ok {
		n.logger.Error("Unexpected message type", "type", fmt.Sprintf("%T", msg))
		return
	}
	if err := n.Notify(ctx, m); err != nil {
		n.metrics.SinkWrite(n.Name(), string(m.Level), "error")
		n.logger.Error("This error will be ignored", "error", err, "level", m.Level, "message", m.Message)
		return
	}
	n.metrics.SinkWrite(n.Name(), string(m.Level), "ok")
}

func (n *SlackNotifier) Notify(ctx context.Context, m types.NotifyMessage) error {
	hook := n.hooks[m.Level]
	if hook == "" {
		return fmt.Errorf("no webhook for level %q", m.Level)
	}
	body, err := json.Marshal(map[string]string{"text": m.Message})
	if err != nil {
		return err
	}
	return retry.Constant(ctx, func() error {
		return n.post(ctx, hook, body)
	}, n.interval, n.attempts)
}

func (n *SlackNotifier) post(ctx context.Context, hook string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notifications to the process log. It stands in for
// Slack when no webhooks are configured.
type LogNotifier struct {
	in     <-chan fanout.Message
	logger *slog.Logger
}

func NewLogNotifier(in <-chan fanout.Message) *LogNotifier {
	return &LogNotifier{in: in, logger: logger.With("sink", constant.SinkSlack, "notifier", "log")}
}

func (n *LogNotifier) Name() string { return constant.SinkSlack }

func (n *LogNotifier) Run(ctx context.Context) error {
	return drain(ctx, n.Name(), n.in, func(ctx context.Context, msg fanout.Message) {
		m, ok := msg.(types.NotifyMessage)
		if !ok {
			n.logger.Error("Unexpected message type", "type", fmt.Sprintf("%T", msg))
			return
		}
		n.logger.Log(ctx, notifyLevel(m.Level), m.Message)
	})
}

func notifyLevel(l types.NotifyLevel) slog.Level {
	switch l {
	case types.LevelError:
		return slog.LevelError
	case types.LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
