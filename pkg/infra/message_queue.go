package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DefaultStreamName = "CHAINSYNC"
	streamMaxAge      = 2 * 24 * time.Hour
)

// EventPublisher publishes synchronized records to a JetStream stream.
type EventPublisher interface {
	// Publish sends data on subject. A non-empty msgID is used for
	// JetStream de-duplication.
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

type jetStreamPublisher struct {
	stream string
	js     jetstream.JetStream
}

// NewJetStreamPublisher makes sure the stream exists and captures
// subjects under prefix.
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, stream, prefix string) (EventPublisher, error) {
	if stream == "" {
		stream = DefaultStreamName
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if s, err := js.Stream(ctx, stream); err == nil {
		if info, err := s.Info(ctx); err == nil {
			logger.Info("Stream found", "name", info.Config.Name, "subjects", info.Config.Subjects, "msgs", info.State.Msgs)
		}
	} else {
		logger.Warn("Stream not found, creating new stream", "stream", stream)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        stream,
		Description: "Synchronized chain records",
		Subjects:    []string{prefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      streamMaxAge,
		Duplicates:  10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", stream, err)
	}
	return &jetStreamPublisher{stream: stream, js: js}, nil
}

func (p *jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	header := nats.Header{}
	if msgID != "" {
		header.Set(nats.MsgIdHdr, msgID)
	}
	_, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
