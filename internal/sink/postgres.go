package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/metrics"
	"github.com/fystack/chainsync/pkg/retry"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Inserter writes one row, skipping rows that collide with an existing key.
type Inserter interface {
	Insert(ctx context.Context, table string, row map[string]any) error
}

type gormInserter struct {
	db *gorm.DB
}

func NewGormInserter(db *gorm.DB) Inserter {
	return &gormInserter{db: db}
}

func (g *gormInserter) Insert(ctx context.Context, table string, row map[string]any) error {
	return insertStatement(g.db.WithContext(ctx), table, row).Error
}

func insertStatement(db *gorm.DB, table string, row map[string]any) *gorm.DB {
	return db.Table(table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
}

type PostgresSink struct {
	in       <-chan fanout.Message
	schema   Schema
	inserter Inserter
	notify   fanout.Sender
	metrics  *metrics.Metrics
	retry    retry.ExponentialConfig
	logger   *slog.Logger
}

func NewPostgresSink(in <-chan fanout.Message, schema Schema, inserter Inserter, notify fanout.Sender, m *metrics.Metrics) *PostgresSink {
	l := logger.With("sink", constant.SinkPostgres)
	return &PostgresSink{
		in:       in,
		schema:   schema,
		inserter: inserter,
		notify:   notify,
		metrics:  m,
		retry: retry.ExponentialConfig{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			MaxElapsedTime:  30 * time.Second,
			OnRetry: func(err error, next time.Duration) {
				l.Warn("Insert failed, retrying", "error", err, "next", next)
			},
		},
		logger: l,
	}
}

func (s *PostgresSink) Name() string { return constant.SinkPostgres }

func (s *PostgresSink) Run(ctx context.Context) error {
	s.logger.Info("Postgres sink started", "tables", len(s.schema))
	return drain(ctx, s.Name(), s.in, s.handle)
}

func (s *PostgresSink) handle(ctx context.Context, msg fanout.Message) {
	m, ok := msg.(types.SinkMessage)
	if !ok {
		s.logger.Error("Unexpected message type", "type", fmt.Sprintf("%T", msg))
		return
	}
	if err := s.Write(ctx, m); err != nil {
		s.metrics.SinkWrite(s.Name(), m.Table, "error")
		s.logger.Error("Failed to store record", "table", m.Table, "error", err)
		notice := types.NotifyMessage{
			Level:   types.LevelWarn,
			Message: fmt.Sprintf("postgres insert failed; table: %s, error: %s", m.Table, err),
		}
		if nerr := s.notify.Send(ctx, notice); nerr != nil {
			s.metrics.ChannelDrop(s.notify.Name())
			s.logger.Warn("Failed to queue notification", "channel", s.notify.Name(), "error", nerr)
		}
		return
	}
	s.metrics.SinkWrite(s.Name(), m.Table, "ok")
}

// Write stores one record. Transient database errors are retried.
func (s *PostgresSink) Write(ctx context.Context, m types.SinkMessage) error {
	table, ok := s.schema[m.Table]
	if !ok {
		return types.Errorf(types.KindInvalid, "unknown table %q", m.Table)
	}
	row, err := table.Row(m.Payload)
	if err != nil {
		return err
	}

	return retry.Exponential(ctx, func() error {
		err := s.inserter.Insert(ctx, table.Name, row)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return retry.Permanent(types.Wrap(types.KindStorage, err))
		}
		return types.Wrap(types.KindStorage, err)
	}, s.retry)
}

// isTransient reports whether a database error may succeed on retry.
// Integrity, data and syntax classes never do.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return false
		}
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
