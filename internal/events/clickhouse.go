package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

type ClickHouseOptions struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

const createTable = `
	CREATE TABLE IF NOT EXISTS engagement_events (
		event_id   String,
		product_id String,
		kind       LowCardinality(String),
		counter    LowCardinality(String),
		delta      Float64,
		timestamp  DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (product_id, timestamp)
`

const insertEvents = `
	INSERT INTO engagement_events (
		event_id, product_id, kind, counter, delta, timestamp
	) VALUES (?, ?, ?, ?, ?, ?)
`

// ClickHouseSink batch-inserts engagement events over the native protocol.
type ClickHouseSink struct {
	conn driver.Conn
}

func NewClickHouseSink(ctx context.Context, opts ClickHouseOptions) (*ClickHouseSink, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("clickhouse host is not set")
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", opts.Host, opts.Port)},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "hairtype-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if err := conn.Exec(ctx, createTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create engagement_events table: %w", err)
	}
	return &ClickHouseSink{conn: conn}, nil
}

func (s *ClickHouseSink) Record(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, insertEvents)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	for _, e := range events {
		if err := batch.Append(e.EventID, e.ProductID, e.Kind, e.Counter, e.Delta, e.Timestamp); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append event %s: %w", e.EventID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
