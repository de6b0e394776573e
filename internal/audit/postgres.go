// File: internal/audit/postgres.go
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mend-cli/api/schemas"
)

// PgxConn abstracts the pgx pool so tests can substitute a mock.
type PgxConn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	sqlCreateEventsTable = `
        CREATE TABLE IF NOT EXISTS healing_events (
            id BIGSERIAL PRIMARY KEY,
            incident_id TEXT NOT NULL,
            event_type TEXT NOT NULL,
            occurred_at TIMESTAMPTZ NOT NULL,
            severity TEXT NOT NULL,
            environment TEXT,
            error_type TEXT,
            file_path TEXT,
            line_number INT,
            fix_description TEXT,
            confidence TEXT,
            attempt_number INT,
            success BOOLEAN,
            payload JSONB NOT NULL
        );
    `
	sqlCreateEventsIndex = `
        CREATE INDEX IF NOT EXISTS healing_events_incident_idx
            ON healing_events (incident_id, occurred_at);
    `
	sqlInsertEvent = `
        INSERT INTO healing_events (
            incident_id, event_type, occurred_at, severity, environment,
            error_type, file_path, line_number, fix_description, confidence,
            attempt_number, success, payload
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
    `
)

// recordTimeout bounds a single insert so a stalled database cannot block
// the healing pipeline.
const recordTimeout = 10 * time.Second

// PostgresSink mirrors every audit event into a database table. It is a
// secondary copy: insert failures are reported to the caller, which logs
// and continues.
type PostgresSink struct {
	conn PgxConn
	log  *zap.Logger
}

// NewPostgresSink verifies connectivity and creates the events table.
func NewPostgresSink(ctx context.Context, conn PgxConn, logger *zap.Logger) (*PostgresSink, error) {
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := conn.Exec(ctx, sqlCreateEventsTable); err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	if _, err := conn.Exec(ctx, sqlCreateEventsIndex); err != nil {
		return nil, fmt.Errorf("failed to create events index: %w", err)
	}
	return &PostgresSink{
		conn: conn,
		log:  logger.Named("audit-postgres"),
	}, nil
}

// Record inserts one event. The full record rides along as JSONB so the
// table never lags the schema.
func (s *PostgresSink) Record(event schemas.HealingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	_, err = s.conn.Exec(ctx, sqlInsertEvent,
		event.IncidentID,
		string(event.Type),
		event.Timestamp,
		string(event.Severity),
		nullableString(string(event.Target)),
		nullableString(string(event.ErrorKind)),
		nullableString(event.FilePath),
		event.LineNumber,
		nullableString(event.FixDescription),
		nullableString(string(event.Confidence)),
		event.AttemptNumber,
		event.Success,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert healing event: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *PostgresSink) Close() error {
	s.conn.Close()
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
