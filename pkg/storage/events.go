// Package storage keeps the relay's optional audit trail of room lifecycle
// events in sqlite. Message content is never stored.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// EventType names a lifecycle transition
type EventType string

const (
	EventRoomCreated     EventType = "room_created"
	EventRoomClosed      EventType = "room_closed"
	EventPeerJoined      EventType = "peer_joined"
	EventPeerLeft        EventType = "peer_left"
	EventPeerReconnected EventType = "peer_reconnected"
	EventPeerKicked      EventType = "peer_kicked"
)

// Event is one audit record
type Event struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	PeerID    string    `json:"peerId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Type      EventType `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// EventLog stores events in a sqlite database
type EventLog struct {
	db        *sql.DB
	retention time.Duration
	log       *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// OpenEventLog opens (or creates) the database at path. Events older than
// retention are removed hourly; zero keeps them for 30 days.
func OpenEventLog(path string, retention time.Duration, log *zap.Logger) (*EventLog, error) {
	if retention == 0 {
		retention = 30 * 24 * time.Hour // 30 days default
	}
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	l := &EventLog{
		db:        db,
		retention: retention,
		log:       log.Named("audit"),
		stop:      make(chan struct{}),
	}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	go l.cleanupLoop()
	return l, nil
}

func (l *EventLog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		peer_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL
	);

	-- Index for fast lookup by room
	CREATE INDEX IF NOT EXISTS idx_room_events_room ON room_events(room_id, id);

	-- Index for retention cleanup
	CREATE INDEX IF NOT EXISTS idx_room_events_ts ON room_events(timestamp);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record appends an event. A zero timestamp is set to now.
func (l *EventLog) Record(ctx context.Context, e Event) error {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}
	query := `
		INSERT INTO room_events (room_id, peer_id, user_id, event_type, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := l.db.ExecContext(ctx, query, e.RoomID, e.PeerID, e.UserID, string(e.Type), e.Detail, e.Timestamp); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RoomEvents returns up to limit events of a room, oldest first
func (l *EventLog) RoomEvents(ctx context.Context, roomID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, room_id, peer_id, user_id, event_type, detail, timestamp
		FROM room_events
		WHERE room_id = ?
		ORDER BY id ASC
		LIMIT ?
	`
	rows, err := l.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.RoomID, &e.PeerID, &e.UserID, &typ, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = EventType(typ)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Cleanup removes events older than the retention window
func (l *EventLog) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-l.retention).Unix()
	result, err := l.db.ExecContext(ctx, `DELETE FROM room_events WHERE timestamp <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup events: %w", err)
	}
	return result.RowsAffected()
}

func (l *EventLog) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			count, err := l.Cleanup(context.Background())
			if err != nil {
				l.log.Warn("audit cleanup failed", zap.Error(err))
				continue
			}
			if count > 0 {
				l.log.Info("cleaned up expired events", zap.Int64("count", count))
			}
		}
	}
}

// Close stops the cleanup loop and closes the database
func (l *EventLog) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return l.db.Close()
}
