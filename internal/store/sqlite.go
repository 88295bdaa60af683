// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists channels, boards, threads and their messages with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/cool-squad/internal/conversation"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS channel_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			channel    TEXT NOT NULL,
			author     TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_channel_messages_channel
			ON channel_messages(channel, seq);

		CREATE TABLE IF NOT EXISTS channel_bots (
			channel TEXT NOT NULL,
			bot     TEXT NOT NULL,
			PRIMARY KEY (channel, bot)
		);

		CREATE TABLE IF NOT EXISTS boards (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS threads (
			id         TEXT PRIMARY KEY,
			board_id   TEXT NOT NULL REFERENCES boards(id),
			title      TEXT NOT NULL,
			author     TEXT NOT NULL,
			created_at TEXT NOT NULL,
			pinned     INTEGER NOT NULL DEFAULT 0,
			tags_json  TEXT NOT NULL DEFAULT '[]'
		);

		CREATE INDEX IF NOT EXISTS idx_threads_board ON threads(board_id);

		CREATE TABLE IF NOT EXISTS thread_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			thread_id  TEXT NOT NULL REFERENCES threads(id),
			author     TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_thread_messages_thread
			ON thread_messages(thread_id, seq);

		CREATE TABLE IF NOT EXISTS token_usage (
			id            TEXT PRIMARY KEY,
			bot           TEXT NOT NULL,
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_token_usage_provider
			ON token_usage(provider, model, created_at);

		CREATE TABLE IF NOT EXISTS budget_limits (
			provider TEXT NOT NULL,
			model    TEXT NOT NULL DEFAULT '',
			daily    INTEGER NOT NULL DEFAULT 0,
			monthly  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (provider, model)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveChannelMessage appends a message to a channel.
func (s *SQLiteStore) SaveChannelMessage(ctx context.Context, channel string, msg conversation.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_messages (id, channel, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, channel, msg.Author, msg.Content, msg.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting channel message: %w", err)
	}
	s.logger.Debug("saved channel message", "channel", channel, "id", msg.ID)
	return nil
}

// SaveChannelBots replaces a channel's bot membership.
func (s *SQLiteStore) SaveChannelBots(ctx context.Context, channel string, bots []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_bots WHERE channel = ?`, channel); err != nil {
		return fmt.Errorf("clearing channel bots: %w", err)
	}
	for _, b := range bots {
		if _, err := tx.ExecContext(ctx, `INSERT INTO channel_bots (channel, bot) VALUES (?, ?)`, channel, b); err != nil {
			return fmt.Errorf("inserting channel bot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing channel bots: %w", err)
	}
	return nil
}

// SaveBoard inserts or updates a board.
func (s *SQLiteStore) SaveBoard(ctx context.Context, board conversation.Board) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boards (id, name, description, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description
	`, board.ID, board.Name, board.Description, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving board: %w", err)
	}
	return nil
}

// SaveThread inserts or updates a thread's metadata. Messages are saved
// separately with SaveThreadMessage.
func (s *SQLiteStore) SaveThread(ctx context.Context, thread conversation.Thread) error {
	tags := thread.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threads (id, board_id, title, author, created_at, pinned, tags_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			pinned = excluded.pinned,
			tags_json = excluded.tags_json
	`, thread.ID, thread.BoardID, thread.Title, thread.Author,
		thread.CreatedAt.UTC().Format(timeLayout), boolToInt(thread.Pinned), string(tagsJSON))
	if err != nil {
		return fmt.Errorf("saving thread: %w", err)
	}
	return nil
}

// SaveThreadMessage appends a message to a thread.
func (s *SQLiteStore) SaveThreadMessage(ctx context.Context, boardID, threadID string, msg conversation.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thread_messages (id, thread_id, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, threadID, msg.Author, msg.Content, msg.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting thread message: %w", err)
	}
	s.logger.Debug("saved thread message", "board", boardID, "thread", threadID, "id", msg.ID)
	return nil
}

// LoadSnapshot reads all persisted conversation state.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (conversation.Snapshot, error) {
	var snap conversation.Snapshot

	channels := make(map[string]*conversation.Channel)
	var order []string
	channel := func(name string) *conversation.Channel {
		ch, ok := channels[name]
		if !ok {
			ch = &conversation.Channel{Name: name}
			channels[name] = ch
			order = append(order, name)
		}
		return ch
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT channel, id, author, content, created_at
		FROM channel_messages
		ORDER BY seq ASC
	`)
	if err != nil {
		return snap, fmt.Errorf("querying channel messages: %w", err)
	}
	err = scanEach(rows, func() error {
		var name string
		msg, err := scanMessage(rows, &name)
		if err != nil {
			return err
		}
		ch := channel(name)
		ch.Messages = append(ch.Messages, msg)
		return nil
	})
	if err != nil {
		return snap, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT channel, bot FROM channel_bots ORDER BY channel, bot`)
	if err != nil {
		return snap, fmt.Errorf("querying channel bots: %w", err)
	}
	err = scanEach(rows, func() error {
		var name, b string
		if err := rows.Scan(&name, &b); err != nil {
			return fmt.Errorf("scanning channel bot: %w", err)
		}
		ch := channel(name)
		ch.Bots = append(ch.Bots, b)
		return nil
	})
	if err != nil {
		return snap, err
	}

	for _, name := range order {
		snap.Channels = append(snap.Channels, *channels[name])
	}

	boards, err := s.loadBoards(ctx)
	if err != nil {
		return snap, err
	}
	snap.Boards = boards

	s.logger.Info("loaded conversation snapshot", "channels", len(snap.Channels), "boards", len(snap.Boards))
	return snap, nil
}

func (s *SQLiteStore) loadBoards(ctx context.Context) ([]conversation.BoardSnapshot, error) {
	var boards []conversation.BoardSnapshot
	index := make(map[string]int)

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM boards ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying boards: %w", err)
	}
	err = scanEach(rows, func() error {
		var b conversation.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.Description); err != nil {
			return fmt.Errorf("scanning board: %w", err)
		}
		index[b.ID] = len(boards)
		boards = append(boards, conversation.BoardSnapshot{Board: b})
		return nil
	})
	if err != nil {
		return nil, err
	}

	threads := make(map[string]*conversation.Thread)
	var threadOrder []string
	rows, err = s.db.QueryContext(ctx, `
		SELECT id, board_id, title, author, created_at, pinned, tags_json
		FROM threads
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying threads: %w", err)
	}
	err = scanEach(rows, func() error {
		var (
			t         conversation.Thread
			createdAt string
			pinned    int
			tagsJSON  string
		)
		if err := rows.Scan(&t.ID, &t.BoardID, &t.Title, &t.Author, &createdAt, &pinned, &tagsJSON); err != nil {
			return fmt.Errorf("scanning thread: %w", err)
		}
		var err error
		if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return fmt.Errorf("parsing created_at: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
			return fmt.Errorf("decoding tags: %w", err)
		}
		t.Pinned = pinned != 0
		threads[t.ID] = &t
		threadOrder = append(threadOrder, t.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT thread_id, id, author, content, created_at
		FROM thread_messages
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying thread messages: %w", err)
	}
	err = scanEach(rows, func() error {
		var threadID string
		msg, err := scanMessage(rows, &threadID)
		if err != nil {
			return err
		}
		if t, ok := threads[threadID]; ok {
			t.Messages = append(t.Messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range threadOrder {
		t := threads[id]
		i, ok := index[t.BoardID]
		if !ok {
			s.logger.Warn("thread references missing board", "thread", t.ID, "board", t.BoardID)
			continue
		}
		boards[i].Threads = append(boards[i].Threads, *t)
	}
	return boards, nil
}

// scanEach runs fn for every row and closes rows.
func scanEach(rows *sql.Rows, fn func() error) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rows: %w", err)
	}
	return nil
}

// scanMessage scans (owner, id, author, content, created_at).
func scanMessage(rows *sql.Rows, owner *string) (conversation.Message, error) {
	var (
		msg       conversation.Message
		createdAt string
	)
	if err := rows.Scan(owner, &msg.ID, &msg.Author, &msg.Content, &createdAt); err != nil {
		return msg, fmt.Errorf("scanning message: %w", err)
	}
	ts, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return msg, fmt.Errorf("parsing created_at: %w", err)
	}
	msg.Timestamp = ts
	return msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
