package database

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Recipient types, as stored in zerver_recipient.type.
const (
	RecipientPersonal = 1
	RecipientStream   = 2
	RecipientHuddle   = 3
)

// FlagRead is bit 0 of zerver_usermessage.flags. Every other bit is opaque.
const FlagRead int64 = 1

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrMultipleFound is returned when a lookup expected to be unique matches several rows.
	ErrMultipleFound = errors.New("multiple rows found")
)

type DB struct {
	*sql.DB
	dialect dialect
}

type Realm struct {
	ID       int64  `json:"id"`
	StringID string `json:"string_id"`
}

type User struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	RealmID     int64  `json:"realm_id"`
	Pointer     int64  `json:"pointer"`      // last-read message id, <= 0 when unset
	MutedTopics string `json:"muted_topics"` // JSON list of [stream, topic] pairs
}

// HasPointer reports whether the user's reading-position marker is set.
func (u *User) HasPointer() bool {
	return u.Pointer > 0
}

type Stream struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RealmID     int64  `json:"realm_id"`
	RecipientID int64  `json:"recipient_id"`
}

// PointerCandidate is an unread delivery at or before the user's pointer.
type PointerCandidate struct {
	UserMessageID int64
	StreamID      int64
	Topic         string
}

// Open connects to the message store. driverName is "sqlite3" or "pgx".
func Open(driverName, dsn string) (*DB, error) {
	d, ok := dialectFor(driverName)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	return &DB{DB: db, dialect: d}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Driver returns the driver name the store was opened with.
func (db *DB) Driver() string {
	return db.dialect.name
}

// CreateTables creates the subset of the Zulip schema the repair reads.
// Only used for SQLite stores; the Postgres schema belongs to the server.
func (db *DB) CreateTables() error {
	if db.dialect.isPostgres() {
		return fmt.Errorf("refusing to create tables in a Postgres store")
	}

	realmTable := `
	CREATE TABLE IF NOT EXISTS zerver_realm (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		string_id TEXT UNIQUE NOT NULL
	);`

	userTable := `
	CREATE TABLE IF NOT EXISTS zerver_userprofile (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		realm_id INTEGER NOT NULL,
		pointer INTEGER NOT NULL DEFAULT -1,
		muted_topics TEXT NOT NULL DEFAULT '[]',
		UNIQUE (realm_id, email),
		FOREIGN KEY (realm_id) REFERENCES zerver_realm (id) ON DELETE CASCADE
	);`

	streamTable := `
	CREATE TABLE IF NOT EXISTS zerver_stream (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		realm_id INTEGER NOT NULL,
		UNIQUE (realm_id, name),
		FOREIGN KEY (realm_id) REFERENCES zerver_realm (id) ON DELETE CASCADE
	);`

	recipientTable := `
	CREATE TABLE IF NOT EXISTS zerver_recipient (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type INTEGER NOT NULL,
		type_id INTEGER NOT NULL,
		UNIQUE (type, type_id)
	);`

	subscriptionTable := `
	CREATE TABLE IF NOT EXISTS zerver_subscription (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_profile_id INTEGER NOT NULL,
		recipient_id INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		in_home_view BOOLEAN DEFAULT 1,
		UNIQUE (user_profile_id, recipient_id),
		FOREIGN KEY (user_profile_id) REFERENCES zerver_userprofile (id) ON DELETE CASCADE,
		FOREIGN KEY (recipient_id) REFERENCES zerver_recipient (id) ON DELETE CASCADE
	);`

	messageTable := `
	CREATE TABLE IF NOT EXISTS zerver_message (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient_id INTEGER NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (recipient_id) REFERENCES zerver_recipient (id) ON DELETE CASCADE
	);`

	userMessageTable := `
	CREATE TABLE IF NOT EXISTS zerver_usermessage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_profile_id INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		flags INTEGER NOT NULL DEFAULT 0,
		UNIQUE (user_profile_id, message_id),
		FOREIGN KEY (user_profile_id) REFERENCES zerver_userprofile (id) ON DELETE CASCADE,
		FOREIGN KEY (message_id) REFERENCES zerver_message (id) ON DELETE CASCADE
	);`

	tables := []string{realmTable, userTable, streamTable, recipientTable,
		subscriptionTable, messageTable, userMessageTable}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return errors.Wrap(err, "create table")
		}
	}

	return db.createIndexes()
}

func (db *DB) createIndexes() error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_usermessage_user_message ON zerver_usermessage (user_profile_id, message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_recipient ON zerver_message (recipient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscription_user ON zerver_subscription (user_profile_id)`,
		`CREATE INDEX IF NOT EXISTS idx_stream_realm ON zerver_stream (realm_id)`,
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
