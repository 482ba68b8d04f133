package database

import (
	"context"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open("sqlite3", filepath.Join(t.TempDir(), "zulip.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.CreateTables(); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func createTestRealm(t *testing.T, db *DB, stringID string) *Realm {
	t.Helper()

	realm, err := db.CreateRealm(context.Background(), stringID)
	if err != nil {
		t.Fatalf("Failed to create realm: %v", err)
	}
	return realm
}

func createTestUser(t *testing.T, db *DB, realmID int64, email string) *User {
	t.Helper()

	user := &User{Email: email, RealmID: realmID}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func createTestStream(t *testing.T, db *DB, realmID int64, name string) *Stream {
	t.Helper()

	stream, err := db.CreateStream(context.Background(), realmID, name)
	if err != nil {
		t.Fatalf("Failed to create stream: %v", err)
	}
	return stream
}

// deliverTestMessage sends a message to recipientID and returns the user's delivery id.
func deliverTestMessage(t *testing.T, db *DB, userID, recipientID int64, subject string, flags int64) (messageID, umID int64) {
	t.Helper()

	ctx := context.Background()
	messageID, err := db.SendMessage(ctx, recipientID, subject)
	if err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	umID, err = db.Deliver(ctx, userID, messageID, flags)
	if err != nil {
		t.Fatalf("Failed to deliver message: %v", err)
	}
	return messageID, umID
}
