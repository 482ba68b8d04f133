package repair

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"fixunreads/internal/database"
)

// Test helpers

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "zulip.db"))
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

type fixture struct {
	t     *testing.T
	ctx   context.Context
	db    *database.DB
	realm *database.Realm
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	ctx := context.Background()

	realm, err := db.CreateRealm(ctx, "zulip")
	if err != nil {
		t.Fatalf("Failed to create realm: %v", err)
	}

	return &fixture{t: t, ctx: ctx, db: db, realm: realm}
}

func (f *fixture) user(email string, pointer int64, mutedTopics string) *database.User {
	f.t.Helper()

	user := &database.User{
		Email:       email,
		RealmID:     f.realm.ID,
		Pointer:     pointer,
		MutedTopics: mutedTopics,
	}
	if err := f.db.CreateUser(f.ctx, user); err != nil {
		f.t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func (f *fixture) stream(name string) *database.Stream {
	f.t.Helper()

	stream, err := f.db.CreateStream(f.ctx, f.realm.ID, name)
	if err != nil {
		f.t.Fatalf("Failed to create stream: %v", err)
	}
	return stream
}

func (f *fixture) subscribe(user *database.User, recipientID int64, active, inHomeView bool) {
	f.t.Helper()

	if err := f.db.Subscribe(f.ctx, user.ID, recipientID, active, inHomeView); err != nil {
		f.t.Fatalf("Failed to subscribe: %v", err)
	}
}

// deliver sends a message to recipientID and delivers it to user with flags.
// It returns the message id and the delivery id.
func (f *fixture) deliver(user *database.User, recipientID int64, topic string, flags int64) (int64, int64) {
	f.t.Helper()

	messageID, err := f.db.SendMessage(f.ctx, recipientID, topic)
	if err != nil {
		f.t.Fatalf("Failed to send message: %v", err)
	}
	umID, err := f.db.Deliver(f.ctx, user.ID, messageID, flags)
	if err != nil {
		f.t.Fatalf("Failed to deliver message: %v", err)
	}
	return messageID, umID
}

func (f *fixture) flags(umID int64) int64 {
	f.t.Helper()

	flags, err := f.db.GetUserMessageFlags(f.ctx, umID)
	if err != nil {
		f.t.Fatalf("Failed to read flags: %v", err)
	}
	return flags
}

func (f *fixture) assertFlags(umIDs []int64, expected int64) {
	f.t.Helper()

	for _, id := range umIDs {
		if got := f.flags(id); got != expected {
			f.t.Errorf("user message %d: expected flags %d, got %d", id, expected, got)
		}
	}
}

var errInjected = errors.New("injected store failure")

// faultyStore wraps a real store and fails the nth MarkRead call.
type faultyStore struct {
	db             *database.DB
	failOnMarkRead int
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(database.Queries) error, opts ...database.TxOption) error {
	return s.db.WithTx(ctx, func(q database.Queries) error {
		return fn(&faultyQueries{Queries: q, failOnMarkRead: s.failOnMarkRead})
	}, opts...)
}

type faultyQueries struct {
	database.Queries
	failOnMarkRead int
	markReadCalls  int
}

func (q *faultyQueries) MarkRead(ctx context.Context, ids []int64) (int64, error) {
	q.markReadCalls++
	if q.markReadCalls == q.failOnMarkRead {
		return 0, errInjected
	}
	return q.Queries.MarkRead(ctx, ids)
}

// recordingStore records which queries a repair issued.
type recordingStore struct {
	db    *database.DB
	mu    sync.Mutex
	calls []string
}

func (s *recordingStore) WithTx(ctx context.Context, fn func(database.Queries) error, opts ...database.TxOption) error {
	return s.db.WithTx(ctx, func(q database.Queries) error {
		return fn(&recordingQueries{Queries: q, store: s})
	}, opts...)
}

func (s *recordingStore) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
}

func (s *recordingStore) called(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == name {
			return true
		}
	}
	return false
}

type recordingQueries struct {
	database.Queries
	store *recordingStore
}

func (q *recordingQueries) InactiveStreamRecipients(ctx context.Context, userID int64) ([]int64, error) {
	q.store.record("InactiveStreamRecipients")
	return q.Queries.InactiveStreamRecipients(ctx, userID)
}

func (q *recordingQueries) HomeViewStreamRecipients(ctx context.Context, userID int64) ([]int64, error) {
	q.store.record("HomeViewStreamRecipients")
	return q.Queries.HomeViewStreamRecipients(ctx, userID)
}

func (q *recordingQueries) UnreadForRecipients(ctx context.Context, userID int64, recipientIDs []int64) ([]int64, error) {
	q.store.record("UnreadForRecipients")
	return q.Queries.UnreadForRecipients(ctx, userID, recipientIDs)
}

func (q *recordingQueries) UnreadBeforePointer(ctx context.Context, userID, pointer int64, recipientIDs []int64) ([]database.PointerCandidate, error) {
	q.store.record("UnreadBeforePointer")
	return q.Queries.UnreadBeforePointer(ctx, userID, pointer, recipientIDs)
}

func (q *recordingQueries) RealmStreams(ctx context.Context, realmID int64) ([]database.Stream, error) {
	q.store.record("RealmStreams")
	return q.Queries.RealmStreams(ctx, realmID)
}

func (q *recordingQueries) MarkRead(ctx context.Context, ids []int64) (int64, error) {
	q.store.record("MarkRead")
	return q.Queries.MarkRead(ctx, ids)
}
