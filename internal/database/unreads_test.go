package database

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type unreadsFixture struct {
	db      *DB
	user    *User
	other   *User
	general *Stream
	archive *Stream
	muted   *Stream
}

func newUnreadsFixture(t *testing.T) *unreadsFixture {
	t.Helper()

	db := setupTestDB(t)
	ctx := context.Background()
	realm := createTestRealm(t, db, "zulip")

	f := &unreadsFixture{
		db:      db,
		user:    createTestUser(t, db, realm.ID, "iago@zulip.com"),
		other:   createTestUser(t, db, realm.ID, "hamlet@zulip.com"),
		general: createTestStream(t, db, realm.ID, "general"),
		archive: createTestStream(t, db, realm.ID, "archive"),
		muted:   createTestStream(t, db, realm.ID, "noise"),
	}

	subs := []struct {
		recipientID        int64
		active, inHomeView bool
	}{
		{f.general.RecipientID, true, true},
		{f.archive.RecipientID, false, true},
		{f.muted.RecipientID, true, false},
	}
	for _, s := range subs {
		if err := db.Subscribe(ctx, f.user.ID, s.recipientID, s.active, s.inHomeView); err != nil {
			t.Fatalf("Failed to subscribe: %v", err)
		}
	}

	// A personal recipient is never a stream recipient, even when inactive.
	personal, err := db.CreateRecipient(ctx, RecipientPersonal, f.other.ID)
	if err != nil {
		t.Fatalf("Failed to create recipient: %v", err)
	}
	if err := db.Subscribe(ctx, f.user.ID, personal, false, true); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	return f
}

func (f *unreadsFixture) tx(t *testing.T, fn func(q Queries)) {
	t.Helper()

	err := f.db.WithTx(context.Background(), func(q Queries) error {
		fn(q)
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSubscriptionQueries(t *testing.T) {
	f := newUnreadsFixture(t)
	ctx := context.Background()

	f.tx(t, func(q Queries) {
		inactive, err := q.InactiveStreamRecipients(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("InactiveStreamRecipients failed: %v", err)
		}
		if !equalIDs(inactive, []int64{f.archive.RecipientID}) {
			t.Errorf("Expected inactive [%d], got %v", f.archive.RecipientID, inactive)
		}

		home, err := q.HomeViewStreamRecipients(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("HomeViewStreamRecipients failed: %v", err)
		}
		if !equalIDs(home, []int64{f.general.RecipientID}) {
			t.Errorf("Expected home view [%d], got %v", f.general.RecipientID, home)
		}

		none, err := q.InactiveStreamRecipients(ctx, f.other.ID)
		if err != nil {
			t.Fatalf("InactiveStreamRecipients failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("Expected no recipients for unsubscribed user, got %v", none)
		}
	})
}

func TestUnreadForRecipients(t *testing.T) {
	f := newUnreadsFixture(t)
	ctx := context.Background()

	_, unread := deliverTestMessage(t, f.db, f.user.ID, f.archive.RecipientID, "old", 0)
	_, read := deliverTestMessage(t, f.db, f.user.ID, f.archive.RecipientID, "old", FlagRead)
	_, starred := deliverTestMessage(t, f.db, f.user.ID, f.archive.RecipientID, "old", 2)
	deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "new", 0)
	deliverTestMessage(t, f.db, f.other.ID, f.archive.RecipientID, "old", 0)

	f.tx(t, func(q Queries) {
		ids, err := q.UnreadForRecipients(ctx, f.user.ID, []int64{f.archive.RecipientID})
		if err != nil {
			t.Fatalf("UnreadForRecipients failed: %v", err)
		}
		if !equalIDs(ids, []int64{unread, starred}) {
			t.Errorf("Expected [%d %d], got %v (read delivery %d)", unread, starred, ids, read)
		}

		ids, err = q.UnreadForRecipients(ctx, f.user.ID, nil)
		if err != nil {
			t.Fatalf("UnreadForRecipients with no recipients failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("Expected nothing for an empty recipient list, got %v", ids)
		}
	})
}

func TestUnreadBeforePointer(t *testing.T) {
	f := newUnreadsFixture(t)
	ctx := context.Background()

	_, before := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "lunch", 0)
	deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "lunch", FlagRead)
	pointer, at := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "standup", 0)
	deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "after", 0)

	f.tx(t, func(q Queries) {
		candidates, err := q.UnreadBeforePointer(ctx, f.user.ID, pointer, []int64{f.general.RecipientID})
		if err != nil {
			t.Fatalf("UnreadBeforePointer failed: %v", err)
		}
		if len(candidates) != 2 {
			t.Fatalf("Expected 2 candidates, got %d", len(candidates))
		}

		expected := []PointerCandidate{
			{UserMessageID: before, StreamID: f.general.ID, Topic: "lunch"},
			{UserMessageID: at, StreamID: f.general.ID, Topic: "standup"},
		}
		for i := range expected {
			if candidates[i] != expected[i] {
				t.Errorf("Candidate %d: expected %+v, got %+v", i, expected[i], candidates[i])
			}
		}
	})
}

func TestRealmStreams(t *testing.T) {
	f := newUnreadsFixture(t)
	ctx := context.Background()

	lear := createTestRealm(t, f.db, "lear")
	createTestStream(t, f.db, lear.ID, "general")

	f.tx(t, func(q Queries) {
		streams, err := q.RealmStreams(ctx, f.user.RealmID)
		if err != nil {
			t.Fatalf("RealmStreams failed: %v", err)
		}
		if len(streams) != 3 {
			t.Fatalf("Expected 3 streams, got %d", len(streams))
		}
		if streams[0] != *f.general {
			t.Errorf("Expected %+v, got %+v", *f.general, streams[0])
		}
	})
}

func TestMarkRead(t *testing.T) {
	f := newUnreadsFixture(t)
	ctx := context.Background()

	_, plain := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "a", 0)
	_, starred := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "b", 2)
	_, untouched := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "c", 0)

	f.tx(t, func(q Queries) {
		affected, err := q.MarkRead(ctx, []int64{plain, starred})
		if err != nil {
			t.Fatalf("MarkRead failed: %v", err)
		}
		if affected != 2 {
			t.Errorf("Expected 2 rows affected, got %d", affected)
		}

		affected, err = q.MarkRead(ctx, nil)
		if err != nil || affected != 0 {
			t.Errorf("Expected empty MarkRead to be a no-op, got %d, %v", affected, err)
		}
	})

	expected := map[int64]int64{plain: FlagRead, starred: 2 | FlagRead, untouched: 0}
	for id, want := range expected {
		got, err := f.db.GetUserMessageFlags(ctx, id)
		if err != nil {
			t.Fatalf("Failed to read flags: %v", err)
		}
		if got != want {
			t.Errorf("user message %d: expected flags %d, got %d", id, want, got)
		}
	}
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	markAndReturn := func(t *testing.T, f *unreadsFixture, umID int64, result error) error {
		t.Helper()
		return f.db.WithTx(ctx, func(q Queries) error {
			if _, err := q.MarkRead(ctx, []int64{umID}); err != nil {
				t.Fatalf("MarkRead failed: %v", err)
			}
			return result
		})
	}

	t.Run("commits on success", func(t *testing.T) {
		f := newUnreadsFixture(t)
		_, umID := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "a", 0)

		if err := markAndReturn(t, f, umID, nil); err != nil {
			t.Fatalf("Expected commit, got %v", err)
		}
		if flags, _ := f.db.GetUserMessageFlags(ctx, umID); flags != FlagRead {
			t.Errorf("Expected committed read flag, got %d", flags)
		}
	})

	t.Run("rolls back on error", func(t *testing.T) {
		f := newUnreadsFixture(t)
		_, umID := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "a", 0)
		boom := errors.New("boom")

		if err := markAndReturn(t, f, umID, boom); !errors.Is(err, boom) {
			t.Fatalf("Expected boom, got %v", err)
		}
		if flags, _ := f.db.GetUserMessageFlags(ctx, umID); flags != 0 {
			t.Errorf("Expected rolled back flags 0, got %d", flags)
		}
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		f := newUnreadsFixture(t)
		_, umID := deliverTestMessage(t, f.db, f.user.ID, f.general.RecipientID, "a", 0)

		func() {
			defer func() {
				if recover() == nil {
					t.Error("Expected panic to propagate")
				}
			}()
			_ = f.db.WithTx(ctx, func(q Queries) error {
				if _, err := q.MarkRead(ctx, []int64{umID}); err != nil {
					t.Fatalf("MarkRead failed: %v", err)
				}
				panic("boom")
			})
		}()

		if flags, _ := f.db.GetUserMessageFlags(ctx, umID); flags != 0 {
			t.Errorf("Expected rolled back flags 0, got %d", flags)
		}
	})
}

func TestWithPlanLogger(t *testing.T) {
	f := newUnreadsFixture(t)
	ctx := context.Background()

	var queries []string
	var plans [][]string
	err := f.db.WithTx(ctx, func(q Queries) error {
		_, err := q.HomeViewStreamRecipients(ctx, f.user.ID)
		return err
	}, WithPlanLogger(func(query string, plan []string) {
		queries = append(queries, query)
		plans = append(plans, plan)
	}))
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	if len(queries) != 1 {
		t.Fatalf("Expected 1 plan, got %d", len(queries))
	}
	if !strings.Contains(queries[0], "zerver_subscription") {
		t.Errorf("Expected plan for the subscription query, got %q", queries[0])
	}
	if len(plans[0]) == 0 {
		t.Error("Expected a non-empty plan")
	}
}
