package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

// Queries is the read and write surface a repair runs against. Every method
// executes inside the transaction opened by WithTx.
type Queries interface {
	// InactiveStreamRecipients returns stream recipients the user holds an
	// inactive subscription to.
	InactiveStreamRecipients(ctx context.Context, userID int64) ([]int64, error)

	// HomeViewStreamRecipients returns stream recipients the user is actively
	// subscribed to and has not muted at the subscription level.
	HomeViewStreamRecipients(ctx context.Context, userID int64) ([]int64, error)

	// UnreadForRecipients returns ids of the user's unread deliveries
	// addressed to any of recipientIDs.
	UnreadForRecipients(ctx context.Context, userID int64, recipientIDs []int64) ([]int64, error)

	// UnreadBeforePointer returns the user's unread deliveries with a message
	// id <= pointer addressed to any of recipientIDs.
	UnreadBeforePointer(ctx context.Context, userID, pointer int64, recipientIDs []int64) ([]PointerCandidate, error)

	// RealmStreams returns every stream of a realm.
	RealmStreams(ctx context.Context, realmID int64) ([]Stream, error)

	// MarkRead sets the read bit on the given deliveries, leaving other bits alone.
	MarkRead(ctx context.Context, userMessageIDs []int64) (int64, error)
}

// PlanFunc receives the query plan of each analysis query when explain is enabled.
type PlanFunc func(query string, plan []string)

type TxOption func(*txQueries)

// WithPlanLogger makes every SELECT inside the transaction report its plan first.
func WithPlanLogger(fn PlanFunc) TxOption {
	return func(q *txQueries) {
		q.plan = fn
	}
}

// WithTx runs fn in one transaction. The transaction commits when fn returns
// nil and rolls back when it returns an error or panics.
func (db *DB) WithTx(ctx context.Context, fn func(Queries) error, opts ...TxOption) (err error) {
	tx, err := db.BeginTx(ctx, db.dialect.txOptions())
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	q := &txQueries{tx: tx, dialect: db.dialect}
	for _, opt := range opts {
		opt(q)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "commit transaction")
	}()

	return fn(q)
}

type txQueries struct {
	tx      *sql.Tx
	dialect dialect
	plan    PlanFunc
}

func (q *txQueries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = q.dialect.rebind(query)

	if q.plan != nil {
		plan, err := q.explain(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		q.plan(query, plan)
	}

	return q.tx.QueryContext(ctx, query, args...)
}

func (q *txQueries) explain(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := q.tx.QueryContext(ctx, q.dialect.explain(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "explain query")
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "explain query")
	}

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	// Postgres returns one text column per plan line; SQLite puts the
	// readable detail in its last column.
	var plan []string
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scan query plan")
		}
		switch v := values[len(values)-1].(type) {
		case []byte:
			plan = append(plan, string(v))
		default:
			plan = append(plan, fmt.Sprint(v))
		}
	}

	return plan, errors.Wrap(rows.Err(), "explain query")
}

func (q *txQueries) scanIDs(ctx context.Context, what, query string, args ...any) ([]int64, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, what)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, what)
		}
		ids = append(ids, id)
	}

	return ids, errors.Wrap(rows.Err(), what)
}

func (q *txQueries) InactiveStreamRecipients(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT s.recipient_id
		FROM zerver_subscription s
		INNER JOIN zerver_recipient r ON r.id = s.recipient_id
		WHERE s.user_profile_id = ?
		  AND r.type = ?
		  AND NOT s.active
		ORDER BY s.recipient_id`

	return q.scanIDs(ctx, "find inactive stream recipients", query, userID, RecipientStream)
}

func (q *txQueries) HomeViewStreamRecipients(ctx context.Context, userID int64) ([]int64, error) {
	query := `
		SELECT s.recipient_id
		FROM zerver_subscription s
		INNER JOIN zerver_recipient r ON r.id = s.recipient_id
		WHERE s.user_profile_id = ?
		  AND r.type = ?
		  AND s.in_home_view
		  AND s.active
		ORDER BY s.recipient_id`

	return q.scanIDs(ctx, "find home view stream recipients", query, userID, RecipientStream)
}

func (q *txQueries) UnreadForRecipients(ctx context.Context, userID int64, recipientIDs []int64) ([]int64, error) {
	recipients, err := q.dialect.listArg(recipientIDs)
	if err != nil {
		return nil, errors.Wrap(err, "encode recipient ids")
	}

	query := `
		SELECT um.id
		FROM zerver_usermessage um
		INNER JOIN zerver_message m ON m.id = um.message_id
		WHERE um.user_profile_id = ?
		  AND (um.flags & 1) = 0
		  AND ` + q.dialect.inList("m.recipient_id") + `
		ORDER BY um.id`

	return q.scanIDs(ctx, "find unread messages for recipients", query, userID, recipients)
}

func (q *txQueries) UnreadBeforePointer(ctx context.Context, userID, pointer int64, recipientIDs []int64) ([]PointerCandidate, error) {
	recipients, err := q.dialect.listArg(recipientIDs)
	if err != nil {
		return nil, errors.Wrap(err, "encode recipient ids")
	}

	query := `
		SELECT um.id, r.type_id, m.subject
		FROM zerver_usermessage um
		INNER JOIN zerver_message m ON m.id = um.message_id
		INNER JOIN zerver_recipient r ON r.id = m.recipient_id
		WHERE um.user_profile_id = ?
		  AND m.id <= ?
		  AND (um.flags & 1) = 0
		  AND ` + q.dialect.inList("m.recipient_id") + `
		ORDER BY um.id`

	rows, err := q.query(ctx, query, userID, pointer, recipients)
	if err != nil {
		return nil, errors.Wrap(err, "find unread messages before pointer")
	}
	defer func() { _ = rows.Close() }()

	var candidates []PointerCandidate
	for rows.Next() {
		var c PointerCandidate
		if err := rows.Scan(&c.UserMessageID, &c.StreamID, &c.Topic); err != nil {
			return nil, errors.Wrap(err, "scan unread message before pointer")
		}
		candidates = append(candidates, c)
	}

	return candidates, errors.Wrap(rows.Err(), "find unread messages before pointer")
}

func (q *txQueries) RealmStreams(ctx context.Context, realmID int64) ([]Stream, error) {
	query := `
		SELECT st.id, st.name, st.realm_id, COALESCE(r.id, 0)
		FROM zerver_stream st
		LEFT JOIN zerver_recipient r ON r.type = ? AND r.type_id = st.id
		WHERE st.realm_id = ?
		ORDER BY st.id`

	rows, err := q.query(ctx, query, RecipientStream, realmID)
	if err != nil {
		return nil, errors.Wrapf(err, "list streams of realm %d", realmID)
	}
	defer func() { _ = rows.Close() }()

	var streams []Stream
	for rows.Next() {
		var s Stream
		if err := rows.Scan(&s.ID, &s.Name, &s.RealmID, &s.RecipientID); err != nil {
			return nil, errors.Wrapf(err, "scan stream of realm %d", realmID)
		}
		streams = append(streams, s)
	}

	return streams, errors.Wrapf(rows.Err(), "list streams of realm %d", realmID)
}

func (q *txQueries) MarkRead(ctx context.Context, userMessageIDs []int64) (int64, error) {
	if len(userMessageIDs) == 0 {
		return 0, nil
	}

	ids, err := q.dialect.listArg(userMessageIDs)
	if err != nil {
		return 0, errors.Wrap(err, "encode user message ids")
	}

	query := q.dialect.rebind(`UPDATE zerver_usermessage SET flags = flags | ? WHERE ` + q.dialect.inList("id"))

	result, err := q.tx.ExecContext(ctx, query, FlagRead, ids)
	if err != nil {
		return 0, errors.Wrap(err, "mark messages read")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "mark messages read")
	}

	return affected, nil
}
