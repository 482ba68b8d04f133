package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

func (db *DB) GetRealmByStringID(ctx context.Context, stringID string) (*Realm, error) {
	query := db.dialect.rebind(`SELECT id, string_id FROM zerver_realm WHERE string_id = ?`)

	var realm Realm
	err := db.QueryRowContext(ctx, query, stringID).Scan(&realm.ID, &realm.StringID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "realm %q", stringID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get realm %q", stringID)
	}

	return &realm, nil
}

// GetUserByEmail looks a user up by case-insensitive email. A realmID of 0
// searches every realm and fails with ErrMultipleFound if the email is not unique.
func (db *DB) GetUserByEmail(ctx context.Context, email string, realmID int64) (*User, error) {
	query := `SELECT id, email, realm_id, COALESCE(pointer, -1), COALESCE(muted_topics, '[]')
			  FROM zerver_userprofile
			  WHERE LOWER(email) = LOWER(?)`
	args := []any{email}
	if realmID != 0 {
		query += ` AND realm_id = ?`
		args = append(args, realmID)
	}
	query += ` ORDER BY id LIMIT 2`

	rows, err := db.QueryContext(ctx, db.dialect.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %q", email)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.RealmID, &user.Pointer, &user.MutedTopics); err != nil {
			return nil, errors.Wrapf(err, "scan user %q", email)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "get user %q", email)
	}

	switch len(users) {
	case 0:
		return nil, errors.Wrapf(ErrNotFound, "user %q", email)
	case 1:
		return &users[0], nil
	default:
		return nil, errors.Wrapf(ErrMultipleFound, "user %q", email)
	}
}

// The helpers below populate a store. They back local seeding and tests;
// against production the server owns these rows.

func (db *DB) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, db.dialect.rebind(query+` RETURNING id`), args...).Scan(&id)
	return id, err
}

func (db *DB) CreateRealm(ctx context.Context, stringID string) (*Realm, error) {
	id, err := db.insertReturningID(ctx, `INSERT INTO zerver_realm (string_id) VALUES (?)`, stringID)
	if err != nil {
		return nil, errors.Wrapf(err, "create realm %q", stringID)
	}
	return &Realm{ID: id, StringID: stringID}, nil
}

func (db *DB) CreateUser(ctx context.Context, user *User) error {
	mutedTopics := user.MutedTopics
	if mutedTopics == "" {
		mutedTopics = "[]"
	}

	id, err := db.insertReturningID(ctx,
		`INSERT INTO zerver_userprofile (email, realm_id, pointer, muted_topics) VALUES (?, ?, ?, ?)`,
		user.Email, user.RealmID, user.Pointer, mutedTopics)
	if err != nil {
		return errors.Wrapf(err, "create user %q", user.Email)
	}

	user.ID = id
	user.MutedTopics = mutedTopics
	return nil
}

// CreateStream inserts a stream together with its recipient row.
func (db *DB) CreateStream(ctx context.Context, realmID int64, name string) (*Stream, error) {
	streamID, err := db.insertReturningID(ctx,
		`INSERT INTO zerver_stream (name, realm_id) VALUES (?, ?)`, name, realmID)
	if err != nil {
		return nil, errors.Wrapf(err, "create stream %q", name)
	}

	recipientID, err := db.CreateRecipient(ctx, RecipientStream, streamID)
	if err != nil {
		return nil, err
	}

	return &Stream{ID: streamID, Name: name, RealmID: realmID, RecipientID: recipientID}, nil
}

func (db *DB) CreateRecipient(ctx context.Context, recipientType int, typeID int64) (int64, error) {
	id, err := db.insertReturningID(ctx,
		`INSERT INTO zerver_recipient (type, type_id) VALUES (?, ?)`, recipientType, typeID)
	if err != nil {
		return 0, errors.Wrapf(err, "create recipient type %d", recipientType)
	}
	return id, nil
}

func (db *DB) Subscribe(ctx context.Context, userID, recipientID int64, active, inHomeView bool) error {
	query := db.dialect.rebind(`INSERT INTO zerver_subscription (user_profile_id, recipient_id, active, in_home_view)
			  VALUES (?, ?, ?, ?)`)
	_, err := db.ExecContext(ctx, query, userID, recipientID, active, inHomeView)
	return errors.Wrapf(err, "subscribe user %d to recipient %d", userID, recipientID)
}

func (db *DB) SendMessage(ctx context.Context, recipientID int64, subject string) (int64, error) {
	id, err := db.insertReturningID(ctx,
		`INSERT INTO zerver_message (recipient_id, subject) VALUES (?, ?)`, recipientID, subject)
	if err != nil {
		return 0, errors.Wrapf(err, "send message to recipient %d", recipientID)
	}
	return id, nil
}

// Deliver creates the per-user delivery record of a message.
func (db *DB) Deliver(ctx context.Context, userID, messageID, flags int64) (int64, error) {
	id, err := db.insertReturningID(ctx,
		`INSERT INTO zerver_usermessage (user_profile_id, message_id, flags) VALUES (?, ?, ?)`,
		userID, messageID, flags)
	if err != nil {
		return 0, errors.Wrapf(err, "deliver message %d to user %d", messageID, userID)
	}
	return id, nil
}

func (db *DB) GetUserMessageFlags(ctx context.Context, userMessageID int64) (int64, error) {
	query := db.dialect.rebind(`SELECT flags FROM zerver_usermessage WHERE id = ?`)

	var flags int64
	err := db.QueryRowContext(ctx, query, userMessageID).Scan(&flags)
	if err == sql.ErrNoRows {
		return 0, errors.Wrapf(ErrNotFound, "user message %d", userMessageID)
	}
	return flags, errors.Wrapf(err, "get flags of user message %d", userMessageID)
}

func (db *DB) SetPointer(ctx context.Context, userID, pointer int64) error {
	query := db.dialect.rebind(`UPDATE zerver_userprofile SET pointer = ? WHERE id = ?`)
	_, err := db.ExecContext(ctx, query, pointer, userID)
	return errors.Wrapf(err, "set pointer of user %d", userID)
}
