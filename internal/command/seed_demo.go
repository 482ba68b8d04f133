package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fixunreads/internal/database"
)

const maxSeedMessages = 1000

// NewSeedDemoCmd creates the seed-demo command.
func NewSeedDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-demo <email>",
		Short: "Create a user with stale unread messages in a local SQLite store",
		Long: `Create a user whose unread flags need repair, for trying the tool locally.

The user gets --stale unread messages in a stream they have left, and
--pre-marker unread messages before their pointer in a stream they follow,
one of whose topics is muted.

Example:
  fix-unreads init-db
  fix-unreads seed-demo iago@zulip.com --stale 50 --pre-marker 20
  fix-unreads iago@zulip.com --realm zulip --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			realm, _ := cmd.Flags().GetString("realm")
			stale, _ := cmd.Flags().GetInt("stale")
			preMarker, _ := cmd.Flags().GetInt("pre-marker")

			if stale < 0 || stale > maxSeedMessages || preMarker < 0 || preMarker > maxSeedMessages {
				return writeCommandError(cmd, fmt.Errorf("message counts must be between 0 and %d", maxSeedMessages))
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer a.Close()

			if a.cfg.IsPostgres() {
				return writeCommandError(cmd, errors.New("seed-demo only writes to a local SQLite store"))
			}

			user, err := seedDemo(cmd.Context(), a.db, realm, args[0], stale, preMarker)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded %s (user %d, pointer %d): %d stale, %d before pointer\n",
				user.Email, user.ID, user.Pointer, stale, preMarker)
			return nil
		},
	}

	cmd.Flags().StringP("realm", "r", "zulip", "realm string_id to create the user in")
	cmd.Flags().Int("stale", 10, "unread messages in a stream the user has left")
	cmd.Flags().Int("pre-marker", 10, "unread messages before the user's pointer")

	return cmd
}

// seedDemo populates the store for one user. Every third pre-pointer message
// lands in the muted topic.
func seedDemo(ctx context.Context, db *database.DB, realmID string, email string, stale, preMarker int) (*database.User, error) {
	realm, err := db.GetRealmByStringID(ctx, realmID)
	if errors.Is(err, database.ErrNotFound) {
		realm, err = db.CreateRealm(ctx, realmID)
	}
	if err != nil {
		return nil, err
	}

	left, err := db.CreateStream(ctx, realm.ID, "left-"+email)
	if err != nil {
		return nil, err
	}
	followed, err := db.CreateStream(ctx, realm.ID, "followed-"+email)
	if err != nil {
		return nil, err
	}

	user := &database.User{
		Email:       email,
		RealmID:     realm.ID,
		MutedTopics: fmt.Sprintf(`[[%q, "noise"]]`, followed.Name),
	}
	if err := db.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if err := db.Subscribe(ctx, user.ID, left.RecipientID, false, true); err != nil {
		return nil, err
	}
	if err := db.Subscribe(ctx, user.ID, followed.RecipientID, true, true); err != nil {
		return nil, err
	}

	deliver := func(recipientID int64, topic string) (int64, error) {
		messageID, err := db.SendMessage(ctx, recipientID, topic)
		if err != nil {
			return 0, err
		}
		_, err = db.Deliver(ctx, user.ID, messageID, 0)
		return messageID, err
	}

	for i := 0; i < stale; i++ {
		if _, err := deliver(left.RecipientID, "archive"); err != nil {
			return nil, err
		}
	}

	for i := 0; i < preMarker; i++ {
		topic := "lunch"
		if i%3 == 2 {
			topic = "noise"
		}
		messageID, err := deliver(followed.RecipientID, topic)
		if err != nil {
			return nil, err
		}
		user.Pointer = messageID
	}

	if user.Pointer > 0 {
		if err := db.SetPointer(ctx, user.ID, user.Pointer); err != nil {
			return nil, err
		}
	}

	return user, nil
}
