package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"fixunreads/internal/database"
)

// MuteRule mutes one topic of one stream. Both parts compare case-insensitively.
type MuteRule struct {
	Stream string
	Topic  string
}

// ParseMuteRules decodes a stored mute list, a JSON array of [stream, topic] pairs.
// An empty value means no rules.
func ParseMuteRules(raw string) ([]MuteRule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var pairs [][]string
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMuteList, err)
	}

	rules := make([]MuteRule, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: entry %d has %d elements, expected 2", ErrMalformedMuteList, i, len(pair))
		}
		rules = append(rules, MuteRule{Stream: pair[0], Topic: pair[1]})
	}

	return rules, nil
}

type muteKey struct {
	streamID int64
	topic    string
}

// TopicMuteChecker answers whether a (stream, topic) pair is muted for one user.
// It is built per user and must not be shared between users or goroutines.
type TopicMuteChecker struct {
	muted map[muteKey]struct{}
	fold  cases.Caser
}

// BuildTopicMuteChecker resolves the stream names of a user's mute list inside
// the realm. A name that no longer resolves fails with ErrUnknownChannel rather
// than dropping the rule.
func BuildTopicMuteChecker(ctx context.Context, q database.Queries, realmID int64, rawMuteList string) (*TopicMuteChecker, error) {
	checker := &TopicMuteChecker{
		muted: make(map[muteKey]struct{}),
		fold:  cases.Fold(),
	}

	rules, err := ParseMuteRules(rawMuteList)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return checker, nil
	}

	streams, err := q.RealmStreams(ctx, realmID)
	if err != nil {
		return nil, storeError("list realm streams", err)
	}

	byName := make(map[string][]int64, len(streams))
	for _, s := range streams {
		name := checker.fold.String(strings.TrimSpace(s.Name))
		byName[name] = append(byName[name], s.ID)
	}

	resolved := make(map[string]int64)
	for _, rule := range rules {
		streamID, ok := resolved[rule.Stream]
		if !ok {
			ids := byName[checker.fold.String(strings.TrimSpace(rule.Stream))]
			switch len(ids) {
			case 0:
				return nil, fmt.Errorf("%w: %q in realm %d", ErrUnknownChannel, rule.Stream, realmID)
			case 1:
				streamID = ids[0]
			default:
				return nil, fmt.Errorf("%w: %q matches %d streams in realm %d", ErrAmbiguousChannel, rule.Stream, len(ids), realmID)
			}
			resolved[rule.Stream] = streamID
		}

		checker.muted[muteKey{streamID: streamID, topic: checker.fold.String(rule.Topic)}] = struct{}{}
	}

	return checker, nil
}

// IsMuted reports whether topic in the stream is muted, ignoring case.
func (c *TopicMuteChecker) IsMuted(streamID int64, topic string) bool {
	_, ok := c.muted[muteKey{streamID: streamID, topic: c.fold.String(topic)}]
	return ok
}

// Len returns the number of distinct muted (stream, topic) pairs.
func (c *TopicMuteChecker) Len() int {
	return len(c.muted)
}
