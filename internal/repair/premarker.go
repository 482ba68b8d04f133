package repair

import (
	"go.uber.org/zap"

	"fixunreads/internal/database"
)

const (
	PhaseMuteChecker   = "build topic mute checker"
	PhaseHomeViewFind  = "find non-muted recipients"
	PhasePreMarkerFind = "find pre-pointer messages that are not muted"
	PhasePreMarkerFix  = "fix pre-pointer messages that are not muted"
)

// unmutedIDs keeps the candidates whose topic is not muted, in input order,
// and counts the ones it dropped.
func unmutedIDs(candidates []database.PointerCandidate, checker *TopicMuteChecker) (ids []int64, muted int) {
	for _, c := range candidates {
		if checker.IsMuted(c.StreamID, c.Topic) {
			muted++
			continue
		}
		ids = append(ids, c.UserMessageID)
	}
	return ids, muted
}

// fixPrePointer finds unread deliveries at or before the user's pointer in
// streams shown in the home view, excluding muted topics. The write only
// happens with Options.ApplyPreMarker; otherwise the pass just reports.
func (r *run) fixPrePointer() error {
	if !r.user.HasPointer() {
		return nil
	}

	checker, elapsed, err := Measure(func() (*TopicMuteChecker, error) {
		return BuildTopicMuteChecker(r.ctx, r.q, r.user.RealmID, r.user.MutedTopics)
	})
	if err != nil {
		return err
	}
	r.phase(PhaseMuteChecker, elapsed, checker.Len())

	recipients, elapsed, err := Measure(func() ([]int64, error) {
		return r.q.HomeViewStreamRecipients(r.ctx, r.user.ID)
	})
	if err != nil {
		return storeError(PhaseHomeViewFind, err)
	}
	r.phase(PhaseHomeViewFind, elapsed, len(recipients))

	if len(recipients) == 0 {
		return nil
	}

	type found struct {
		ids   []int64
		muted int
	}
	result, elapsed, err := Measure(func() (found, error) {
		candidates, err := r.q.UnreadBeforePointer(r.ctx, r.user.ID, r.user.Pointer, recipients)
		if err != nil {
			return found{}, err
		}
		ids, muted := unmutedIDs(candidates, checker)
		return found{ids: ids, muted: muted}, nil
	})
	if err != nil {
		return storeError(PhasePreMarkerFind, err)
	}
	r.phase(PhasePreMarkerFind, elapsed, len(result.ids))
	r.report.PreMarkerCandidates = len(result.ids)
	r.report.PreMarkerMuted = result.muted

	if len(result.ids) == 0 {
		return nil
	}

	if !r.opts.ApplyPreMarker {
		r.log.Info("pre-pointer messages left unread, write not enabled",
			zap.Int("candidates", len(result.ids)))
		return nil
	}

	cleared, elapsed, err := Measure(func() (int64, error) {
		return r.q.MarkRead(r.ctx, result.ids)
	})
	if err != nil {
		return storeError(PhasePreMarkerFix, err)
	}
	r.phase(PhasePreMarkerFix, elapsed, int(cleared))
	r.report.PreMarkerCleared = int(cleared)
	r.report.PreMarkerApplied = true

	return nil
}
