package repair

const (
	PhaseStaleRecipients = "find inactive stream recipients"
	PhaseStaleFind       = "find unread messages for non-active streams"
	PhaseStaleFix        = "fix unread messages for non-active streams"
)

// fixUnsubscribed marks read every unread delivery addressed to a stream the
// user is no longer actively subscribed to.
func (r *run) fixUnsubscribed() error {
	recipients, elapsed, err := Measure(func() ([]int64, error) {
		return r.q.InactiveStreamRecipients(r.ctx, r.user.ID)
	})
	if err != nil {
		return storeError(PhaseStaleRecipients, err)
	}
	r.phase(PhaseStaleRecipients, elapsed, len(recipients))
	r.report.StaleRecipients = recipients

	if len(recipients) == 0 {
		return nil
	}

	ids, elapsed, err := Measure(func() ([]int64, error) {
		return r.q.UnreadForRecipients(r.ctx, r.user.ID, recipients)
	})
	if err != nil {
		return storeError(PhaseStaleFind, err)
	}
	r.phase(PhaseStaleFind, elapsed, len(ids))

	if len(ids) == 0 {
		return nil
	}

	cleared, elapsed, err := Measure(func() (int64, error) {
		return r.q.MarkRead(r.ctx, ids)
	})
	if err != nil {
		return storeError(PhaseStaleFix, err)
	}
	r.phase(PhaseStaleFix, elapsed, int(cleared))
	r.report.StaleSubscriptionCleared = int(cleared)

	return nil
}
