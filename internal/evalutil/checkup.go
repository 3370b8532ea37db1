package evalutil

import "github.com/stellarlinkco/agent-evals/internal/state"

// CheckupInProgress reports whether a guided checkup is active on the
// snapshot: there are pending items left to status-check.
func CheckupInProgress(snap *state.Snapshot) bool {
	if snap == nil || snap.Checkup == nil {
		return false
	}
	return len(snap.Checkup.PendingItems) > 0 && !snap.Checkup.Complete()
}

// CheckupComplete reports whether the checkup's pending-item cursor has
// exhausted the list. Server-side completion always overrides whatever the
// user-simulation service believes about the conversation.
func CheckupComplete(snap *state.Snapshot) bool {
	if snap == nil || snap.Checkup == nil {
		return false
	}
	return snap.Checkup.Complete()
}

// CheckupFullyDone reports whether the checkup finished including every
// deferred parking-lot topic.
func CheckupFullyDone(snap *state.Snapshot) bool {
	if snap == nil || snap.Checkup == nil {
		return false
	}
	return snap.Checkup.FullyDone
}
