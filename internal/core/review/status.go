package review

// Status is a read-only summary of a feature's review state.
type Status struct {
	ActiveSessionID   *string        `json:"activeSessionId"`
	UnresolvedThreads int            `json:"unresolvedThreads"`
	TotalThreads      int            `json:"totalThreads"`
	LatestVerdict     *Verdict       `json:"latestVerdict"`
	LatestStatus      *SessionStatus `json:"latestStatus"`
}

// BuildStatus summarises sessions for display.
//
// When session is non-nil it is the session being summarised: thread counts,
// verdict, and status come from it. It is reported as active only when its
// own status is in_progress, so a submitted session passed here yields a nil
// ActiveSessionID alongside its thread counts. When session is nil,
// LatestStatus falls back to the most recently updated entry of sessions.
func BuildStatus(sessions []SessionSummary, session *Session) Status {
	var st Status

	if session == nil {
		if latest := latestSummary(sessions); latest != nil {
			status := latest.Status
			st.LatestStatus = &status
		}
		return st
	}

	if session.IsInProgress() {
		id := session.ID
		st.ActiveSessionID = &id
	}

	st.TotalThreads = len(session.Threads)
	for _, t := range session.Threads {
		if t.Status == ThreadOpen {
			st.UnresolvedThreads++
		}
	}

	if session.Verdict != nil {
		v := *session.Verdict
		st.LatestVerdict = &v
	}
	status := session.Status
	st.LatestStatus = &status

	return st
}

// latestSummary returns the entry with the greatest UpdatedAt; the earliest
// in list order wins ties.
func latestSummary(sessions []SessionSummary) *SessionSummary {
	var latest *SessionSummary
	for i := range sessions {
		if latest == nil || sessions[i].UpdatedAt.After(latest.UpdatedAt) {
			latest = &sessions[i]
		}
	}
	return latest
}
