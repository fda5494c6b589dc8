package covenant

func isHeightLock(v uint32) bool {
	return v < LOCKTIME_THRESHOLD
}

// CheckDeadline accepts when the caller's declared locktime has reached
// deadline and both values use the same unit.
func CheckDeadline(locktime uint32, sequence uint32, deadline uint32) error {
	if sequence == SEQUENCE_FINAL {
		return spenderr(ERR_TIMELOCK_DISABLED, "input sequence is final; locktime not enforced")
	}
	if isHeightLock(deadline) != isHeightLock(locktime) {
		return spenderr(ERR_DEADLINE_KIND_MISMATCH, "deadline and locktime use different units")
	}
	if locktime < deadline {
		if isHeightLock(deadline) {
			return spenderr(ERR_DEADLINE_NOT_REACHED, "height deadline not reached")
		}
		return spenderr(ERR_DEADLINE_NOT_REACHED, "timestamp deadline not reached")
	}
	return nil
}
