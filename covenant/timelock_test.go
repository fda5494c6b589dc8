package covenant

import "testing"

func TestCheckDeadline(t *testing.T) {
	cases := []struct {
		name     string
		locktime uint32
		sequence uint32
		deadline uint32
		want     ErrorCode
	}{
		{"height deadline with timestamp locktime", 500_000_000, 0, 499_999, ERR_DEADLINE_KIND_MISMATCH},
		{"timestamp deadline with height locktime", 499_999_999, 0, 700_000_000, ERR_DEADLINE_KIND_MISMATCH},
		{"timestamp one second early", 699_999_999, 0, 700_000_000, ERR_DEADLINE_NOT_REACHED},
		{"timestamp equal", 700_000_000, 0, 700_000_000, ""},
		{"timestamp after", 800_000_000, 0, 700_000_000, ""},
		{"height one block early", 499_998, 0, 499_999, ERR_DEADLINE_NOT_REACHED},
		{"height equal", 499_999, 0, 499_999, ""},
		{"height zero deadline", 0, 0, 0, ""},
		{"marker is a timestamp", LOCKTIME_THRESHOLD, 0, LOCKTIME_THRESHOLD, ""},
		{"last height", LOCKTIME_THRESHOLD - 1, 0, LOCKTIME_THRESHOLD, ERR_DEADLINE_KIND_MISMATCH},
		{"final sequence", 700_000_000, SEQUENCE_FINAL, 700_000_000, ERR_TIMELOCK_DISABLED},
		{"non-final sequence", 700_000_000, SEQUENCE_FINAL - 1, 700_000_000, ""},
	}
	for _, tc := range cases {
		err := CheckDeadline(tc.locktime, tc.sequence, tc.deadline)
		if tc.want == "" {
			if err != nil {
				t.Fatalf("%s: expected ok, got %v", tc.name, err)
			}
			continue
		}
		if got := mustErrCode(t, err); got != tc.want {
			t.Fatalf("%s: code=%s, want %s", tc.name, got, tc.want)
		}
	}
}
