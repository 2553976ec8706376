package store

import "testing"

func TestPollVoterLockKeyDistinguishesWideIDs(t *testing.T) {
	// These pairs are identical after truncation to int32, so a lock keyed
	// on the low 32 bits would serialize unrelated voters.
	pairs := [][2][2]int64{
		{{1, 2}, {1 + (1 << 32), 2}},
		{{1, 2}, {1, 2 + (1 << 32)}},
		{{1 << 33, 7}, {1 << 34, 7}},
	}
	for _, pair := range pairs {
		a := pollVoterLockKey(pair[0][0], pair[0][1])
		b := pollVoterLockKey(pair[1][0], pair[1][1])
		if a == b {
			t.Fatalf("lock key collision: (%d,%d) and (%d,%d) both map to %d",
				pair[0][0], pair[0][1], pair[1][0], pair[1][1], a)
		}
	}
}

func TestPollVoterLockKeyStable(t *testing.T) {
	if pollVoterLockKey(42, 99) != pollVoterLockKey(42, 99) {
		t.Fatal("lock key must be deterministic")
	}
	if pollVoterLockKey(42, 99) == pollVoterLockKey(99, 42) {
		t.Fatal("lock key must depend on argument order")
	}
}
