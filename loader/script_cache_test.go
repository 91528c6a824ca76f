package loader

import "testing"

func TestScriptCacheGetMissThenInsertThenHit(t *testing.T) {
	sc := newScriptCache(discardLogger(), noopMetrics{})
	hash := HashScript([]byte("script body"))

	if _, ok := sc.get(hash); ok {
		t.Fatalf("expected a miss before insert")
	}

	s := &Script{hash: hash}
	got := sc.insert(hash, s)
	if got != s {
		t.Fatalf("insert should return the inserted script on a fresh key")
	}

	fetched, ok := sc.get(hash)
	if !ok || fetched != s {
		t.Fatalf("get after insert = %v, %v; want the inserted script, true", fetched, ok)
	}
}

// TestScriptCacheInsertNeverOverwrites models the race-on-publication
// rule: a second insert for the same hash must return the winner's
// value, not clobber it.
func TestScriptCacheInsertNeverOverwrites(t *testing.T) {
	sc := newScriptCache(discardLogger(), noopMetrics{})
	hash := HashScript([]byte("racy script"))

	first := &Script{hash: hash}
	second := &Script{hash: hash}

	winner := sc.insert(hash, first)
	loser := sc.insert(hash, second)

	if winner != first {
		t.Fatalf("first insert should win")
	}
	if loser != first {
		t.Fatalf("second insert should return the first winner, not overwrite it")
	}
	fetched, _ := sc.get(hash)
	if fetched != first {
		t.Fatalf("cached script should remain the first winner")
	}
}
