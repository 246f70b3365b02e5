package p2p

import (
	"testing"
	"time"
)

func TestChangeScoreAccumulates(t *testing.T) {
	n := newTestNetwork(t, nil)
	conn := addFakePeer(n, "10.1.0.1", &fakeClient{}, 1)

	n.changeScore("10.1.0.1", 10)
	n.changeScore("10.1.0.1", 50)
	if got := conn.cachedUint64("score"); got != 60 {
		t.Fatalf("expected score 60 got %d", got)
	}
	if conn.cachedBool("disconnect") {
		t.Fatalf("disconnect must not be requested below the threshold")
	}
	if n.bans.isBanned("10.1.0.1", n.now()) {
		t.Fatalf("peer must not be banned below the threshold")
	}
}

func TestChangeScoreBanBoundary(t *testing.T) {
	n := newTestNetwork(t, nil)
	conn := addFakePeer(n, "10.1.0.2", &fakeClient{}, 1)

	// Exactly 200 stays unbanned; the threshold is strict.
	n.changeScore("10.1.0.2", 200)
	if n.bans.isBanned("10.1.0.2", n.now()) {
		t.Fatalf("score 200 must not ban")
	}

	n.changeScore("10.1.0.2", 1)
	if !n.bans.isBanned("10.1.0.2", n.now()) {
		t.Fatalf("score 201 must ban")
	}
	if !conn.cachedBool("disconnect") {
		t.Fatalf("crossing the threshold must request disconnect")
	}

	expiry, ok := n.bans.expiry("10.1.0.2")
	if !ok {
		t.Fatalf("expected a ban entry")
	}
	want := uint64(n.now().Add(24 * time.Hour).Unix())
	if expiry != want {
		t.Fatalf("expected 24h ban expiry %d got %d", want, expiry)
	}
}

func TestChangeScoreUnknownPeer(t *testing.T) {
	n := newTestNetwork(t, nil)
	// Must be a no-op rather than a panic or a phantom ban.
	n.changeScore("10.9.9.9", 250)
	if n.bans.isBanned("10.9.9.9", n.now()) {
		t.Fatalf("unconnected peers take no score")
	}
}

func TestBanExpiry(t *testing.T) {
	b := newBanList()
	now := time.Unix(1_700_000_000, 0)
	b.ban("10.2.0.1", uint64(now.Unix())+60)

	if !b.isBanned("10.2.0.1", now) {
		t.Fatalf("expected active ban")
	}
	if b.isBanned("10.2.0.1", now.Add(2*time.Minute)) {
		t.Fatalf("expected ban to expire")
	}
	if b.isBanned("10.2.0.2", now) {
		t.Fatalf("unknown address must not be banned")
	}
}
