package engine

import (
	"net"
	"testing"
	"time"
)

func mustParseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("invalid test IP literal %q", s)
	}
	return ip
}

func TestReconnectBackoffSequence(t *testing.T) {
	limit := 8 * time.Second
	backoff := initialBackoff
	want := []time.Duration{2, 4, 8, 8, 8}
	for i, w := range want {
		backoff = nextBackoffDuration(backoff, limit)
		if backoff != w*time.Second {
			t.Fatalf("step %d: backoff = %v, want %ds", i, backoff, w)
		}
	}
}

func TestShouldRetireUnlimited(t *testing.T) {
	if shouldRetire(-1, 1000) {
		t.Fatal("a negative reconnect limit must never retire a connection")
	}
}

func TestShouldRetireAtLimit(t *testing.T) {
	cases := []struct {
		limit, reconnects int
		want              bool
	}{
		{limit: 3, reconnects: 0, want: false},
		{limit: 3, reconnects: 2, want: false},
		{limit: 3, reconnects: 3, want: true},
		{limit: 3, reconnects: 4, want: true},
		{limit: 0, reconnects: 0, want: true},
	}
	for _, c := range cases {
		if got := shouldRetire(c.limit, c.reconnects); got != c.want {
			t.Fatalf("shouldRetire(%d, %d) = %v, want %v", c.limit, c.reconnects, got, c.want)
		}
	}
}

func TestWriteCursorPartialWriteMath(t *testing.T) {
	total := 100
	cur := &writeCursor{bytesWritten: 0}
	result := 40 // first partial write delivers 40 of 100 bytes

	written := cur.bytesWritten + result
	if written >= total {
		t.Fatal("expected a partial write, not a full one")
	}
	cur.bytesWritten = written
	if cur.bytesWritten != 40 {
		t.Fatalf("bytesWritten = %d, want 40", cur.bytesWritten)
	}

	remaining := total - cur.bytesWritten
	if remaining != 60 {
		t.Fatalf("remaining = %d, want 60 (the next write must cover buffer[40:100])", remaining)
	}
}

func TestFamilyMatches(t *testing.T) {
	v4a := mustParseIP(t, "10.0.0.1")
	v4b := mustParseIP(t, "192.168.1.1")
	v6a := mustParseIP(t, "::1")
	v6b := mustParseIP(t, "fe80::1")

	if !familyMatches(v4a, v4b) {
		t.Fatal("expected two IPv4 addresses to match families")
	}
	if !familyMatches(v6a, v6b) {
		t.Fatal("expected two IPv6 addresses to match families")
	}
	if familyMatches(v4a, v6a) {
		t.Fatal("expected an IPv4/IPv6 pair not to match")
	}
}
