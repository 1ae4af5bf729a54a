package main

import "testing"

func TestResolveHostDefaultsPort(t *testing.T) {
	addr, err := resolveHost("127.0.0.1")
	if err != nil {
		t.Fatalf("resolveHost: %v", err)
	}
	if addr.Port != defaultPort {
		t.Fatalf("port = %d, want default %d", addr.Port, defaultPort)
	}
}

func TestResolveHostExplicitPort(t *testing.T) {
	addr, err := resolveHost("127.0.0.1:9999")
	if err != nil {
		t.Fatalf("resolveHost: %v", err)
	}
	if addr.Port != 9999 {
		t.Fatalf("port = %d, want 9999", addr.Port)
	}
}

func TestParseTargetsRejectsEmpty(t *testing.T) {
	if _, err := parseTargets(""); err == nil {
		t.Fatal("expected an error for an empty target list")
	}
}

func TestParseTargetsSplitsOnComma(t *testing.T) {
	targets, err := parseTargets("127.0.0.1:1, 127.0.0.1:2")
	if err != nil {
		t.Fatalf("parseTargets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	if targets[0].Port != 1 || targets[1].Port != 2 {
		t.Fatalf("ports = %d, %d, want 1, 2", targets[0].Port, targets[1].Port)
	}
}

func TestParseInterfacesEmptyMeansUnspecified(t *testing.T) {
	ifaces, err := parseInterfaces("")
	if err != nil {
		t.Fatalf("parseInterfaces: %v", err)
	}
	if ifaces != nil {
		t.Fatalf("expected a nil slice for an empty interface list, got %v", ifaces)
	}
}

func TestParseInterfacesRejectsGarbage(t *testing.T) {
	if _, err := parseInterfaces("not-an-ip"); err == nil {
		t.Fatal("expected an error for an invalid interface address")
	}
}

func TestParseCanvas(t *testing.T) {
	w, h, err := parseCanvas("1920x1080")
	if err != nil {
		t.Fatalf("parseCanvas: %v", err)
	}
	if w != 1920 || h != 1080 {
		t.Fatalf("got %dx%d, want 1920x1080", w, h)
	}
}

func TestParseCanvasRejectsMalformed(t *testing.T) {
	if _, _, err := parseCanvas("1920"); err == nil {
		t.Fatal("expected an error for a canvas size missing the height")
	}
}

func TestEnvIntOrDefaultFallsBackOnGarbage(t *testing.T) {
	t.Setenv("TSUNAMI_TEST_INT", "not-a-number")
	if got := envIntOrDefault("TSUNAMI_TEST_INT", 7); got != 7 {
		t.Fatalf("envIntOrDefault = %d, want fallback 7", got)
	}
}
