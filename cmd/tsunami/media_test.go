package main

import (
	"testing"

	"github.com/framegrace/tsunami/draworder"
)

func TestParseMediaObjectPathOnly(t *testing.T) {
	obj, err := parseMediaObject("/tmp/banner.png")
	if err != nil {
		t.Fatalf("parseMediaObject: %v", err)
	}
	if obj.path != "/tmp/banner.png" || obj.x != 0 || obj.y != 0 || obj.strategy != draworder.Down {
		t.Fatalf("got %+v, want defaults with path only", obj)
	}
}

func TestParseMediaObjectWithOffsetAndStrategy(t *testing.T) {
	obj, err := parseMediaObject("/tmp/banner.gif:10:20:random")
	if err != nil {
		t.Fatalf("parseMediaObject: %v", err)
	}
	if obj.x != 10 || obj.y != 20 || obj.strategy != draworder.Random {
		t.Fatalf("got %+v, want x=10 y=20 strategy=random", obj)
	}
}

func TestParseMediaObjectRejectsTwoFields(t *testing.T) {
	if _, err := parseMediaObject("/tmp/banner.png:10"); err == nil {
		t.Fatal("expected an error for a MEDIA_OBJECT with only an x offset")
	}
}

func TestParseGPUMode(t *testing.T) {
	cases := map[string]gpuMode{"": gpuNone, "none": gpuNone, "preferred": gpuPreferred, "required": gpuRequired}
	for in, want := range cases {
		got, err := parseGPUMode(in)
		if err != nil {
			t.Fatalf("parseGPUMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseGPUMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseGPUMode("bogus"); err == nil {
		t.Fatal("expected an error for an unknown gpu mode")
	}
}

func TestParseCachingMode(t *testing.T) {
	cases := map[string]cachingMode{"": cachingNone, "None": cachingNone, "KeepLast": cachingKeepLast, "KeepAllLazy": cachingComputeOnce}
	for in, want := range cases {
		got, err := parseCachingMode(in)
		if err != nil {
			t.Fatalf("parseCachingMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseCachingMode(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseCachingMode("bogus"); err == nil {
		t.Fatal("expected an error for an unknown caching mode")
	}
}
