package media

import (
	"testing"
	"time"
)

func twoFrameAnimation() *Animation {
	f0 := Frame{Width: 1, Height: 1, Pixels: []Pixel{{0, 0, 0, 255}}, Order: RGBA}
	f1 := Frame{Width: 1, Height: 1, Pixels: []Pixel{{255, 255, 255, 255}}, Order: RGBA}
	return NewAnimation(1, 1, []Timed{
		{Frame: f0, Duration: 100 * time.Millisecond},
		{Frame: f1, Duration: 200 * time.Millisecond},
	})
}

func TestAnimationFrameLookup(t *testing.T) {
	a := twoFrameAnimation()
	if got := a.CycleTime(); got != 300*time.Millisecond {
		t.Fatalf("cycle time = %v, want 300ms", got)
	}

	cases := []struct {
		delta     time.Duration
		wantFirst bool
		wantLeft  time.Duration
	}{
		{50 * time.Millisecond, true, 50 * time.Millisecond},
		{350 * time.Millisecond, true, 50 * time.Millisecond},
		{250 * time.Millisecond, false, 50 * time.Millisecond},
	}
	for _, c := range cases {
		frame, _, left := a.Frame(c.delta)
		isFirst := frame.Pixels[0] == Pixel{0, 0, 0, 255}
		if isFirst != c.wantFirst {
			t.Fatalf("delta=%v: got first=%v, want %v", c.delta, isFirst, c.wantFirst)
		}
		if left != c.wantLeft {
			t.Fatalf("delta=%v: time_left = %v, want %v", c.delta, left, c.wantLeft)
		}
	}
}

func TestAnimationCycleModulus(t *testing.T) {
	a := twoFrameAnimation()
	for k := 0; k < 5; k++ {
		base := 50 * time.Millisecond
		shifted := base + time.Duration(k)*a.CycleTime()
		fBase, _, _ := a.Frame(base)
		fShifted, _, _ := a.Frame(shifted)
		if fBase.Pixels[0] != fShifted.Pixels[0] {
			t.Fatalf("frame(t) != frame(t+k*cycle) at k=%d", k)
		}
	}
}

func TestStillImageInfiniteCycle(t *testing.T) {
	f := Frame{Width: 1, Height: 1, Pixels: []Pixel{{1, 2, 3, 255}}, Order: RGBA}
	a := NewAnimation(1, 1, []Timed{{Frame: f, Duration: Infinite}})
	if a.CycleTime() != Infinite {
		t.Fatalf("expected infinite cycle time for a still image")
	}
	got, frameTime, left := a.Frame(10 * time.Hour)
	if got.Pixels[0] != f.Pixels[0] {
		t.Fatalf("expected the only frame back")
	}
	if frameTime != Infinite || left != Infinite {
		t.Fatalf("expected infinite frame_time/time_left for a still image")
	}
}
