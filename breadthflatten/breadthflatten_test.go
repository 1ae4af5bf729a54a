package breadthflatten

import "testing"

func counter(from, to int) func() (int, bool) {
	i := from
	return func() (int, bool) {
		if i >= to {
			return 0, false
		}
		v := i
		i++
		return v, true
	}
}

func TestFlattenInterleavesRoundRobin(t *testing.T) {
	next := Flatten([]func() (int, bool){
		counter(0, 3),  // 0,1,2
		counter(10, 12), // 10,11
		counter(20, 21), // 20
	})

	got := Collect(next, -1)
	want := []int{0, 10, 20, 1, 11, 2}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFlattenEmpty(t *testing.T) {
	next := Flatten[int](nil)
	if _, ok := next(); ok {
		t.Fatalf("expected immediate exhaustion")
	}
}

func TestCollectRespectsLimit(t *testing.T) {
	next := Flatten([]func() (int, bool){counter(0, 100)})
	got := Collect(next, 5)
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
}
