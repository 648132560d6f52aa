package model

import "testing"

func TestBarsNormalize(t *testing.T) {
	bars := Bars{
		{Date: 20240102, Time: 901, Close: 2.0},
		{Date: 20240101, Time: 1530, Close: 1.0},
		{Date: 20240101, Time: 900, Close: 3.0},
		{Date: 20240101, Time: 900, Close: 99.0}, // duplicate key, must lose
		{Date: 20240102, Time: 900, Close: 4.0},
	}

	got := bars.Normalize()

	want := []struct {
		date, tm int
		close    float64
	}{
		{20240101, 900, 3.0},
		{20240101, 1530, 1.0},
		{20240102, 900, 4.0},
		{20240102, 901, 2.0},
	}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Date != w.date || got[i].Time != w.tm || got[i].Close != w.close {
			t.Errorf("bar[%d] = %+v, want {%d %d %v}", i, got[i], w.date, w.tm, w.close)
		}
	}
}

func TestBarsNormalizeKeepsFirstOccurrence(t *testing.T) {
	bars := Bars{
		{Date: 20240101, Time: 900, Close: 1.0},
		{Date: 20240101, Time: 900, Close: 2.0},
		{Date: 20240101, Time: 900, Close: 3.0},
	}

	got := bars.Normalize()
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Close != 1.0 {
		t.Errorf("kept Close = %v, want first occurrence 1.0", got[0].Close)
	}
}

func TestBarsNormalizeEmpty(t *testing.T) {
	var bars Bars
	if got := bars.Normalize(); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestBarsNormalizeDoesNotMutateInput(t *testing.T) {
	bars := Bars{
		{Date: 20240102, Time: 900},
		{Date: 20240101, Time: 900},
	}
	bars.Normalize()

	if bars[0].Date != 20240102 {
		t.Error("Normalize mutated its receiver")
	}
}

func TestDistinctTimes(t *testing.T) {
	bars := Bars{
		{Date: 20240101, Time: 900},
		{Date: 20240101, Time: 901},
		{Date: 20240102, Time: 900},
	}

	times := bars.DistinctTimes()
	if len(times) != 2 {
		t.Errorf("distinct times = %d, want 2", len(times))
	}
	if _, ok := times[900]; !ok {
		t.Error("missing time 900")
	}
}
