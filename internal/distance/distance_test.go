package distance

import "testing"

func TestSnapDistance(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{21.4, 21.1},
		{5.5, 5.0},
		{42.195, 42.2},
		{30.0, 30.0}, // too far from any standard distance, unchanged
	}
	for _, c := range cases {
		got, ok := SnapDistance(c.in)
		if !ok {
			t.Fatalf("SnapDistance(%v) not ok", c.in)
		}
		if got != c.want {
			t.Errorf("SnapDistance(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestSnapDistanceNonPositive(t *testing.T) {
	if _, ok := SnapDistance(0); ok {
		t.Error("expected not-ok for 0")
	}
	if _, ok := SnapDistance(-1); ok {
		t.Error("expected not-ok for negative")
	}
}

func TestKMFromLabel(t *testing.T) {
	cases := []struct {
		label string
		want  float64
		ok    bool
	}{
		{"5km", 5.0, true},
		{"10.5 km", 10.5, true},
		{"42.195", 42.195, true},
		{"Section 1", 0, false},
	}
	for _, c := range cases {
		got, ok := KMFromLabel(c.label)
		if ok != c.ok {
			t.Fatalf("KMFromLabel(%q) ok=%v want %v", c.label, ok, c.ok)
		}
		if ok && got != c.want {
			t.Errorf("KMFromLabel(%q) = %v want %v", c.label, got, c.want)
		}
	}
}

func TestIsFinishLabel(t *testing.T) {
	if !IsFinishLabel("Finish") {
		t.Error("expected true for Finish")
	}
	if !IsFinishLabel("도착") { // "도착"
		t.Error("expected true for 도착")
	}
	if IsFinishLabel("Section 3") {
		t.Error("expected false")
	}
}

func TestNormalizeBib(t *testing.T) {
	if got := NormalizeBib("time.spct.co.kr", "123"); got != "000123" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeBib("time.spct.co.kr", "ABC123"); got != "ABC123" {
		t.Errorf("got %q", got)
	}
	if got := NormalizeBib("smartchip.co.kr", "123"); got != "123" {
		t.Errorf("got %q, expected unchanged for non-spct host", got)
	}
}

func TestToleranceFor(t *testing.T) {
	cases := []struct {
		km   float64
		want float64
	}{
		{3, 0.4},
		{7, 0.6},
		{12, 1.0},
		{18, 0.8},
		{25, 0.8},
		{50, 3.0},
	}
	for _, c := range cases {
		if got := ToleranceFor(c.km); got != c.want {
			t.Errorf("ToleranceFor(%v) = %v want %v", c.km, got, c.want)
		}
	}
}
