package naming

import "testing"

func TestSanitizeCoordinate(t *testing.T) {
	cases := []struct {
		coord float64
		isLat bool
		want  string
	}{
		{37.1234, true, "37p1234N"},
		{-37.1234, true, "37p1234S"},
		{-122.5, false, "122p5000W"},
		{122.5, false, "122p5000E"},
	}
	for _, c := range cases {
		if got := SanitizeCoordinate(c.coord, c.isLat); got != c.want {
			t.Fatalf("SanitizeCoordinate(%v, %v) = %q, want %q", c.coord, c.isLat, got, c.want)
		}
	}
}

func TestBBoxString(t *testing.T) {
	got := BBoxString(1, 2, 3, 4)
	want := "1.0000_2.0000_3.0000_4.0000"
	if got != want {
		t.Fatalf("BBoxString = %q, want %q", got, want)
	}
}
