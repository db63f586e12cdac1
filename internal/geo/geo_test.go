package geo

import (
	"math"
	"testing"
	"time"
)

func TestDistanceKnownPoints(t *testing.T) {
	cases := []struct {
		name   string
		a, b   Point
		wantKm float64
		tolKm  float64
	}{
		{"same point", Point{10, 10}, Point{10, 10}, 0, 0.001},
		// Reference scenario from the recipient matching flow.
		{"diagonal near equator", Point{10.0, 10.0}, Point{10.05, 10.05}, 7.8, 0.2},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111.19, 0.5},
		{"longitude shrinks at high latitude", Point{60, 0}, Point{60, 1}, 55.6, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Distance(tc.a, tc.b)
			if math.Abs(got-tc.wantKm) > tc.tolKm {
				t.Errorf("Distance(%v, %v) = %.3f km, want %.3f±%.3f", tc.a, tc.b, got, tc.wantKm, tc.tolKm)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Point{-23.55, -46.63}
	b := Point{-22.90, -43.17}
	if d1, d2 := Distance(a, b), Distance(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("distance not symmetric: %f vs %f", d1, d2)
	}
}

func TestPointValid(t *testing.T) {
	valid := []Point{{0, 0}, {90, 180}, {-90, -180}, {10.05, 10.05}}
	for _, p := range valid {
		if !p.Valid() {
			t.Errorf("Point %v should be valid", p)
		}
	}
	invalid := []Point{{91, 0}, {-91, 0}, {0, 181}, {0, -181}}
	for _, p := range invalid {
		if p.Valid() {
			t.Errorf("Point %v should be invalid", p)
		}
	}
}

func TestIndexQueryRadius(t *testing.T) {
	ix := NewIndex()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ix.Insert(Entry{ID: "near", DonorID: "d1", Loc: Point{10.05, 10.05}, CreatedAt: base})
	ix.Insert(Entry{ID: "far", DonorID: "d2", Loc: Point{11.0, 11.0}, CreatedAt: base})

	got := ix.Query(Point{10, 10}, 10, "")
	if len(got) != 1 || got[0].ID != "near" {
		t.Fatalf("radius 10 query = %+v, want only %q", got, "near")
	}

	if got := ix.Query(Point{10, 10}, 5, ""); len(got) != 0 {
		t.Fatalf("radius 5 query = %+v, want empty", got)
	}
}

func TestIndexExcludesDonor(t *testing.T) {
	ix := NewIndex()
	now := time.Now()
	ix.Insert(Entry{ID: "mine", DonorID: "d1", Loc: Point{10.001, 10.001}, CreatedAt: now})
	ix.Insert(Entry{ID: "theirs", DonorID: "d2", Loc: Point{10.002, 10.002}, CreatedAt: now})

	got := ix.Query(Point{10, 10}, 10, "d1")
	if len(got) != 1 || got[0].ID != "theirs" {
		t.Fatalf("query excluding d1 = %+v, want only %q", got, "theirs")
	}
}

func TestIndexOrdering(t *testing.T) {
	ix := NewIndex()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// c is closest, then a and b at the same spot with different ages,
	// then two ties on both distance and age resolved by id.
	ix.Insert(Entry{ID: "a", DonorID: "d", Loc: Point{10.02, 10.0}, CreatedAt: base.Add(time.Hour)})
	ix.Insert(Entry{ID: "b", DonorID: "d", Loc: Point{10.02, 10.0}, CreatedAt: base})
	ix.Insert(Entry{ID: "c", DonorID: "d", Loc: Point{10.01, 10.0}, CreatedAt: base})
	ix.Insert(Entry{ID: "z1", DonorID: "d", Loc: Point{10.03, 10.0}, CreatedAt: base})
	ix.Insert(Entry{ID: "z0", DonorID: "d", Loc: Point{10.03, 10.0}, CreatedAt: base})

	got := ix.Query(Point{10, 10}, 20, "")
	want := []string{"c", "b", "a", "z0", "z1"}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("result[%d] = %q, want %q (full: %+v)", i, got[i].ID, id, got)
		}
	}
}

func TestIndexAntimeridianWrap(t *testing.T) {
	ix := NewIndex()
	ix.Insert(Entry{ID: "east", DonorID: "d", Loc: Point{0, 179.99}, CreatedAt: time.Now()})
	ix.Insert(Entry{ID: "west", DonorID: "d", Loc: Point{0, -179.98}, CreatedAt: time.Now()})

	// The center sits on the west side of the date line; both entries are
	// within a few kilometers along the great circle.
	got := ix.Query(Point{0, -179.99}, 10, "")
	if len(got) != 2 {
		t.Fatalf("query across the antimeridian = %+v, want both entries", got)
	}
	for _, c := range got {
		if c.DistanceKm > 10 {
			t.Errorf("%s at %.2f km, want < 10", c.ID, c.DistanceKm)
		}
	}
	if got[0].ID != "west" {
		t.Errorf("nearest = %q, want %q", got[0].ID, "west")
	}
}

func TestIndexInvalidLocationSkipped(t *testing.T) {
	ix := NewIndex()
	ix.Insert(Entry{ID: "bad", DonorID: "d", Loc: Point{200, 200}, CreatedAt: time.Now()})
	if got := ix.Query(Point{10, 10}, 500, ""); len(got) != 0 {
		t.Fatalf("invalid location surfaced in query: %+v", got)
	}
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	ix.Insert(Entry{ID: "x", DonorID: "d", Loc: Point{10, 10}, CreatedAt: time.Now()})
	ix.Remove("x")
	ix.Remove("x") // second remove is a no-op
	if got := ix.Query(Point{10, 10}, 10, ""); len(got) != 0 {
		t.Fatalf("removed entry still returned: %+v", got)
	}
}

func TestIndexReinsertMoves(t *testing.T) {
	ix := NewIndex()
	now := time.Now()
	ix.Insert(Entry{ID: "x", DonorID: "d", Loc: Point{10, 10}, CreatedAt: now})
	ix.Insert(Entry{ID: "x", DonorID: "d", Loc: Point{20, 20}, CreatedAt: now})

	if got := ix.Query(Point{10, 10}, 10, ""); len(got) != 0 {
		t.Fatalf("entry still at old position: %+v", got)
	}
	if got := ix.Query(Point{20, 20}, 10, ""); len(got) != 1 {
		t.Fatalf("entry missing at new position: %+v", got)
	}
}
