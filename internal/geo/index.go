package geo

import (
	"math"
	"sort"
	"sync"
	"time"
)

// cellDeg is the coarse grid resolution. 0.1 degrees of latitude is
// roughly 11 km, so a default-radius query touches only a handful of cells.
const cellDeg = 0.1

// lonCells is the number of longitude cells around the full circle.
const lonCells = int(360 / cellDeg)

type cellKey struct {
	latCell int
	lonCell int
}

// wrapLonCell maps a cell index onto the canonical [-180, 180) range so
// queries and entries on either side of the antimeridian meet in the
// same bucket.
func wrapLonCell(c int) int {
	c %= lonCells
	if c >= lonCells/2 {
		c -= lonCells
	} else if c < -lonCells/2 {
		c += lonCells
	}
	return c
}

// Entry is one indexed listing position.
type Entry struct {
	ID        string
	DonorID   string
	Loc       Point
	CreatedAt time.Time
}

// Candidate is a query result with its distance from the query center.
type Candidate struct {
	ID         string
	DonorID    string
	DistanceKm float64
	CreatedAt  time.Time
}

// Index maintains listing positions in coarse grid buckets and answers
// radius queries. Insert and Remove are O(1); Query scans only the cells
// overlapping the radius bounding box.
type Index struct {
	mu    sync.RWMutex
	cells map[cellKey]map[string]Entry
	byID  map[string]cellKey
}

func NewIndex() *Index {
	return &Index{
		cells: make(map[cellKey]map[string]Entry),
		byID:  make(map[string]cellKey),
	}
}

func keyFor(p Point) cellKey {
	return cellKey{
		latCell: int(math.Floor(p.Lat / cellDeg)),
		lonCell: wrapLonCell(int(math.Floor(p.Lon / cellDeg))),
	}
}

// Insert adds or replaces an entry. Entries with an invalid location are
// ignored: they must never surface in query results, and never error.
func (ix *Index) Insert(e Entry) {
	if !e.Loc.Valid() {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if old, ok := ix.byID[e.ID]; ok {
		delete(ix.cells[old], e.ID)
	}
	k := keyFor(e.Loc)
	if ix.cells[k] == nil {
		ix.cells[k] = make(map[string]Entry)
	}
	ix.cells[k][e.ID] = e
	ix.byID[e.ID] = k
}

// Remove drops an entry by id. Unknown ids are a no-op.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	k, ok := ix.byID[id]
	if !ok {
		return
	}
	delete(ix.cells[k], id)
	if len(ix.cells[k]) == 0 {
		delete(ix.cells, k)
	}
	delete(ix.byID, id)
}

// Query returns entries within radiusKm of center, excluding those owned
// by excludeDonorID, ordered by ascending distance with ties broken by
// CreatedAt then ID.
func (ix *Index) Query(center Point, radiusKm float64, excludeDonorID string) []Candidate {
	if !center.Valid() || radiusKm <= 0 {
		return nil
	}

	// Bounding box in grid cells. Longitude degrees shrink toward the
	// poles, so widen by the cosine of the latitude.
	latSpan := radiusKm / 111.0
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	lonSpan := latSpan
	if cosLat > 0.01 {
		lonSpan = latSpan / cosLat
	}

	// Latitude clamps at the poles; longitude wraps across the
	// antimeridian. Either way the scan never exceeds the grid.
	minLat := int(math.Floor(math.Max(center.Lat-latSpan, -90) / cellDeg))
	maxLat := int(math.Floor(math.Min(center.Lat+latSpan, 90) / cellDeg))
	minLon := int(math.Floor((center.Lon - lonSpan) / cellDeg))
	maxLon := int(math.Floor((center.Lon + lonSpan) / cellDeg))
	if maxLon-minLon+1 >= lonCells {
		minLon, maxLon = -lonCells/2, lonCells/2-1
	}

	ix.mu.RLock()
	var out []Candidate
	for lc := minLat; lc <= maxLat; lc++ {
		for nc := minLon; nc <= maxLon; nc++ {
			for _, e := range ix.cells[cellKey{lc, wrapLonCell(nc)}] {
				if excludeDonorID != "" && e.DonorID == excludeDonorID {
					continue
				}
				d := Distance(center, e.Loc)
				if d <= radiusKm {
					out = append(out, Candidate{
						ID:         e.ID,
						DonorID:    e.DonorID,
						DistanceKm: d,
						CreatedAt:  e.CreatedAt,
					})
				}
			}
		}
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
