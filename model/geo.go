package model

import (
	"math"
	"sort"
)

const earthRadiusMeters = 6371000

// Great circle distance in meters.
func HaversineDistance(aLat, aLon, bLat, bLon float64) float64 {
	aLatRad := aLat * math.Pi / 180
	aLonRad := aLon * math.Pi / 180
	bLatRad := bLat * math.Pi / 180
	bLonRad := bLon * math.Pi / 180
	deltaLat := aLatRad - bLatRad
	deltaLon := aLonRad - bLonRad

	a := math.Cos(aLatRad)*math.Cos(bLatRad)*math.Pow(math.Sin(deltaLon/2), 2) + math.Pow(math.Sin(deltaLat/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return c * earthRadiusMeters
}

// Builds a walk network connecting every pair of stops within
// maxDistance meters of each other, as the crow flies.
//
// Stops are sorted by latitude so that only pairs within the
// latitude band of maxDistance need to be compared.
func WalkNetworkFromStops(stops []Stop, maxDistance float64) *WalkNetwork {
	w := NewWalkNetwork()
	if maxDistance <= 0 {
		return w
	}

	sorted := make([]Stop, len(stops))
	copy(sorted, stops)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Lat < sorted[j].Lat
	})

	// One degree of latitude is roughly 111.2km everywhere.
	latBand := maxDistance / (earthRadiusMeters * math.Pi / 180)

	for i, a := range sorted {
		for _, b := range sorted[i+1:] {
			if b.Lat-a.Lat > latBand {
				break
			}
			d := HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)
			if d <= maxDistance {
				w.AddEdge(a.ID, b.ID, d)
			}
		}
	}

	return w
}
