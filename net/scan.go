package net

import (
	"fmt"
	"math/rand"
	"strings"
)

// Measure is one lidar sample. Angle is in degrees, Distance in mm.
type Measure struct {
	Angle    float64
	Distance float64
	Quality  float64
}

// String formats m as the wire record "angle:distance:quality;".
func (m Measure) String() string {
	return fmt.Sprintf("%.4f:%.2f:%.2f;", m.Angle, m.Distance, m.Quality)
}

// FormatScan concatenates the records of one revolution.
func FormatScan(ms []Measure) string {
	var sb strings.Builder
	for _, m := range ms {
		sb.WriteString(m.String())
	}
	return sb.String()
}

// MockLidar produces plausible scans without hardware: evenly spaced
// angles over one revolution with random distances and qualities.
type MockLidar struct {
	Points      int
	MaxDistance float64 // mm
	rng         *rand.Rand
}

func NewMockLidar(points int, seed int64) *MockLidar {
	return &MockLidar{
		Points:      points,
		MaxDistance: 6000,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Scan returns one revolution of samples.
func (l *MockLidar) Scan() []Measure {
	ms := make([]Measure, l.Points)
	step := 360.0 / float64(l.Points)
	for i := range ms {
		ms[i] = Measure{
			Angle:    float64(i) * step,
			Distance: l.rng.Float64() * l.MaxDistance,
			Quality:  float64(l.rng.Intn(48)),
		}
	}
	return ms
}
