package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// nodeIDSeparator joins the latitude and longitude halves of a node
// identifier. The routing service and this client must agree on it exactly.
const nodeIDSeparator = "_"

// Valid reports whether p is a finite coordinate within the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) {
		return false
	}
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Round4 returns p with both components rounded to 4 decimal places, the
// precision map clicks are reported at.
func (p Point) Round4() Point {
	return Point{
		Lat: math.Round(p.Lat*10000) / 10000,
		Lon: math.Round(p.Lon*10000) / 10000,
	}
}

// DecodeNodeID parses a node identifier of the form "<lat>_<lon>" into a
// Point. Both halves must parse as decimal numbers and the identifier must
// contain exactly one separator; anything else is a decode failure.
func DecodeNodeID(id string) (Point, error) {
	parts := strings.Split(id, nodeIDSeparator)
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("node id %q: want exactly one %q separator", id, nodeIDSeparator)
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Point{}, fmt.Errorf("node id %q: latitude: %w", id, err)
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("node id %q: longitude: %w", id, err)
	}

	return Point{Lat: lat, Lon: lon}, nil
}

// DecodeNodeIDs decodes a node identifier sequence in order, failing on the
// first identifier that does not match the format contract.
func DecodeNodeIDs(ids []string) ([]Point, error) {
	points := make([]Point, 0, len(ids))
	for _, id := range ids {
		p, err := DecodeNodeID(id)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// EncodeNodeID renders a Point in the service's node identifier format.
func EncodeNodeID(p Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) +
		nodeIDSeparator +
		strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// DistanceMeters calculates great-circle distance between two points using
// the Haversine formula.
func DistanceMeters(p1, p2 Point) float64 {
	if p1.Lat == p2.Lat && p1.Lon == p2.Lon {
		return 0
	}

	lat1 := p1.Lat * math.Pi / 180
	lon1 := p1.Lon * math.Pi / 180
	lat2 := p2.Lat * math.Pi / 180
	lon2 := p2.Lon * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	const earthRadius = 6371000
	return earthRadius * c
}
