package geospatial

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

var (
	ErrLengthMismatch   = errors.New("latitudes and longitudes must have the same length")
	ErrInvalidLatitude  = errors.New("latitude out of range")
	ErrInvalidLongitude = errors.New("longitude out of range")
)

// ParsePoints pairs decimal latitude/longitude strings into points (orb points are lon, lat)
func ParsePoints(latitudes, longitudes []string) ([]orb.Point, error) {
	if len(latitudes) != len(longitudes) {
		return nil, ErrLengthMismatch
	}

	points := make([]orb.Point, len(latitudes))
	for i := range latitudes {
		lat, err := strconv.ParseFloat(latitudes[i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude %q: %w", latitudes[i], err)
		}
		lon, err := strconv.ParseFloat(longitudes[i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude %q: %w", longitudes[i], err)
		}
		if lat < -90 || lat > 90 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLatitude, lat)
		}
		if lon < -180 || lon > 180 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidLongitude, lon)
		}
		points[i] = orb.Point{lon, lat}
	}
	return points, nil
}

// Geometry returns a polygon when there are at least three points, otherwise the points themselves
func Geometry(points []orb.Point) orb.Geometry {
	if len(points) < 3 {
		return orb.MultiPoint(points)
	}
	ring := make(orb.Ring, 0, len(points)+1)
	ring = append(ring, points...)
	if !ring.Closed() {
		ring = append(ring, points[0])
	}
	return orb.Polygon{ring}
}

// CalculateArea calculates the area in square meters for a geometry
func CalculateArea(geometry orb.Geometry) float64 {
	return math.Abs(geo.Area(geometry))
}

// CalculateCentroid calculates the centroid of a geometry
func CalculateCentroid(geometry orb.Geometry) orb.Point {
	centroid, _ := planar.CentroidArea(geometry)
	return centroid
}

// ConvertToHectares converts square meters to hectares
func ConvertToHectares(sqMeters float64) float64 {
	return sqMeters / 10000
}
