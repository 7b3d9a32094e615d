package geo

import (
	"errors"
	"math"
	"strings"
)

// ErrTruncatedPolyline indicates an encoded polyline that ends in the middle
// of a varint chunk run.
var ErrTruncatedPolyline = errors.New("polyline: truncated input")

const polylineScale = 1e5

// DecodePolyline decodes a polyline in the provider's signed-delta encoding
// (5 bits per byte, continuation bit 0x20, bias 63) into an ordered point
// sequence.
func DecodePolyline(encoded string) ([]Point, error) {
	var points []Point
	var lat, lng int64

	idx := 0
	for idx < len(encoded) {
		dLat, next, err := decodeDelta(encoded, idx)
		if err != nil {
			return nil, err
		}
		dLng, next, err := decodeDelta(encoded, next)
		if err != nil {
			return nil, err
		}
		idx = next

		lat += dLat
		lng += dLng
		points = append(points, Point{
			Lat: float64(lat) / polylineScale,
			Lng: float64(lng) / polylineScale,
		})
	}
	return points, nil
}

func decodeDelta(encoded string, idx int) (int64, int, error) {
	var result int64
	var shift uint
	for {
		if idx >= len(encoded) {
			return 0, idx, ErrTruncatedPolyline
		}
		b := int64(encoded[idx]) - 63
		idx++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}
	// zig-zag: lowest bit carries the sign
	if result&1 != 0 {
		return ^(result >> 1), idx, nil
	}
	return result >> 1, idx, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(points []Point) string {
	var sb strings.Builder
	var prevLat, prevLng int64
	for _, p := range points {
		lat := int64(math.Round(p.Lat * polylineScale))
		lng := int64(math.Round(p.Lng * polylineScale))
		encodeDelta(&sb, lat-prevLat)
		encodeDelta(&sb, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return sb.String()
}

func encodeDelta(sb *strings.Builder, v int64) {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		sb.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	sb.WriteByte(byte(u + 63))
}
