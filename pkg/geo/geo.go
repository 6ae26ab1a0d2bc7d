package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

var compassPoints = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DistanceMeters returns the haversine distance between two points given in
// decimal degrees. Inputs are not range checked; out-of-range values are
// used as-is.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180.0
	phi2 := lat2 * math.Pi / 180.0
	dPhi := (lat2 - lat1) * math.Pi / 180.0
	dLambda := (lon2 - lon1) * math.Pi / 180.0

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// DirectionFromDegrees maps a bearing to one of 16 compass points. Each point
// covers a 22.5 degree sector centered on its bearing; input wraps modulo 360.
// A NaN or infinite bearing has no direction and yields "".
func DirectionFromDegrees(degrees float64) string {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return ""
	}
	d := math.Mod(degrees+11.25, 360)
	if d < 0 {
		d += 360
	}
	idx := int(d/22.5) % len(compassPoints)
	return compassPoints[idx]
}
