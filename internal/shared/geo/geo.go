package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineKm returns the great-circle distance between two coordinates in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// PathKm sums the consecutive-pair great-circle distances along a path.
func PathKm(path []Point) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += HaversineKm(path[i-1].Lat, path[i-1].Lon, path[i].Lat, path[i].Lon)
	}
	return total
}
