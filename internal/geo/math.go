package geo

import "math"

// EarthRadius is the sphere radius of the web-mercator projection, in meters.
const EarthRadius = 6378137.0

// MaxLatitude is the latitude where web-mercator maps to a square world.
const MaxLatitude = 85.05112878

func clampLat(lat float64) float64 {
	if lat > MaxLatitude {
		return MaxLatitude
	} else if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// LonLatToMercator projects WGS84 degrees into web-mercator meters.
func LonLatToMercator(lon, lat float64) (x, y float64) {
	lat = clampLat(lat)
	x = EarthRadius * lon * math.Pi / 180
	y = EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

// MercatorToLonLat is the inverse of LonLatToMercator.
func MercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x / EarthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/EarthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// LonLatToTile returns fractional XYZ tile coordinates at zoom z.
// Tile y grows southwards, as in slippy-map URLs.
func LonLatToTile(lon, lat float64, z int) (x, y float64) {
	n := float64(int(1) << z)
	lat = clampLat(lat)
	latRad := lat * math.Pi / 180
	x = (lon + 180) / 360 * n
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return x, y
}

// TileToLonLat returns the north-west corner of fractional tile (x, y) at zoom z.
func TileToLonLat(x, y float64, z int) (lon, lat float64) {
	n := float64(int(1) << z)
	lon = x/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
	return lon, lat
}

// TileMercatorBounds returns the web-mercator extent of tile (x, y, z).
func TileMercatorBounds(x, y, z int) BBox {
	span := 2 * math.Pi * EarthRadius / float64(int(1)<<z)
	origin := math.Pi * EarthRadius
	return BBox{
		MinX: -origin + float64(x)*span,
		MaxX: -origin + float64(x+1)*span,
		MaxY: origin - float64(y)*span,
		MinY: origin - float64(y+1)*span,
	}
}
