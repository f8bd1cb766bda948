package utils

import (
	"fmt"
	"math"
	"strings"
)

const degToRad = math.Pi / 180

// icrsToGalactic rotates ICRS unit vectors into the Galactic frame.
var icrsToGalactic = [3][3]float64{
	{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	{0.4941094278755837, -0.4448296299600112, 0.7469822444972189},
	{-0.8676661490190047, -0.1980763734312015, 0.4559837761750669},
}

// UnitVector returns the cartesian unit vector of a position in degrees.
func UnitVector(raDeg, decDeg float64) [3]float64 {
	ra := raDeg * degToRad
	dec := decDeg * degToRad
	return [3]float64{
		math.Cos(dec) * math.Cos(ra),
		math.Cos(dec) * math.Sin(ra),
		math.Sin(dec),
	}
}

// WithinCone reports whether (ra, dec) lies inside the cone of radiusDeg around (ra0, dec0),
// using the same dot-product test as the SQL cone predicate.
func WithinCone(ra0, dec0, radiusDeg, ra, dec float64) bool {
	a := UnitVector(ra0, dec0)
	b := UnitVector(ra, dec)
	dot := a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
	return dot >= math.Cos(radiusDeg*degToRad)
}

// AngularSeparationDeg is the great-circle distance between two positions (Vincenty form).
func AngularSeparationDeg(ra1, dec1, ra2, dec2 float64) float64 {
	dra := (ra2 - ra1) * degToRad
	d1 := dec1 * degToRad
	d2 := dec2 * degToRad

	num1 := math.Cos(d2) * math.Sin(dra)
	num2 := math.Cos(d1)*math.Sin(d2) - math.Sin(d1)*math.Cos(d2)*math.Cos(dra)
	den := math.Sin(d1)*math.Sin(d2) + math.Cos(d1)*math.Cos(d2)*math.Cos(dra)
	return math.Atan2(math.Hypot(num1, num2), den) / degToRad
}

// GalacticCoordinates converts ICRS degrees to Galactic longitude and latitude in degrees.
func GalacticCoordinates(raDeg, decDeg float64) (l, b float64) {
	v := UnitVector(raDeg, decDeg)
	var g [3]float64
	for i := 0; i < 3; i++ {
		g[i] = icrsToGalactic[i][0]*v[0] + icrsToGalactic[i][1]*v[1] + icrsToGalactic[i][2]*v[2]
	}
	l = math.Atan2(g[1], g[0]) / degToRad
	if l < 0 {
		l += 360
	}
	b = math.Asin(math.Max(-1, math.Min(1, g[2]))) / degToRad
	return l, b
}

// RadiusToDegrees converts a cone radius expressed in unit ("deg", "arcmin" or "arcsec").
func RadiusToDegrees(radius float64, unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "deg", "degree", "degrees":
		return radius, nil
	case "arcmin", "arcminute", "arcminutes":
		return radius / 60, nil
	case "arcsec", "arcsecond", "arcseconds":
		return radius / 3600, nil
	}
	return 0, fmt.Errorf("unknown radius unit %q", unit)
}
