package utils

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAngToPixNestBasePixels(t *testing.T) {
	tests := []struct {
		name     string
		ra, dec  float64
		expected int64
	}{
		{"equator ra 0", 0, 0, 4},
		{"north pole", 45, 90, 0},
		{"south pole", 45, -90, 8},
		{"north cap second face", 135, 60, 1},
		{"south cap last face", 315, -60, 11},
		{"equator ra 90", 90, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AngToPixNest(1, tt.ra, tt.dec))
		})
	}
}

func TestAngToPixNestIsHierarchical(t *testing.T) {
	positions := [][2]float64{{10.5, 41.2}, {201.3, -43.0}, {359.9, 0.1}, {83.6, 22.0}, {270, -89}}
	for _, p := range positions {
		fine := AngToPixNest(1<<10, p[0], p[1])
		coarse := AngToPixNest(1<<4, p[0], p[1])
		// every nested child pixel shifts down to its parent
		assert.Equal(t, coarse, fine>>(2*6), "position %v", p)
	}
}

func TestHealpixIndexRange(t *testing.T) {
	npix := 12 * HealpixNside * HealpixNside
	for _, p := range [][2]float64{{0, 0}, {359.999999, 89.9999}, {180, -89.9999}, {123.456, -12.34}} {
		idx := HealpixIndex(p[0], p[1])
		assert.GreaterOrEqual(t, idx, int64(0))
		assert.Less(t, idx, npix)
	}
}

func TestHealpixPixelArea(t *testing.T) {
	assert.InDelta(t, math.Pi/3, HealpixPixelArea(1), 1e-12)
}

func TestWithinConeArcsecond(t *testing.T) {
	ra0, dec0 := 150.0, 2.0
	radius, err := RadiusToDegrees(1, "arcsec")
	require.NoError(t, err)

	// offsets along declination are exact angular distances
	assert.False(t, WithinCone(ra0, dec0, radius, ra0, dec0+2.0/3600))
	assert.True(t, WithinCone(ra0, dec0, radius, ra0, dec0+0.5/3600))
}

func TestAngularSeparation(t *testing.T) {
	assert.InDelta(t, 1.0, AngularSeparationDeg(10, 0, 11, 0), 1e-9)
	assert.InDelta(t, 90.0, AngularSeparationDeg(0, 0, 0, 90), 1e-9)
	assert.InDelta(t, 2.0/3600, AngularSeparationDeg(150, 2, 150, 2+2.0/3600), 1e-12)
}

func TestGalacticCoordinates(t *testing.T) {
	// Galactic center and north galactic pole
	l, b := GalacticCoordinates(266.40498829, -28.93617776)
	assert.InDelta(t, 0.0, math.Min(l, 360-l), 1e-4)
	assert.InDelta(t, 0.0, b, 1e-4)

	_, b = GalacticCoordinates(192.85948121, 27.12825118)
	assert.InDelta(t, 90.0, b, 1e-4)
}

func TestRadiusToDegrees(t *testing.T) {
	tests := []struct {
		unit    string
		want    float64
		wantErr bool
	}{
		{"deg", 1, false},
		{"degrees", 1, false},
		{"arcmin", 1.0 / 60, false},
		{"arcsec", 1.0 / 3600, false},
		{"parsec", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			got, err := RadiusToDegrees(1, tt.unit)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-15)
		})
	}
}

func TestMJD(t *testing.T) {
	assert.InDelta(t, 59001.0, TimeToMJD(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)), 1e-9)
	assert.InDelta(t, 40587.5, TimeToMJD(time.Date(1970, 1, 1, 12, 0, 0, 0, time.UTC)), 1e-9)

	back := MJDToTime(59001.25)
	assert.Equal(t, time.Date(2020, 6, 1, 6, 0, 0, 0, time.UTC), back)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2020-06-01", "2020-06-01T00:00:00", "2020-06-01T00:00:00Z", "2020-06-01 00:00:00"} {
		got, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), got, s)
	}

	_, err := ParseDate("not a date")
	assert.Error(t, err)
	_, err = ParseDate("   ")
	assert.Error(t, err)
}

func TestParseBoolToken(t *testing.T) {
	for _, s := range []string{"true", "True", "1", "yes", "t", "on"} {
		v, err := ParseBoolToken(s)
		require.NoError(t, err)
		assert.True(t, v, s)
	}
	for _, s := range []string{"false", "0", "No", "f", "off"} {
		v, err := ParseBoolToken(s)
		require.NoError(t, err)
		assert.False(t, v, s)
	}
	_, err := ParseBoolToken("maybe")
	assert.Error(t, err)
}

func TestSplitListAndUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList(" a, b,,c ,"))
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []int{3, 1, 2}, Unique([]int{3, 1, 3, 2, 1}))
}

func TestContextKeysAreDistinct(t *testing.T) {
	keys := []contextKey{RequestIDKey, UserAgentKey, IPAddressKey, EndpointKey, TimeoutKey}
	assert.Len(t, Unique(keys), len(keys))
}
