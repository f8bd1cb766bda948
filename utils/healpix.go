package utils

import (
	"math"
)

// HealpixIndex returns the NESTED healpix index at HealpixNside for an ICRS position in degrees.
func HealpixIndex(raDeg, decDeg float64) int64 {
	return AngToPixNest(HealpixNside, raDeg, decDeg)
}

// AngToPixNest is ang2pix in the NESTED scheme. nside must be a power of two.
func AngToPixNest(nside int64, raDeg, decDeg float64) int64 {
	z := math.Sin(decDeg * math.Pi / 180)
	za := math.Abs(z)
	phi := math.Mod(raDeg*math.Pi/180, 2*math.Pi)
	if phi < 0 {
		phi += 2 * math.Pi
	}
	tt := phi * 2 / math.Pi // [0,4)
	if tt >= 4 {
		tt = 0
	}

	fn := float64(nside)
	var face, ix, iy int64

	if za <= 2.0/3.0 {
		temp1 := fn * (0.5 + tt)
		temp2 := fn * z * 0.75
		jp := int64(temp1 - temp2)
		jm := int64(temp1 + temp2)
		ifp := jp / nside
		ifm := jm / nside
		switch {
		case ifp == ifm:
			face = ifp | 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
		ix = jm & (nside - 1)
		iy = nside - (jp & (nside - 1)) - 1
	} else {
		ntt := int64(tt)
		if ntt >= 4 {
			ntt = 3
		}
		tp := tt - float64(ntt)
		tmp := fn * math.Sqrt(3*(1-za))

		jp := int64(tp * tmp)
		jm := int64((1 - tp) * tmp)
		if jp >= nside {
			jp = nside - 1
		}
		if jm >= nside {
			jm = nside - 1
		}
		if z >= 0 {
			face = ntt
			ix = nside - jm - 1
			iy = nside - jp - 1
		} else {
			face = ntt + 8
			ix = jp
			iy = jm
		}
	}

	return face*nside*nside + spreadBits(ix) + spreadBits(iy)<<1
}

// HealpixPixelArea is the solid angle of one pixel at nside, in steradians.
func HealpixPixelArea(nside int64) float64 {
	return 4 * math.Pi / (12 * float64(nside) * float64(nside))
}

// spreadBits interleaves zeros between the low 32 bits of v.
func spreadBits(v int64) int64 {
	x := uint64(v) & 0xFFFFFFFF
	x = (x | x<<16) & 0x0000FFFF0000FFFF
	x = (x | x<<8) & 0x00FF00FF00FF00FF
	x = (x | x<<4) & 0x0F0F0F0F0F0F0F0F
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return int64(x)
}
