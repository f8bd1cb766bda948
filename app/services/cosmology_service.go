package services

import (
	"math"

	"github.com/skyportal/source-query/config"
	"github.com/skyportal/source-query/utils"
	"gonum.org/v1/gonum/integrate/quad"
)

// CosmologyService converts redshift into distances for a flat LCDM universe
type CosmologyService interface {
	// LuminosityDistance in Mpc; zero for non-positive redshift
	LuminosityDistance(z float64) float64
}

// FlatLambdaCDM ignores radiation, which is below 1e-4 of the density at the redshifts of
// transient hosts
type FlatLambdaCDM struct {
	H0  float64
	Om0 float64
	// quadrature points
	n int
}

func NewCosmologyService(cfg config.CosmologyConfig) *FlatLambdaCDM {
	h0, om0 := cfg.H0, cfg.Om0
	if h0 <= 0 || math.IsNaN(h0) || math.IsInf(h0, 0) {
		h0 = utils.DefaultHubbleConstant
	}
	// unset or unphysical matter density falls back on its own
	if !(om0 > 0 && om0 <= 1) {
		om0 = utils.DefaultOmegaMatter
	}
	return &FlatLambdaCDM{H0: h0, Om0: om0, n: 64}
}

// hubbleDistance is c/H0 in Mpc
func (c *FlatLambdaCDM) hubbleDistance() float64 {
	return utils.SpeedOfLightKmS / c.H0
}

func (c *FlatLambdaCDM) invE(z float64) float64 {
	zp1 := 1 + z
	return 1 / math.Sqrt(c.Om0*zp1*zp1*zp1+(1-c.Om0))
}

// ComovingDistance in Mpc
func (c *FlatLambdaCDM) ComovingDistance(z float64) float64 {
	if z <= 0 {
		return 0
	}
	return c.hubbleDistance() * quad.Fixed(c.invE, 0, z, c.n, nil, 0)
}

func (c *FlatLambdaCDM) LuminosityDistance(z float64) float64 {
	return (1 + z) * c.ComovingDistance(z)
}
