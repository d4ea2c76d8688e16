package norad

import (
	"math"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
)

// nearEarth is the SGP4 model.
type nearEarth struct {
	base

	c5     float64
	omgcof float64
	xmcof  float64
	delmo  float64
	sinmo  float64

	// simple drops the higher order drag terms for perigees below 220 km.
	simple bool

	d2, d3, d4          float64
	t3cof, t4cof, t5cof float64
}

func newNearEarth(o *Orbit) *nearEarth {
	p := &nearEarth{base: newBase(o)}

	p.c5 = 2.0 * p.coef1 * p.aodp * p.betao2 *
		(1.0 + 2.75*(p.etasq+p.eeta) + p.eeta*p.etasq)
	p.omgcof = p.bstar * p.c3 * math.Cos(p.argp)
	if p.ecc > 1.0e-4 {
		p.xmcof = -astro.TwoThirds * p.coef * p.bstar * astro.AE / p.eeta
	}
	p.delmo = math.Pow(1.0+p.eta*math.Cos(p.m0), 3.0)
	p.sinmo = math.Sin(p.m0)

	p.simple = p.aodp*(1.0-p.ecc)/astro.AE < (220.0/astro.XKMPER + astro.AE)
	if !p.simple {
		c1sq := p.c1 * p.c1
		p.d2 = 4.0 * p.aodp * p.tsi * c1sq

		temp := p.d2 * p.tsi * p.c1 / 3.0

		p.d3 = (17.0*p.aodp + p.s4) * temp
		p.d4 = 0.5 * temp * p.aodp * p.tsi * (221.0*p.aodp + 31.0*p.s4) * p.c1
		p.t3cof = p.d2 + 2.0*c1sq
		p.t4cof = 0.25 * (3.0*p.d3 + p.c1*(12.0*p.d2+10.0*c1sq))
		p.t5cof = 0.2 * (3.0*p.d4 + 12.0*p.c1*p.d3 + 6.0*p.d2*p.d2 + 15.0*c1sq*(2.0*p.d2+c1sq))
	}

	return p
}

func (p *nearEarth) position(tsince float64) (coord.ECI, error) {
	// Secular gravity and atmospheric drag.
	xmdf := p.m0 + p.xmdot*tsince
	omgadf := p.argp + p.omgdot*tsince
	xnoddf := p.raan + p.xnodot*tsince
	omega := omgadf
	xmp := xmdf
	tsq := tsince * tsince
	xnode := xnoddf + p.xnodcf*tsq
	tempa := 1.0 - p.c1*tsince
	tempe := p.bstar * p.c4 * tsince
	templ := p.t2cof * tsq

	if !p.simple {
		delomg := p.omgcof * tsince
		delm := p.xmcof * (math.Pow(1.0+p.eta*math.Cos(xmdf), 3.0) - p.delmo)
		temp := delomg + delm

		xmp = xmdf + temp
		omega = omgadf - temp

		tcube := tsq * tsince
		tfour := tsince * tcube

		tempa = tempa - p.d2*tsq - p.d3*tcube - p.d4*tfour
		tempe = tempe + p.bstar*p.c5*(math.Sin(xmp)-p.sinmo)
		templ = templ + p.t3cof*tcube + tfour*(p.t4cof+tsince*p.t5cof)
	}

	a := p.aodp * astro.Sqr(tempa)
	e := p.ecc - tempe
	xl := xmp + omega + xnode + p.xnodp*templ
	xn := astro.XKE / math.Pow(a, 1.5)

	// The long-period terms take the secular perigee argument without the
	// drag correction applied to omega.
	return p.finalPosition(p.incl, omgadf, e, a, xl, xnode, xn, tsince)
}
