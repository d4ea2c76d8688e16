package norad

import (
	"fmt"
	"math"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
	"github.com/star/norad/internal/julian"
)

const keplerMaxIter = 10

// base holds the time-invariant coefficients shared by SGP4 and SDP4.
type base struct {
	epoch julian.Date

	// Epoch elements.
	incl  float64
	ecc   float64
	raan  float64
	argp  float64
	m0    float64
	bstar float64

	cosio, sinio  float64
	theta2        float64
	x3thm1        float64
	x1mth2        float64
	x7thm1        float64
	eosq          float64
	betao, betao2 float64

	aodp, xnodp float64 // recovered semi-minor axis (AE), mean motion (rad/min)
	perigee     float64 // km
	s4, qoms24  float64
	tsi         float64
	eta, etasq  float64
	eeta        float64
	coef, coef1 float64

	c1, c3, c4 float64

	xmdot, omgdot, xnodot float64
	xnodcf, t2cof         float64
	xlcof, aycof          float64

	keplerMiss func(tsince float64)
}

func newBase(o *Orbit) base {
	b := base{
		epoch:      o.epoch,
		incl:       o.inclination,
		ecc:        o.eccentricity,
		raan:       o.raan,
		argp:       o.argPerigee,
		m0:         o.meanAnomaly,
		bstar:      o.bstar,
		aodp:       o.semiMinor,
		xnodp:      o.recMeanMotion,
		keplerMiss: o.keplerMiss,
	}

	e := b.ecc
	b.cosio = math.Cos(b.incl)
	b.theta2 = b.cosio * b.cosio
	b.x3thm1 = 3.0*b.theta2 - 1.0
	b.eosq = e * e
	b.betao2 = 1.0 - b.eosq
	b.betao = math.Sqrt(b.betao2)

	// S and QOMS2T are altered for perigees below 156 km.
	b.perigee = astro.XKMPER * (b.aodp*(1.0-e) - astro.AE)
	b.s4 = astro.S
	b.qoms24 = astro.QOMS2T
	if b.perigee < 156.0 {
		b.s4 = b.perigee - 78.0
		if b.perigee <= 98.0 {
			b.s4 = 20.0
		}
		b.qoms24 = math.Pow((120.0-b.s4)*astro.AE/astro.XKMPER, 4.0)
		b.s4 = b.s4/astro.XKMPER + astro.AE
	}

	pinvsq := 1.0 / (b.aodp * b.aodp * b.betao2 * b.betao2)

	b.tsi = 1.0 / (b.aodp - b.s4)
	b.eta = b.aodp * e * b.tsi
	b.etasq = b.eta * b.eta
	b.eeta = e * b.eta

	psisq := math.Abs(1.0 - b.etasq)

	b.coef = b.qoms24 * math.Pow(b.tsi, 4.0)
	b.coef1 = b.coef / math.Pow(psisq, 3.5)

	c2 := b.coef1 * b.xnodp *
		(b.aodp*(1.0+1.5*b.etasq+b.eeta*(4.0+b.etasq)) +
			0.75*astro.CK2*b.tsi/psisq*b.x3thm1*(8.0+3.0*b.etasq*(8.0+b.etasq)))

	b.c1 = b.bstar * c2
	b.sinio = math.Sin(b.incl)

	a3ovk2 := -astro.XJ3 / astro.CK2 * math.Pow(astro.AE, 3.0)

	// Circular orbits have no perigee, so c3 and its dependents vanish.
	if e > 1.0e-4 {
		b.c3 = b.coef * b.tsi * a3ovk2 * b.xnodp * astro.AE * b.sinio / e
	}
	b.x1mth2 = 1.0 - b.theta2
	b.c4 = 2.0 * b.xnodp * b.coef1 * b.aodp * b.betao2 *
		(b.eta*(2.0+0.5*b.etasq) +
			e*(0.5+2.0*b.etasq) -
			2.0*astro.CK2*b.tsi/(b.aodp*psisq)*
				(-3.0*b.x3thm1*(1.0-2.0*b.eeta+b.etasq*(1.5-0.5*b.eeta))+
					0.75*b.x1mth2*(2.0*b.etasq-b.eeta*(1.0+b.etasq))*math.Cos(2.0*b.argp)))

	theta4 := b.theta2 * b.theta2
	temp1 := 3.0 * astro.CK2 * pinvsq * b.xnodp
	temp2 := temp1 * astro.CK2 * pinvsq
	temp3 := 1.25 * astro.CK4 * pinvsq * pinvsq * b.xnodp

	b.xmdot = b.xnodp + 0.5*temp1*b.betao*b.x3thm1 +
		0.0625*temp2*b.betao*(13.0-78.0*b.theta2+137.0*theta4)

	x1m5th := 1.0 - 5.0*b.theta2

	b.omgdot = -0.5*temp1*x1m5th +
		0.0625*temp2*(7.0-114.0*b.theta2+395.0*theta4) +
		temp3*(3.0-36.0*b.theta2+49.0*theta4)

	xhdot1 := -temp1 * b.cosio

	b.xnodot = xhdot1 + (0.5*temp2*(4.0-19.0*b.theta2)+2.0*temp3*(3.0-7.0*b.theta2))*b.cosio
	b.xnodcf = 3.5 * b.betao2 * xhdot1 * b.c1
	b.t2cof = 1.5 * b.c1
	b.xlcof = 0.125 * a3ovk2 * b.sinio * (3.0 + 5.0*b.cosio) / (1.0 + b.cosio)
	b.aycof = 0.25 * a3ovk2 * b.sinio
	b.x7thm1 = 7.0*b.theta2 - 1.0

	return b
}

// finalPosition solves Kepler's equation for the perturbed elements at
// tsince, applies the short-period corrections and returns the state in AE
// and AE/min.
func (b *base) finalPosition(incl, omega, e, a, xl, xnode, xn, tsince float64) (coord.ECI, error) {
	if !(e*e <= 1.0) {
		return coord.ECI{}, fmt.Errorf("eccentricity %g at %.3f min: %w", e, tsince, ErrInvalidOrbit)
	}

	beta := math.Sqrt(1.0 - e*e)

	// Long period periodics.
	axn := e * math.Cos(omega)
	temp := 1.0 / (a * beta * beta)
	xll := temp * b.xlcof * axn
	aynl := temp * b.aycof
	xlt := xl + xll
	ayn := e*math.Sin(omega) + aynl

	// Kepler's equation.
	capu := astro.Fmod2p(xlt - xnode)
	temp2 := capu

	var temp3, temp4, temp5, temp6, sinepw, cosepw float64
	converged := false
	for i := 0; i < keplerMaxIter && !converged; i++ {
		sinepw = math.Sin(temp2)
		cosepw = math.Cos(temp2)
		temp3 = axn * sinepw
		temp4 = ayn * cosepw
		temp5 = axn * cosepw
		temp6 = ayn * sinepw

		epw := (capu-temp4+temp3-temp2)/(1.0-temp5-temp6) + temp2

		if math.Abs(epw-temp2) <= astro.E6A {
			converged = true
		} else {
			temp2 = epw
		}
	}
	if !converged && b.keplerMiss != nil {
		b.keplerMiss(tsince)
	}

	// Short period preliminary quantities.
	ecose := temp5 + temp6
	esine := temp3 - temp4
	elsq := axn*axn + ayn*ayn
	temp = 1.0 - elsq
	pl := a * temp
	r := a * (1.0 - ecose)
	temp1 := 1.0 / r
	rdot := astro.XKE * math.Sqrt(a) * esine * temp1
	rfdot := astro.XKE * math.Sqrt(pl) * temp1
	temp2 = a * temp1
	betal := math.Sqrt(temp)
	temp3 = 1.0 / (1.0 + betal)
	cosu := temp2 * (cosepw - axn + ayn*esine*temp3)
	sinu := temp2 * (sinepw - ayn - axn*esine*temp3)
	u := astro.AcTan(sinu, cosu)
	sin2u := 2.0 * sinu * cosu
	cos2u := 2.0*cosu*cosu - 1.0

	temp = 1.0 / pl
	temp1 = astro.CK2 * temp
	temp2 = temp1 * temp

	// Short periodics.
	rk := r*(1.0-1.5*temp2*betal*b.x3thm1) + 0.5*temp1*b.x1mth2*cos2u
	uk := u - 0.25*temp2*b.x7thm1*sin2u
	xnodek := xnode + 1.5*temp2*b.cosio*sin2u
	xinck := incl + 1.5*temp2*b.cosio*b.sinio*cos2u
	rdotk := rdot - xn*temp1*b.x1mth2*sin2u
	rfdotk := rfdot + xn*temp1*(b.x1mth2*cos2u+1.5*b.x3thm1)

	// Orientation vectors.
	sinuk, cosuk := math.Sincos(uk)
	sinik, cosik := math.Sincos(xinck)
	sinnok, cosnok := math.Sincos(xnodek)
	xmx := -sinnok * cosik
	xmy := cosnok * cosik
	u3 := coord.Vector{
		X: xmx*sinuk + cosnok*cosuk,
		Y: xmy*sinuk + sinnok*cosuk,
		Z: sinik * sinuk,
	}
	v3 := coord.Vector{
		X: xmx*cosuk - cosnok*sinuk,
		Y: xmy*cosuk - sinnok*sinuk,
		Z: sinik * cosuk,
	}

	pos := u3.Scale(rk)

	radiusKm := pos.Magnitude() * (astro.XKMPER / astro.AE)
	if !(radiusKm >= astro.XKMPER && radiusKm <= 2*astro.GeosyncAlt) {
		return coord.ECI{}, &DecayError{Tsince: tsince, RadiusKm: radiusKm}
	}

	vel := u3.Scale(rdotk).Add(v3.Scale(rfdotk))

	return coord.ECI{
		Pos:  pos,
		Vel:  vel,
		Date: b.epoch.AddMin(tsince),
		Unit: coord.UnitAE,
	}, nil
}
