package norad

import (
	"math"

	"github.com/star/norad/internal/astro"
	"github.com/star/norad/internal/coord"
)

const (
	zns    = 1.19459e-5
	c1ss   = 2.9864797e-6
	zes    = 0.01675
	znl    = 1.5835218e-4
	c1l    = 4.7968065e-7
	zel    = 0.05490
	zcosis = 0.91744867
	zsinis = 0.39785416
	zsings = -0.98088458
	zcosgs = 0.1945905
	q22    = 1.7891679e-6
	q31    = 2.1460748e-6
	q33    = 2.2123015e-7
	g22    = 5.7686396
	g32    = 0.95240898
	g44    = 1.8014998
	g52    = 1.0508330
	g54    = 4.4108898
	root22 = 1.7891679e-6
	root32 = 3.7393792e-7
	root44 = 7.3636953e-9
	root52 = 1.1428639e-7
	root54 = 2.1765803e-9
	thdt   = 4.3752691e-3 // Earth rotation, rad/min
)

// Integrator step sizes in minutes.
const (
	stepPos   = 720.0
	stepNeg   = -720.0
	stepSqHlf = 259200.0 // stepPos²/2
)

// Lunar-solar periodics are recomputed after this many minutes.
const periodicsRefresh = 30.0

type resonance int

const (
	resonanceNone resonance = iota
	resonanceHalfDay
	resonanceSynchronous
)

// lunarTerms are the lunar orbit quantities at a given day since
// 1900 Jan 0.5. They depend only on that day.
type lunarTerms struct {
	day    float64
	valid  bool
	zcosil float64
	zsinil float64
	zsinhl float64
	zcoshl float64
	zcosgl float64
	zsingl float64
	zmol   float64
	zmos   float64
}

// periodicCoefs are the coefficients of one body's periodic terms.
type periodicCoefs struct {
	e2, e3   float64
	i2, i3   float64
	l2, l3   float64
	l4       float64
	gh2, gh3 float64
	gh4      float64
	h2, h3   float64
}

// periodics are the lunar-solar periodic corrections at tsince.
type periodics struct {
	tsince float64
	pe     float64
	pinc   float64
	pl     float64
	pgh    float64
	ph     float64
}

// deepState is the resonance integrator: mean motion xni and libration
// angle xli at atime minutes from epoch. It advances in fixed steps toward
// each requested time and restarts from epoch when the sign of the time
// changes.
type deepState struct {
	xli   float64
	xni   float64
	atime float64
}

// deepSpace is the SDP4 model.
type deepSpace struct {
	base

	thgr   float64 // sidereal angle at epoch
	xqncl  float64 // epoch inclination
	omegaq float64 // epoch argument of perigee

	lunar lunarTerms

	solar, moon periodicCoefs

	// Combined secular rates.
	sse, ssi, ssl, ssg, ssh float64

	res resonance

	d2201, d2211, d3210, d3222, d4410 float64
	d4422, d5220, d5232, d5421, d5433 float64
	del1, del2, del3                  float64
	fasx2, fasx4, fasx6               float64
	xlamo                             float64
	xfact                             float64

	state deepState
	cache periodics
}

func newDeepSpace(o *Orbit) *deepSpace {
	p := &deepSpace{base: newBase(o)}
	p.init()
	return p
}

// lunarAt returns the lunar terms for day, reusing the memoized value when
// the day is unchanged.
func (p *deepSpace) lunarAt(day float64) lunarTerms {
	if p.lunar.valid && p.lunar.day == day {
		return p.lunar
	}

	l := lunarTerms{day: day, valid: true}

	xnodce := 4.5236020 - 9.2422029e-4*day
	stem, ctem := math.Sincos(xnodce)

	l.zcosil = 0.91375164 - 0.03568096*ctem
	l.zsinil = math.Sqrt(1.0 - l.zcosil*l.zcosil)
	l.zsinhl = 0.089683511 * stem / l.zsinil
	l.zcoshl = math.Sqrt(1.0 - l.zsinhl*l.zsinhl)

	c := 4.7199672 + 0.22997150*day
	gam := 5.8351514 + 0.0019443680*day
	l.zmol = astro.Fmod2p(c - gam)

	zx := 0.39785416 * stem / l.zsinil
	zy := l.zcoshl*ctem + 0.91744867*l.zsinhl*stem
	zx = astro.AcTan(zx, zy) + gam - xnodce

	l.zsingl, l.zcosgl = math.Sincos(zx)
	l.zmos = astro.Fmod2p(6.2565837 + 0.017201977*day)

	p.lunar = l
	return l
}

func (p *deepSpace) init() {
	eq := p.ecc
	eqsq := p.eosq
	siniq := p.sinio
	cosiq := p.cosio
	rteqsq := p.betao
	bsq := p.betao2
	sinomo, cosomo := math.Sincos(p.argp)

	p.thgr = p.epoch.GMST()
	p.xqncl = p.incl
	p.omegaq = p.argp

	aqnv := 1.0 / p.aodp
	xpidot := p.omgdot + p.xnodot
	sinq, cosq := math.Sincos(p.raan)

	lun := p.lunarAt(p.epoch.FromJan1_12h1900())

	p.cache.tsince = 1.0e20

	// Solar terms on the first pass, lunar on the second.
	zcosg, zsing := zcosgs, zsings
	zcosi, zsini := zcosis, zsinis
	zcosh, zsinh := cosq, sinq
	cc, zn, ze := c1ss, zns, zes
	xnoi := 1.0 / p.xnodp

	var se, si, sl, sgh, sh float64
	var coefs periodicCoefs

	for pass := 1; pass <= 2; pass++ {
		a1 := zcosg*zcosh + zsing*zcosi*zsinh
		a3 := -zsing*zcosh + zcosg*zcosi*zsinh
		a7 := -zcosg*zsinh + zsing*zcosi*zcosh
		a8 := zsing * zsini
		a9 := zsing*zsinh + zcosg*zcosi*zcosh
		a10 := zcosg * zsini
		a2 := cosiq*a7 + siniq*a8
		a4 := cosiq*a9 + siniq*a10
		a5 := -siniq*a7 + cosiq*a8
		a6 := -siniq*a9 + cosiq*a10
		x1 := a1*cosomo + a2*sinomo
		x2 := a3*cosomo + a4*sinomo
		x3 := -a1*sinomo + a2*cosomo
		x4 := -a3*sinomo + a4*cosomo
		x5 := a5 * sinomo
		x6 := a6 * sinomo
		x7 := a5 * cosomo
		x8 := a6 * cosomo
		z31 := 12.0*x1*x1 - 3.0*x3*x3
		z32 := 24.0*x1*x2 - 6.0*x3*x4
		z33 := 12.0*x2*x2 - 3.0*x4*x4
		z1 := 3.0*(a1*a1+a2*a2) + z31*eqsq
		z2 := 6.0*(a1*a3+a2*a4) + z32*eqsq
		z3 := 3.0*(a3*a3+a4*a4) + z33*eqsq
		z11 := -6.0*a1*a5 + eqsq*(-24.0*x1*x7-6.0*x3*x5)
		z12 := -6.0*(a1*a6+a3*a5) +
			eqsq*(-24.0*(x2*x7+x1*x8)-6.0*(x3*x6+x4*x5))
		z13 := -6.0*a3*a6 + eqsq*(-24.0*x2*x8-6.0*x4*x6)
		z21 := 6.0*a2*a5 + eqsq*(24.0*x1*x5-6.0*x3*x7)
		z22 := 6.0*(a4*a5+a2*a6) +
			eqsq*(24.0*(x2*x5+x1*x6)-6.0*(x4*x7+x3*x8))
		z23 := 6.0*a4*a6 + eqsq*(24.0*x2*x6-6.0*x4*x8)
		z1 = z1 + z1 + bsq*z31
		z2 = z2 + z2 + bsq*z32
		z3 = z3 + z3 + bsq*z33
		s3 := cc * xnoi
		s2 := -0.5 * s3 / rteqsq
		s4 := s3 * rteqsq
		s1 := -15.0 * eq * s4
		s5 := x1*x3 + x2*x4
		s6 := x2*x3 + x1*x4
		s7 := x2*x4 - x1*x3

		se = s1 * zn * s5
		si = s2 * zn * (z11 + z13)
		sl = -zn * s3 * (z1 + z3 - 14.0 - 6.0*eqsq)
		sgh = s4 * zn * (z31 + z33 - 6.0)
		sh = -zn * s2 * (z21 + z23)

		if p.xqncl < 5.2359877e-2 {
			sh = 0.0
		}

		coefs = periodicCoefs{
			e2:  2.0 * s1 * s6,
			e3:  2.0 * s1 * s7,
			i2:  2.0 * s2 * z12,
			i3:  2.0 * s2 * (z13 - z11),
			l2:  -2.0 * s3 * z2,
			l3:  -2.0 * s3 * (z3 - z1),
			l4:  -2.0 * s3 * (-21.0 - 9.0*eqsq) * ze,
			gh2: 2.0 * s4 * z32,
			gh3: 2.0 * s4 * (z33 - z31),
			gh4: -18.0 * s4 * ze,
			h2:  -2.0 * s2 * z22,
			h3:  -2.0 * s2 * (z23 - z21),
		}

		if pass == 1 {
			p.sse = se
			p.ssi = si
			p.ssl = sl
			p.ssg = sgh
			if siniq != 0.0 {
				p.ssh = sh / siniq
				p.ssg -= cosiq * p.ssh
			}
			p.solar = coefs

			zcosg, zsing = lun.zcosgl, lun.zsingl
			zcosi, zsini = lun.zcosil, lun.zsinil
			zcosh = lun.zcoshl*cosq + lun.zsinhl*sinq
			zsinh = sinq*lun.zcoshl - cosq*lun.zsinhl
			zn, cc, ze = znl, c1l, zel
		}
	}
	p.moon = coefs

	p.sse += se
	p.ssi += si
	p.ssl += sl
	p.ssg += sgh
	if siniq != 0.0 {
		p.ssg -= cosiq / siniq * sh
		p.ssh += sh / siniq
	}

	var bfact float64

	switch {
	case p.xnodp < 0.0052359877 && p.xnodp > 0.0034906585:
		p.res = resonanceSynchronous
		bfact = p.initSynchronous(aqnv, xpidot)
	case p.xnodp < 8.26e-3 || p.xnodp > 9.24e-3 || eq < 0.5:
		p.res = resonanceNone
		return
	default:
		p.res = resonanceHalfDay
		bfact = p.initHalfDay(aqnv)
	}

	p.xfact = bfact - p.xnodp
	p.state = deepState{xli: p.xlamo, xni: p.xnodp, atime: 0}
}

// initSynchronous sets up the 24-hour resonance terms and returns the
// libration rate at epoch.
func (p *deepSpace) initSynchronous(aqnv, xpidot float64) float64 {
	eqsq := p.eosq
	siniq, cosiq := p.sinio, p.cosio

	g200 := 1.0 + eqsq*(-2.5+0.8125*eqsq)
	g310 := 1.0 + 2.0*eqsq
	g300 := 1.0 + eqsq*(-6.0+6.60937*eqsq)
	f220 := 0.75 * (1.0 + cosiq) * (1.0 + cosiq)
	f311 := 0.9375*siniq*siniq*(1.0+3*cosiq) - 0.75*(1.0+cosiq)
	f330 := 1.0 + cosiq
	f330 = 1.875 * f330 * f330 * f330

	p.del1 = 3.0 * p.xnodp * p.xnodp * aqnv * aqnv
	p.del2 = 2.0 * p.del1 * f220 * g200 * q22
	p.del3 = 3.0 * p.del1 * f330 * g300 * q33 * aqnv
	p.del1 = p.del1 * f311 * g310 * q31 * aqnv
	p.fasx2 = 0.13130908
	p.fasx4 = 2.8843198
	p.fasx6 = 0.37448087
	p.xlamo = p.m0 + p.raan + p.argp - p.thgr

	return p.xmdot + xpidot - thdt + p.ssl + p.ssg + p.ssh
}

// initHalfDay sets up the 12-hour resonance terms and returns the
// libration rate at epoch.
func (p *deepSpace) initHalfDay(aqnv float64) float64 {
	eq := p.ecc
	eqsq := p.eosq
	siniq, cosiq := p.sinio, p.cosio
	cosq2 := p.theta2

	eoc := eq * eqsq
	g201 := -0.306 - (eq-0.64)*0.440

	var g211, g310, g322, g410, g422, g520 float64
	if eq <= 0.65 {
		g211 = 3.616 - 13.247*eq + 16.290*eqsq
		g310 = -19.302 + 117.390*eq - 228.419*eqsq + 156.591*eoc
		g322 = -18.9068 + 109.7927*eq - 214.6334*eqsq + 146.5816*eoc
		g410 = -41.122 + 242.694*eq - 471.094*eqsq + 313.953*eoc
		g422 = -146.407 + 841.880*eq - 1629.014*eqsq + 1083.435*eoc
		g520 = -532.114 + 3017.977*eq - 5740.0*eqsq + 3708.276*eoc
	} else {
		g211 = -72.099 + 331.819*eq - 508.738*eqsq + 266.724*eoc
		g310 = -346.844 + 1582.851*eq - 2415.925*eqsq + 1246.113*eoc
		g322 = -342.585 + 1554.908*eq - 2366.899*eqsq + 1215.972*eoc
		g410 = -1052.797 + 4758.686*eq - 7193.992*eqsq + 3651.957*eoc
		g422 = -3581.69 + 16178.11*eq - 24462.77*eqsq + 12422.52*eoc
		if eq <= 0.715 {
			g520 = 1464.74 - 4664.75*eq + 3763.64*eqsq
		} else {
			g520 = -5149.66 + 29936.92*eq - 54087.36*eqsq + 31324.56*eoc
		}
	}

	var g533, g521, g532 float64
	if eq < 0.7 {
		g533 = -919.2277 + 4988.61*eq - 9064.77*eqsq + 5542.21*eoc
		g521 = -822.71072 + 4568.6173*eq - 8491.4146*eqsq + 5337.524*eoc
		g532 = -853.666 + 4690.25*eq - 8624.77*eqsq + 5341.4*eoc
	} else {
		g533 = -37995.78 + 161616.52*eq - 229838.2*eqsq + 109377.94*eoc
		g521 = -51752.104 + 218913.95*eq - 309468.16*eqsq + 146349.42*eoc
		g532 = -40023.88 + 170470.89*eq - 242699.48*eqsq + 115605.82*eoc
	}

	sini2 := siniq * siniq
	f220 := 0.75 * (1.0 + 2.0*cosiq + cosq2)
	f221 := 1.5 * sini2
	f321 := 1.875 * siniq * (1.0 - 2.0*cosiq - 3.0*cosq2)
	f322 := -1.875 * siniq * (1.0 + 2.0*cosiq - 3.0*cosq2)
	f441 := 35.0 * sini2 * f220
	f442 := 39.3750 * sini2 * sini2
	f522 := 9.84375 * siniq * (sini2*(1.0-2.0*cosiq-5.0*cosq2) +
		0.33333333*(-2.0+4.0*cosiq+6.0*cosq2))
	f523 := siniq * (4.92187512*sini2*(-2.0-4.0*cosiq+10.0*cosq2) +
		6.56250012*(1.0+2.0*cosiq-3.0*cosq2))
	f542 := 29.53125 * siniq * (2.0 - 8.0*cosiq + cosq2*(-12.0+8.0*cosiq+10.0*cosq2))
	f543 := 29.53125 * siniq * (-2.0 - 8.0*cosiq + cosq2*(12.0+8.0*cosiq-10.0*cosq2))

	xno2 := p.xnodp * p.xnodp
	ainv2 := aqnv * aqnv

	temp1 := 3.0 * xno2 * ainv2
	temp := temp1 * root22
	p.d2201 = temp * f220 * g201
	p.d2211 = temp * f221 * g211

	temp1 *= aqnv
	temp = temp1 * root32
	p.d3210 = temp * f321 * g310
	p.d3222 = temp * f322 * g322

	temp1 *= aqnv
	temp = 2.0 * temp1 * root44
	p.d4410 = temp * f441 * g410
	p.d4422 = temp * f442 * g422

	temp1 *= aqnv
	temp = temp1 * root52
	p.d5220 = temp * f522 * g520
	p.d5232 = temp * f523 * g532

	temp = 2.0 * temp1 * root54
	p.d5421 = temp * f542 * g521
	p.d5433 = temp * f543 * g533

	p.xlamo = p.m0 + p.raan + p.raan - p.thgr - p.thgr

	return p.xmdot + p.xnodot + p.xnodot - thdt - thdt + p.ssl + p.ssh + p.ssh
}

// dotTerms returns the rates of the integrator state at its current point.
func (p *deepSpace) dotTerms() (xndot, xnddt, xldot float64) {
	s := &p.state
	if p.res == resonanceSynchronous {
		xndot = p.del1*math.Sin(s.xli-p.fasx2) +
			p.del2*math.Sin(2.0*(s.xli-p.fasx4)) +
			p.del3*math.Sin(3.0*(s.xli-p.fasx6))
		xnddt = p.del1*math.Cos(s.xli-p.fasx2) +
			2.0*p.del2*math.Cos(2.0*(s.xli-p.fasx4)) +
			3.0*p.del3*math.Cos(3.0*(s.xli-p.fasx6))
	} else {
		xomi := p.omegaq + p.omgdot*s.atime
		x2omi := xomi + xomi
		x2li := s.xli + s.xli

		xndot = p.d2201*math.Sin(x2omi+s.xli-g22) +
			p.d2211*math.Sin(s.xli-g22) +
			p.d3210*math.Sin(xomi+s.xli-g32) +
			p.d3222*math.Sin(-xomi+s.xli-g32) +
			p.d4410*math.Sin(x2omi+x2li-g44) +
			p.d4422*math.Sin(x2li-g44) +
			p.d5220*math.Sin(xomi+s.xli-g52) +
			p.d5232*math.Sin(-xomi+s.xli-g52) +
			p.d5421*math.Sin(xomi+x2li-g54) +
			p.d5433*math.Sin(-xomi+x2li-g54)

		xnddt = p.d2201*math.Cos(x2omi+s.xli-g22) +
			p.d2211*math.Cos(s.xli-g22) +
			p.d3210*math.Cos(xomi+s.xli-g32) +
			p.d3222*math.Cos(-xomi+s.xli-g32) +
			p.d5220*math.Cos(xomi+s.xli-g52) +
			p.d5232*math.Cos(-xomi+s.xli-g52) +
			2.0*(p.d4410*math.Cos(x2omi+x2li-g44)+
				p.d4422*math.Cos(x2li-g44)+
				p.d5421*math.Cos(xomi+x2li-g54)+
				p.d5433*math.Cos(-xomi+x2li-g54))
	}

	xldot = s.xni + p.xfact
	xnddt *= xldot
	return xndot, xnddt, xldot
}

func (p *deepSpace) step(delt float64) {
	xndot, xnddt, xldot := p.dotTerms()
	p.state.xli += xldot*delt + xndot*stepSqHlf
	p.state.xni += xndot*delt + xnddt*stepSqHlf
	p.state.atime += delt
}

// secularResult is the deep-space secular state at one time.
type secularResult struct {
	xll    float64
	omgasm float64
	xnodes float64
	em     float64
	xinc   float64
	xn     float64
}

func (p *deepSpace) secular(xmdf, omgadf, xnode, t float64) secularResult {
	r := secularResult{
		xll:    xmdf + p.ssl*t,
		omgasm: omgadf + p.ssg*t,
		xnodes: xnode + p.ssh*t,
		em:     p.ecc + p.sse*t,
		xinc:   p.incl + p.ssi*t,
		xn:     p.xnodp,
	}

	if r.xinc < 0.0 {
		r.xinc = -r.xinc
		r.xnodes += math.Pi
		r.omgasm -= math.Pi
	}

	if p.res == resonanceNone {
		return r
	}

	s := &p.state
	var delt float64
	for done := false; !done; {
		switch {
		case s.atime == 0.0 || (t >= 0.0 && s.atime < 0.0) || (t < 0.0 && s.atime >= 0.0):
			// Restart from epoch.
			delt = stepPos
			if t < 0.0 {
				delt = stepNeg
			}
			*s = deepState{xli: p.xlamo, xni: p.xnodp, atime: 0}
			done = true
		case math.Abs(t) < math.Abs(s.atime):
			// Integrate back toward epoch.
			delt = stepPos
			if t >= 0.0 {
				delt = stepNeg
			}
			p.step(delt)
		default:
			delt = stepNeg
			if t > 0.0 {
				delt = stepPos
			}
			done = true
		}
	}

	for math.Abs(t-s.atime) >= stepPos {
		p.step(delt)
	}

	ft := t - s.atime
	xndot, xnddt, xldot := p.dotTerms()

	r.xn = s.xni + xndot*ft + xnddt*ft*ft*0.5

	xl := s.xli + xldot*ft + xndot*ft*ft*0.5
	temp := -r.xnodes + p.thgr + t*thdt

	if p.res == resonanceSynchronous {
		r.xll = xl - r.omgasm + temp
	} else {
		r.xll = xl + temp + temp
	}

	return r
}

// periodicsAt returns the lunar-solar periodic terms at t, recomputing them
// only when t has moved by at least periodicsRefresh minutes.
func (p *deepSpace) periodicsAt(t float64) periodics {
	if math.Abs(p.cache.tsince-t) < periodicsRefresh {
		return p.cache
	}

	zm := p.lunar.zmos + zns*t
	zf := zm + 2.0*zes*math.Sin(zm)
	sinzf := math.Sin(zf)
	f2 := 0.5*sinzf*sinzf - 0.25
	f3 := -0.5 * sinzf * math.Cos(zf)

	sc := &p.solar
	ses := sc.e2*f2 + sc.e3*f3
	sis := sc.i2*f2 + sc.i3*f3
	sls := sc.l2*f2 + sc.l3*f3 + sc.l4*sinzf
	sghs := sc.gh2*f2 + sc.gh3*f3 + sc.gh4*sinzf
	shs := sc.h2*f2 + sc.h3*f3

	zm = p.lunar.zmol + znl*t
	zf = zm + 2.0*zel*math.Sin(zm)
	sinzf = math.Sin(zf)
	f2 = 0.5*sinzf*sinzf - 0.25
	f3 = -0.5 * sinzf * math.Cos(zf)

	lc := &p.moon
	sel := lc.e2*f2 + lc.e3*f3
	sil := lc.i2*f2 + lc.i3*f3
	sll := lc.l2*f2 + lc.l3*f3 + lc.l4*sinzf
	sghl := lc.gh2*f2 + lc.gh3*f3 + lc.gh4*sinzf
	shl := lc.h2*f2 + lc.h3*f3

	p.cache = periodics{
		tsince: t,
		pe:     ses + sel,
		pinc:   sis + sil,
		pl:     sls + sll,
		pgh:    sghs + sghl,
		ph:     shs + shl,
	}
	return p.cache
}

// applyPeriodics adds the periodic terms to the secular state and returns
// the perturbed mean anomaly xmam.
func (p *deepSpace) applyPeriodics(r *secularResult, e *float64, xmam float64, t float64) float64 {
	sinis, cosis := math.Sincos(r.xinc)
	pt := p.periodicsAt(t)

	r.xinc += pt.pinc
	*e += pt.pe

	if p.xqncl >= 0.2 {
		ph := pt.ph / p.sinio
		pgh := pt.pgh - p.cosio*ph
		r.omgasm += pgh
		r.xnodes += ph
		return xmam + pt.pl
	}

	// Lyddane modification for low inclinations.
	sinok, cosok := math.Sincos(r.xnodes)
	alfdp := sinis * sinok
	betdp := sinis * cosok
	dalf := pt.ph*cosok + pt.pinc*cosis*sinok
	dbet := -pt.ph*sinok + pt.pinc*cosis*cosok

	alfdp += dalf
	betdp += dbet

	xls := xmam + r.omgasm + cosis*r.xnodes
	dls := pt.pl + pt.pgh - pt.pinc*r.xnodes*sinis

	xls += dls
	r.xnodes = astro.AcTan(alfdp, betdp)
	xmam += pt.pl
	r.omgasm = xls - xmam - math.Cos(r.xinc)*r.xnodes
	return xmam
}

func (p *deepSpace) position(tsince float64) (coord.ECI, error) {
	// Secular gravity and atmospheric drag.
	xmdf := p.m0 + p.xmdot*tsince
	omgadf := p.argp + p.omgdot*tsince
	xnoddf := p.raan + p.xnodot*tsince
	tsq := tsince * tsince
	xnode := xnoddf + p.xnodcf*tsq
	tempa := 1.0 - p.c1*tsince
	tempe := p.bstar * p.c4 * tsince
	templ := p.t2cof * tsq

	r := p.secular(xmdf, omgadf, xnode, tsince)

	a := math.Pow(astro.XKE/r.xn, astro.TwoThirds) * astro.Sqr(tempa)
	e := r.em - tempe
	xmam := r.xll + p.xnodp*templ

	xmam = p.applyPeriodics(&r, &e, xmam, tsince)

	xl := xmam + r.omgasm + r.xnodes
	xn := astro.XKE / math.Pow(a, 1.5)

	return p.finalPosition(r.xinc, r.omgasm, e, a, xl, r.xnodes, xn, tsince)
}
