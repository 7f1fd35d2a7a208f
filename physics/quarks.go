package physics

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/m4xw311/nima/errors"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat"
)

// Params are the six quark model parameters [u_a, u_b, u_p, d_a, d_b, d_q].
type Params [6]float64

// DefaultParams are the truth parameters used when none are given.
var DefaultParams = Params{-0.4, 2.4, 0.5, -0.06, 0.4, 0.48}

// XMin and XMax bound the momentum fraction x.
const (
	XMin = 0.1
	XMax = 1.0
)

const (
	cdfPoints  = 100
	quadPoints = 200
)

// MaxEvents bounds a single GenerateEvents call.
const MaxEvents = 1_000_000

// ParamsFromSlice validates a user supplied parameter list.
func ParamsFromSlice(v []float64) (Params, error) {
	var p Params
	if len(v) != len(p) {
		return p, errors.New("truth_params must have 6 values [u_a, u_b, u_p, d_a, d_b, d_q], got %d", len(v))
	}
	copy(p[:], v)
	return p, nil
}

// U is the u-quark distribution p·x^a·(1-x)^b.
func (p Params) U(x float64) float64 {
	return p[2] * math.Pow(x, p[0]) * math.Pow(1-x, p[1])
}

// D is the d-quark distribution q·x^a·(1-x)^b.
func (p Params) D(x float64) float64 {
	return p[5] * math.Pow(x, p[3]) * math.Pow(1-x, p[4])
}

// Sigma1 is the cross section 4u + d.
func (p Params) Sigma1(x float64) float64 { return 4*p.U(x) + p.D(x) }

// Sigma2 is the cross section 4d + u.
func (p Params) Sigma2(x float64) float64 { return 4*p.D(x) + p.U(x) }

// Sampler draws x values distributed as a cross section on [XMin, XMax] by
// inverting its tabulated survival function.
type Sampler struct {
	// survival and xs are sorted by survival, ascending.
	survival []float64
	xs       []float64
}

// NewSampler normalises sigma and tabulates P(X > x) on an even grid.
func NewSampler(sigma func(float64) float64) (*Sampler, error) {
	norm := quad.Fixed(sigma, XMin, XMax, quadPoints, nil, 0)
	if norm <= 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, errors.New("cross section does not normalise on [%g, %g]: %g", XMin, XMax, norm)
	}

	type point struct{ s, x float64 }
	pts := make([]point, cdfPoints)
	for i := range pts {
		x := XMin + (XMax-XMin)*float64(i)/float64(cdfPoints-1)
		s := 0.0
		if x < XMax {
			s = quad.Fixed(sigma, x, XMax, quadPoints, nil, 0) / norm
		}
		pts[i] = point{s: s, x: x}
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].s < pts[j].s })

	smp := &Sampler{
		survival: make([]float64, len(pts)),
		xs:       make([]float64, len(pts)),
	}
	for i, pt := range pts {
		smp.survival[i] = pt.s
		smp.xs[i] = pt.x
	}
	return smp, nil
}

// Inverse maps a survival probability back to x by linear interpolation.
// Values outside the tabulated range map to 0.
func (s *Sampler) Inverse(u float64) float64 {
	n := len(s.survival)
	if n == 0 || u < s.survival[0] || u > s.survival[n-1] {
		return 0
	}
	i := sort.SearchFloat64s(s.survival, u)
	if i == 0 {
		return s.xs[0]
	}
	if s.survival[i] == u {
		return s.xs[i]
	}
	s0, s1 := s.survival[i-1], s.survival[i]
	x0, x1 := s.xs[i-1], s.xs[i]
	return x0 + (u-s0)*(x1-x0)/(s1-s0)
}

// Sample draws n values using rng.
func (s *Sampler) Sample(n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Inverse(rng.Float64())
	}
	return out
}

// Summary holds the population mean and standard deviation of a sample.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func summarize(x []float64) Summary {
	if len(x) == 0 {
		return Summary{}
	}
	mean, variance := stat.MeanVariance(x, nil)
	// MeanVariance is unbiased; report the population spread.
	n := float64(len(x))
	return Summary{Mean: mean, Std: math.Sqrt(variance * (n - 1) / n)}
}

// Events are generated samples of both cross sections.
type Events struct {
	Params Params    `json:"truth_params"`
	Sigma1 []float64 `json:"-"`
	Sigma2 []float64 `json:"-"`
	Stats1 Summary   `json:"sigma1"`
	Stats2 Summary   `json:"sigma2"`
}

// GenerateEvents samples n events from each cross section. A nil seed draws
// a random one.
func GenerateEvents(n int, params Params, seed *uint64) (*Events, error) {
	if n <= 0 || n > MaxEvents {
		return nil, errors.New("num_events must be between 1 and %d, got %d", MaxEvents, n)
	}
	s1, err := NewSampler(params.Sigma1)
	if err != nil {
		return nil, errors.Wrapf(err, "sigma1")
	}
	s2, err := NewSampler(params.Sigma2)
	if err != nil {
		return nil, errors.Wrapf(err, "sigma2")
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewPCG(*seed, *seed))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ev := &Events{
		Params: params,
		Sigma1: s1.Sample(n, rng),
		Sigma2: s2.Sample(n, rng),
	}
	ev.Stats1 = summarize(ev.Sigma1)
	ev.Stats2 = summarize(ev.Sigma2)
	return ev, nil
}
