package physics

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupParticle(t *testing.T) {
	p, err := LookupParticle("Muon")
	require.NoError(t, err)
	assert.InDelta(t, 105.6583755, p.MassMeV, 1e-9)
	assert.Equal(t, -1, p.Charge)
	assert.False(t, p.Stable())

	e, err := LookupParticle("electron")
	require.NoError(t, err)
	assert.True(t, e.Stable())
}

func TestLookupParticleSuggests(t *testing.T) {
	_, err := LookupParticle("muo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Particle 'muo' not found")
	assert.Contains(t, err.Error(), "Available: electron, muon, neutron, pion+, pion0, proton")
	assert.Contains(t, err.Error(), "Did you mean: muon")

	_, err = LookupParticle("zzzz")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "Did you mean")
}

func TestFormulas(t *testing.T) {
	assert.InDelta(t, 5.0, RelativisticEnergy(3, 4), 1e-12)

	gamma, err := LorentzFactor(0.6)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, gamma, 1e-12)

	_, err = LorentzFactor(1)
	assert.ErrorContains(t, err, "less than speed of light")

	assert.Equal(t, 1.0, DecayProbability(0, 5))
	assert.Equal(t, 0.0, DecayProbability(math.Inf(1), 5))
	assert.InDelta(t, 1-math.Exp(-1), DecayProbability(2, 2), 1e-12)

	// He-4 atomic mass against bare nucleon masses.
	assert.InDelta(t, 27.27, BindingEnergy(4.002602, 2, 2), 0.01)
}

func TestParamsFromSlice(t *testing.T) {
	p, err := ParamsFromSlice([]float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, Params{1, 2, 3, 4, 5, 6}, p)

	_, err = ParamsFromSlice([]float64{1, 2})
	assert.Error(t, err)
}

func TestCrossSections(t *testing.T) {
	p := DefaultParams
	x := 0.3
	assert.InDelta(t, 4*p.U(x)+p.D(x), p.Sigma1(x), 1e-12)
	assert.InDelta(t, 4*p.D(x)+p.U(x), p.Sigma2(x), 1e-12)
	assert.InDelta(t, 0.5*math.Pow(0.3, -0.4)*math.Pow(0.7, 2.4), p.U(x), 1e-12)
}

func TestSamplerInverse(t *testing.T) {
	s, err := NewSampler(DefaultParams.Sigma1)
	require.NoError(t, err)

	require.Len(t, s.survival, cdfPoints)
	assert.InDelta(t, 1.0, s.survival[len(s.survival)-1], 1e-6)
	assert.Equal(t, 0.0, s.survival[0])
	assert.InDelta(t, XMin, s.Inverse(s.survival[len(s.survival)-1]), 1e-9)
	assert.InDelta(t, XMax, s.Inverse(0), 1e-9)

	// Survival is decreasing in x, so the inverse is too.
	assert.Greater(t, s.Inverse(0.2), s.Inverse(0.8))

	assert.Equal(t, 0.0, s.Inverse(-0.1))
	assert.Equal(t, 0.0, s.Inverse(1.5))
}

func TestGenerateEventsSeeded(t *testing.T) {
	seed := uint64(42)
	a, err := GenerateEvents(2000, DefaultParams, &seed)
	require.NoError(t, err)
	b, err := GenerateEvents(2000, DefaultParams, &seed)
	require.NoError(t, err)

	assert.Equal(t, a.Sigma1, b.Sigma1)
	assert.Equal(t, a.Stats2, b.Stats2)
	assert.Len(t, a.Sigma1, 2000)

	for _, x := range a.Sigma1 {
		assert.True(t, x == 0 || (x >= XMin && x <= XMax), "sample %v out of range", x)
	}
	assert.Greater(t, a.Stats1.Mean, XMin)
	assert.Less(t, a.Stats1.Mean, XMax)
	assert.Greater(t, a.Stats1.Std, 0.0)
}

func TestGenerateEventsBounds(t *testing.T) {
	_, err := GenerateEvents(0, DefaultParams, nil)
	assert.Error(t, err)
	_, err = GenerateEvents(MaxEvents+1, DefaultParams, nil)
	assert.Error(t, err)

	_, err = GenerateEvents(10, Params{}, nil)
	assert.ErrorContains(t, err, "does not normalise")
}

func TestSummarizeIsPopulationStd(t *testing.T) {
	s := summarize([]float64{1, 3})
	assert.InDelta(t, 2.0, s.Mean, 1e-12)
	assert.InDelta(t, 1.0, s.Std, 1e-12)
	assert.Equal(t, Summary{}, summarize(nil))
}

func TestRenderQuarkPlots(t *testing.T) {
	png, err := RenderQuarkPlots(DefaultParams)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
