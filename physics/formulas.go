package physics

import (
	"math"

	"github.com/m4xw311/nima/errors"
)

// MeVPerU is the energy equivalent of one atomic mass unit.
const MeVPerU = 931.494095

// RelativisticEnergy returns sqrt(m² + p²) in MeV for a rest mass in MeV/c²
// and a momentum in MeV/c.
func RelativisticEnergy(massMeV, momentumMeV float64) float64 {
	return math.Sqrt(massMeV*massMeV + momentumMeV*momentumMeV)
}

// LorentzFactor returns 1/sqrt(1-β²) for β = v/c.
func LorentzFactor(beta float64) (float64, error) {
	if math.Abs(beta) >= 1 {
		return 0, errors.New("Velocity must be less than speed of light")
	}
	return 1 / math.Sqrt(1-beta*beta), nil
}

// DecayProbability returns 1 - exp(-t/τ). A non-positive lifetime always
// decays and an infinite one never does.
func DecayProbability(lifetime, t float64) float64 {
	if lifetime <= 0 {
		return 1
	}
	if math.IsInf(lifetime, 1) {
		return 0
	}
	return 1 - math.Exp(-t/lifetime)
}

// BindingEnergy returns the nuclear binding energy in MeV from the measured
// isotope mass in u.
func BindingEnergy(isotopeMassU float64, protons, neutrons int) float64 {
	protonU := particles["proton"].MassMeV / MeVPerU
	neutronU := particles["neutron"].MassMeV / MeVPerU
	nucleons := float64(protons)*protonU + float64(neutrons)*neutronU
	return (nucleons - isotopeMassU) * MeVPerU
}
