package tools

import (
	"context"
	"encoding/json"

	"github.com/m4xw311/nima/physics"
)

// RelativisticEnergyTool implements E = sqrt((mc²)² + (pc)²).
type RelativisticEnergyTool struct{}

func (t *RelativisticEnergyTool) Name() string { return "calculate_relativistic_energy" }
func (t *RelativisticEnergyTool) Description() string {
	return "Calculate relativistic energy in MeV using E = sqrt((mc²)² + (pc)²)."
}
func (t *RelativisticEnergyTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "mass_MeV", Type: "number", Description: "Particle rest mass in MeV/c²", Required: true},
		{Name: "momentum_MeV", Type: "number", Description: "Particle momentum in MeV/c", Required: true},
	}
}

func (t *RelativisticEnergyTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	m, err := floatArg(args, "mass_MeV")
	if err != nil {
		return "", err
	}
	p, err := floatArg(args, "momentum_MeV")
	if err != nil {
		return "", err
	}
	return formatFloat(physics.RelativisticEnergy(m, p)), nil
}

// LorentzFactorTool implements γ = 1/sqrt(1 - v²/c²).
type LorentzFactorTool struct{}

func (t *LorentzFactorTool) Name() string { return "calculate_lorentz_factor" }
func (t *LorentzFactorTool) Description() string {
	return "Calculate the Lorentz factor γ = 1/sqrt(1 - v²/c²)."
}
func (t *LorentzFactorTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "velocity_fraction", Type: "number", Description: "Velocity as fraction of speed of light (v/c), must be < 1", Required: true},
	}
}

func (t *LorentzFactorTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	beta, err := floatArg(args, "velocity_fraction")
	if err != nil {
		return "", err
	}
	gamma, err := physics.LorentzFactor(beta)
	if err != nil {
		return "", err
	}
	return formatFloat(gamma), nil
}

// ParticlePropertiesTool looks a particle up in the particle table.
type ParticlePropertiesTool struct{}

func (t *ParticlePropertiesTool) Name() string { return "get_particle_properties" }
func (t *ParticlePropertiesTool) Description() string {
	return "Get mass, charge, lifetime and spin of a particle from the particle database."
}
func (t *ParticlePropertiesTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "particle_name", Type: "string", Description: "Name of particle (e.g., 'electron', 'proton', 'muon')", Required: true},
	}
}

func (t *ParticlePropertiesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	name, err := stringArg(args, "particle_name")
	if err != nil {
		return "", err
	}
	p, err := physics.LookupParticle(name)
	if err != nil {
		return "", err
	}
	// JSON has no infinity.
	var lifetime interface{} = p.Lifetime
	if p.Stable() {
		lifetime = "inf"
	}
	out, err := json.Marshal(map[string]interface{}{
		"mass_MeV":   p.MassMeV,
		"charge":     p.Charge,
		"lifetime_s": lifetime,
		"spin":       p.Spin,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecayProbabilityTool implements P(t) = 1 - exp(-t/τ).
type DecayProbabilityTool struct{}

func (t *DecayProbabilityTool) Name() string { return "calculate_decay_probability" }
func (t *DecayProbabilityTool) Description() string {
	return "Calculate decay probability P(t) = 1 - exp(-t/τ) for a particle."
}
func (t *DecayProbabilityTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "lifetime_s", Type: "number", Description: "Mean lifetime in seconds", Required: true},
		{Name: "time_s", Type: "number", Description: "Time elapsed in seconds", Required: true},
	}
}

func (t *DecayProbabilityTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	tau, err := floatArg(args, "lifetime_s")
	if err != nil {
		return "", err
	}
	elapsed, err := floatArg(args, "time_s")
	if err != nil {
		return "", err
	}
	return formatFloat(physics.DecayProbability(tau, elapsed)), nil
}

// BindingEnergyTool computes the nuclear binding energy from an isotope mass.
type BindingEnergyTool struct{}

func (t *BindingEnergyTool) Name() string { return "calculate_binding_energy" }
func (t *BindingEnergyTool) Description() string {
	return "Calculate nuclear binding energy in MeV from the measured isotope mass."
}
func (t *BindingEnergyTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "isotope_mass_u", Type: "number", Description: "Measured isotope mass in atomic mass units", Required: true},
		{Name: "num_protons", Type: "integer", Description: "Number of protons (Z)", Required: true},
		{Name: "num_neutrons", Type: "integer", Description: "Number of neutrons (N)", Required: true},
	}
}

func (t *BindingEnergyTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	mass, err := floatArg(args, "isotope_mass_u")
	if err != nil {
		return "", err
	}
	z, err := intArg(args, "num_protons")
	if err != nil {
		return "", err
	}
	n, err := intArg(args, "num_neutrons")
	if err != nil {
		return "", err
	}
	return formatFloat(physics.BindingEnergy(mass, z, n)), nil
}
