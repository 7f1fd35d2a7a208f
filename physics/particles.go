package physics

import (
	"math"
	"sort"
	"strings"

	"github.com/m4xw311/nima/errors"
	"github.com/sahilm/fuzzy"
)

// Particle holds the properties returned by the particle table.
type Particle struct {
	Name     string  `json:"name"`
	MassMeV  float64 `json:"mass_MeV"`
	Charge   int     `json:"charge"`
	Lifetime float64 `json:"lifetime_s"` // +Inf for stable particles
	Spin     float64 `json:"spin"`
}

// Stable reports whether the particle does not decay.
func (p Particle) Stable() bool { return math.IsInf(p.Lifetime, 1) }

var particles = map[string]Particle{
	"electron": {Name: "electron", MassMeV: 0.51099895, Charge: -1, Lifetime: math.Inf(1), Spin: 0.5},
	"proton":   {Name: "proton", MassMeV: 938.272088, Charge: 1, Lifetime: math.Inf(1), Spin: 0.5},
	"neutron":  {Name: "neutron", MassMeV: 939.565413, Charge: 0, Lifetime: 879.4, Spin: 0.5},
	"muon":     {Name: "muon", MassMeV: 105.6583755, Charge: -1, Lifetime: 2.1969811e-6, Spin: 0.5},
	"pion0":    {Name: "pion0", MassMeV: 134.9768, Charge: 0, Lifetime: 8.52e-17, Spin: 0},
	"pion+":    {Name: "pion+", MassMeV: 139.57039, Charge: 1, Lifetime: 2.6033e-8, Spin: 0},
}

// ParticleNames returns the names in the table, sorted.
func ParticleNames() []string {
	names := make([]string, 0, len(particles))
	for name := range particles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupParticle returns the named particle. On a miss the error lists the
// available names and the closest fuzzy matches.
func LookupParticle(name string) (Particle, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := particles[key]; ok {
		return p, nil
	}

	names := ParticleNames()
	msg := "Particle '" + name + "' not found. Available: " + strings.Join(names, ", ")
	if key != "" {
		var suggestions []string
		for _, m := range fuzzy.Find(key, names) {
			suggestions = append(suggestions, m.Str)
		}
		if len(suggestions) > 0 {
			msg += ". Did you mean: " + strings.Join(suggestions, ", ") + "?"
		}
	}
	return Particle{}, errors.New("%s", msg)
}
