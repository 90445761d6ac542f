// Package persona holds the static mentor catalog and the durable
// selection of the active persona.
package persona

import "strings"

// Persona is a selectable mentor profile. Personas are immutable and
// compiled into the binary.
type Persona struct {
	ID          string
	Name        string
	Role        string
	AvatarURL   string
	VoiceID     string
	KeyFeatures []string
}

// TraitString joins the persona's key features into the single descriptive
// string passed to the voice agent.
func (p Persona) TraitString() string {
	return strings.Join(p.KeyFeatures, ", ")
}

// Registry is the read-only persona catalog.
type Registry struct {
	personas []Persona
}

// NewRegistry returns the built-in mentor catalog.
func NewRegistry() *Registry {
	return &Registry{personas: defaultPersonas}
}

// All returns every persona in catalog order.
func (r *Registry) All() []Persona {
	out := make([]Persona, len(r.personas))
	copy(out, r.personas)
	return out
}

// Find looks a persona up by id.
func (r *Registry) Find(id string) (Persona, bool) {
	for _, p := range r.personas {
		if p.ID == id {
			return p, true
		}
	}
	return Persona{}, false
}

var defaultPersonas = []Persona{
	{
		ID:        "1",
		Name:      "Alex Thompson",
		Role:      "Technical Mentor",
		AvatarURL: "/mentor_a.jpeg",
		VoiceID:   "pNInz6obpgDQGcFmaJgB",
		KeyFeatures: []string{
			"pragmatic engineering advice",
			"code review mindset",
			"asks probing questions before answering",
		},
	},
	{
		ID:        "2",
		Name:      "Sarah Chen",
		Role:      "Career Coach",
		AvatarURL: "/mentor_b.jpeg",
		VoiceID:   "EXAVITQu4vr4xnSDxMaL",
		KeyFeatures: []string{
			"warm and encouraging",
			"focuses on long-term goals",
			"direct feedback on CVs and interviews",
		},
	},
	{
		ID:        "3",
		Name:      "Michael Roberts",
		Role:      "Academic Advisor",
		AvatarURL: "/mentor_c.jpeg",
		VoiceID:   "VR6AewLTigWG4xSOukaG",
		KeyFeatures: []string{
			"structured study planning",
			"patient explanations",
			"cites sources when possible",
		},
	},
}
