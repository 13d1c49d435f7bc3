package calculator

import (
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/adaptive-balancer/internal/modifier"
	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Settings bound every weight the calculator produces.
type Settings struct {
	MinWeight     float64
	MaxWeight     float64
	InitialWeight float64
}

func (s Settings) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.MinWeight, validation.Min(0.0)),
		validation.Field(&s.MaxWeight, validation.Min(s.MinWeight)),
		validation.Field(&s.InitialWeight, validation.Min(s.MinWeight), validation.Max(s.MaxWeight)),
	)
}

// Calculator runs a replica's weight through a chain of modifiers, clamping
// the value to [MinWeight, MaxWeight] after every stage.
type Calculator struct {
	settings  Settings
	modifiers []modifier.Modifier
}

func New(settings Settings, modifiers ...modifier.Modifier) (*Calculator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &Calculator{
		settings:  settings,
		modifiers: modifiers,
	}, nil
}

// Calculate returns the weight of r for a call to cluster. A NaN produced
// anywhere in the chain yields MinWeight.
func (c *Calculator) Calculate(cluster replica.Cluster, r replica.Replica) float64 {
	w := c.settings.InitialWeight

	for _, m := range c.modifiers {
		m.Modify(cluster, r, &w)
		w = c.clamp(w)
	}

	if math.IsNaN(w) {
		return c.settings.MinWeight
	}

	return w
}

// Learn hands the outcome to every modifier in chain order.
func (c *Calculator) Learn(outcome replica.Outcome) {
	for _, m := range c.modifiers {
		m.Learn(outcome)
	}
}

func (c *Calculator) clamp(w float64) float64 {
	return math.Max(c.settings.MinWeight, math.Min(c.settings.MaxWeight, w))
}
