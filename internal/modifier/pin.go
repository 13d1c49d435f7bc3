package modifier

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Pin boosts preferred replicas. With an infinite multiplier (and an infinite
// calculator maximum) pinned replicas are always tried first.
type Pin struct {
	pinned       map[replica.Replica]struct{}
	upMultiplier float64
}

func NewPin(upMultiplier float64, pinned ...replica.Replica) (*Pin, error) {
	err := validation.Validate(upMultiplier,
		validation.By(func(value interface{}) error {
			m, _ := value.(float64)
			if !(m > 1) {
				return validation.NewError("validation_invalid_multiplier", "must be greater than 1")
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	set := make(map[replica.Replica]struct{}, len(pinned))
	for _, r := range pinned {
		set[r] = struct{}{}
	}

	return &Pin{pinned: set, upMultiplier: upMultiplier}, nil
}

func (p *Pin) Modify(_ replica.Cluster, r replica.Replica, weight *float64) {
	if _, ok := p.pinned[r]; ok {
		*weight *= p.upMultiplier
	}
}

func (p *Pin) Learn(replica.Outcome) {}
