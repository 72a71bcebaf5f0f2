package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"demosim/internal/model"
)

var ErrInvalidRate = errors.New("rate must be within [0,1]")

// Engine applies one simulation step: pairing, reproduction, mortality and
// aging, in that order.
type Engine struct {
	FertilityRate float64
	MortalityRate float64
	// CheckInvariants validates the population after every step.
	CheckInvariants bool
}

func NewEngine(fertilityRate, mortalityRate float64) (Engine, error) {
	e := Engine{
		FertilityRate:   fertilityRate,
		MortalityRate:   mortalityRate,
		CheckInvariants: true,
	}
	if err := e.validate(); err != nil {
		return Engine{}, err
	}
	return e, nil
}

func (e Engine) validate() error {
	if math.IsNaN(e.FertilityRate) || e.FertilityRate < 0 || e.FertilityRate > 1 {
		return fmt.Errorf("fertility %w, got %v", ErrInvalidRate, e.FertilityRate)
	}
	if math.IsNaN(e.MortalityRate) || e.MortalityRate < 0 || e.MortalityRate > 1 {
		return fmt.Errorf("mortality %w, got %v", ErrInvalidRate, e.MortalityRate)
	}
	return nil
}

// Step advances pop by one time step. All randomness is drawn from rng.
func (e Engine) Step(rng *rand.Rand, pop *Population) (model.StepMetrics, error) {
	if pop == nil {
		return model.StepMetrics{}, errors.New("population is required")
	}
	if rng == nil {
		return model.StepMetrics{}, errors.New("random source is required")
	}
	if err := e.validate(); err != nil {
		return model.StepMetrics{}, err
	}

	Pair(rng, pop)
	births := Reproduce(rng, pop, e.FertilityRate)
	deaths := Mortality(rng, pop, e.MortalityRate)
	Age(pop)

	if e.CheckInvariants {
		if err := pop.Validate(); err != nil {
			return model.StepMetrics{}, err
		}
	}
	return model.StepMetrics{
		Births:         births,
		Deaths:         deaths,
		PopulationSize: pop.Len(),
	}, nil
}

// Pair matches unpartnered adults of opposite sex at random and returns the
// number of new pairs, min(#females, #males) among the candidates.
func Pair(rng *rand.Rand, pop *Population) int {
	var females, males []int
	for i, a := range pop.agents {
		if a.Age <= ChildAge || a.HasPartner() {
			continue
		}
		if a.Female {
			females = append(females, i)
		} else {
			males = append(males, i)
		}
	}

	rng.Shuffle(len(females), func(i, j int) { females[i], females[j] = females[j], females[i] })
	rng.Shuffle(len(males), func(i, j int) { males[i], males[j] = males[j], males[i] })

	pairs := min(len(females), len(males))
	for i := 0; i < pairs; i++ {
		f, m := females[i], males[i]
		pop.agents[f].Partner = pop.agents[m].ID
		pop.agents[m].Partner = pop.agents[f].ID
	}
	return pairs
}

// Reproduce draws one Bernoulli trial per partnered female and appends one
// newborn per success. Parents are left untouched.
func Reproduce(rng *rand.Rand, pop *Population, fertilityRate float64) int {
	births := 0
	for _, a := range pop.agents {
		if !a.Female || !a.HasPartner() {
			continue
		}
		if rng.Float64() < fertilityRate {
			births++
		}
	}
	for i := 0; i < births; i++ {
		pop.add(0, rng.Intn(2) == 0)
	}
	return births
}

// Mortality removes each agent, newborns included, with probability
// mortalityRate. Survivors whose partner died are unpartnered in the same
// pass.
func Mortality(rng *rand.Rand, pop *Population, mortalityRate float64) int {
	died := make([]bool, len(pop.agents))
	widowed := make(map[model.AgentID]struct{})
	deaths := 0
	for i, a := range pop.agents {
		if rng.Float64() < mortalityRate {
			died[i] = true
			deaths++
			if a.HasPartner() {
				widowed[a.Partner] = struct{}{}
			}
		}
	}
	if deaths == 0 {
		return 0
	}

	survivors := pop.agents[:0]
	for i, a := range pop.agents {
		if died[i] {
			continue
		}
		if _, ok := widowed[a.ID]; ok {
			a.Partner = model.NoPartner
		}
		survivors = append(survivors, a)
	}
	clear(pop.agents[len(survivors):])
	pop.agents = survivors
	return deaths
}

// Age increments every agent's age by one.
func Age(pop *Population) {
	for i := range pop.agents {
		pop.agents[i].Age++
	}
}
