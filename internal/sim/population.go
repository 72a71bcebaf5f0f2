package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"demosim/internal/model"
)

const (
	// ChildAge is the last age at which an agent counts as a child. Only
	// agents strictly older than ChildAge can form partnerships.
	ChildAge = 14
	// MaxInitialAge bounds the ages drawn for the initial population.
	MaxInitialAge = 85
)

var ErrInvariant = errors.New("population invariant violated")

// Population is an arena of agents kept sorted by ID. IDs are assigned from
// a counter and never reused, so partner references survive removals.
type Population struct {
	agents []model.Agent
	nextID model.AgentID
}

// NewPopulation creates n unpartnered agents with uniformly drawn ages in
// [0, MaxInitialAge) and fair-coin sex.
func NewPopulation(rng *rand.Rand, n int) *Population {
	if n < 0 {
		n = 0
	}
	p := &Population{agents: make([]model.Agent, 0, n)}
	ages := make([]int, n)
	for i := range ages {
		ages[i] = rng.Intn(MaxInitialAge)
	}
	for i := 0; i < n; i++ {
		p.add(ages[i], rng.Intn(2) == 0)
	}
	return p
}

// PopulationFromAgents builds a population from explicit agents. IDs must be
// strictly increasing and the result must satisfy the invariant set.
func PopulationFromAgents(agents []model.Agent) (*Population, error) {
	p := &Population{agents: make([]model.Agent, len(agents))}
	copy(p.agents, agents)
	for i := range p.agents {
		if p.agents[i].ID < 0 {
			return nil, fmt.Errorf("%w: agent at index %d has negative id %d", ErrInvariant, i, p.agents[i].ID)
		}
		if i > 0 && p.agents[i].ID <= p.agents[i-1].ID {
			return nil, fmt.Errorf("%w: agent ids must be strictly increasing at index %d", ErrInvariant, i)
		}
	}
	if len(p.agents) > 0 {
		p.nextID = p.agents[len(p.agents)-1].ID + 1
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Population) Len() int {
	if p == nil {
		return 0
	}
	return len(p.agents)
}

// Agents returns a copy of the current agents in ID order.
func (p *Population) Agents() []model.Agent {
	out := make([]model.Agent, len(p.agents))
	copy(out, p.agents)
	return out
}

func (p *Population) Get(id model.AgentID) (model.Agent, bool) {
	idx, ok := p.index(id)
	if !ok {
		return model.Agent{}, false
	}
	return p.agents[idx], true
}

// Validate checks that partner links resolve, are symmetric, and are only
// held by adults, and that no age is negative.
func (p *Population) Validate() error {
	for i, a := range p.agents {
		if i > 0 && a.ID <= p.agents[i-1].ID {
			return fmt.Errorf("%w: agent %d out of id order", ErrInvariant, a.ID)
		}
		if a.Age < 0 {
			return fmt.Errorf("%w: agent %d has negative age %d", ErrInvariant, a.ID, a.Age)
		}
		if !a.HasPartner() {
			continue
		}
		if a.Age <= ChildAge {
			return fmt.Errorf("%w: child agent %d (age %d) has partner %d", ErrInvariant, a.ID, a.Age, a.Partner)
		}
		if a.Partner == a.ID {
			return fmt.Errorf("%w: agent %d is partnered with itself", ErrInvariant, a.ID)
		}
		partner, ok := p.Get(a.Partner)
		if !ok {
			return fmt.Errorf("%w: agent %d references missing partner %d", ErrInvariant, a.ID, a.Partner)
		}
		if partner.Partner != a.ID {
			return fmt.Errorf("%w: agent %d -> %d is not reciprocated (partner points at %d)", ErrInvariant, a.ID, a.Partner, partner.Partner)
		}
	}
	return nil
}

func (p *Population) add(age int, female bool) model.AgentID {
	id := p.nextID
	p.nextID++
	p.agents = append(p.agents, model.Agent{
		ID:      id,
		Age:     age,
		Female:  female,
		Partner: model.NoPartner,
	})
	return id
}

func (p *Population) index(id model.AgentID) (int, bool) {
	idx := sort.Search(len(p.agents), func(i int) bool {
		return p.agents[i].ID >= id
	})
	if idx < len(p.agents) && p.agents[idx].ID == id {
		return idx, true
	}
	return 0, false
}
