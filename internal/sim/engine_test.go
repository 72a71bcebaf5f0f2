package sim

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demosim/internal/model"
)

func agent(id model.AgentID, age int, female bool) model.Agent {
	return model.Agent{ID: id, Age: age, Female: female, Partner: model.NoPartner}
}

func couple(female, male model.AgentID, age int) []model.Agent {
	f := agent(female, age, true)
	m := agent(male, age, false)
	f.Partner = male
	m.Partner = female
	return []model.Agent{f, m}
}

func TestNewPopulation(t *testing.T) {
	pop := NewPopulation(rand.New(rand.NewSource(1)), 1000)
	require.Equal(t, 1000, pop.Len())

	females := 0
	for i, a := range pop.Agents() {
		assert.Equal(t, model.AgentID(i), a.ID)
		assert.GreaterOrEqual(t, a.Age, 0)
		assert.Less(t, a.Age, MaxInitialAge)
		assert.False(t, a.HasPartner())
		if a.Female {
			females++
		}
	}
	assert.InDelta(t, 500, females, 80)
	require.NoError(t, pop.Validate())

	assert.Equal(t, 0, NewPopulation(rand.New(rand.NewSource(1)), 0).Len())
}

func TestPopulationFromAgentsRejectsBrokenLinks(t *testing.T) {
	cases := map[string][]model.Agent{
		"dangling partner": {
			{ID: 0, Age: 30, Female: true, Partner: 7},
		},
		"one sided": {
			{ID: 0, Age: 30, Female: true, Partner: 1},
			agent(1, 30, false),
		},
		"partnered child": couple(0, 1, ChildAge),
		"self partner": {
			{ID: 0, Age: 30, Female: true, Partner: 0},
		},
		"negative age": {agent(0, -1, true)},
		"unordered ids": {agent(2, 20, true), agent(1, 20, false)},
	}
	for name, agents := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PopulationFromAgents(agents)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvariant))
		})
	}
}

func TestPopulationGetAfterRemoval(t *testing.T) {
	pop, err := PopulationFromAgents(append(couple(0, 1, 40), agent(2, 40, true)))
	require.NoError(t, err)

	Mortality(rand.New(rand.NewSource(3)), pop, 1)
	assert.Equal(t, 0, pop.Len())
	_, ok := pop.Get(1)
	assert.False(t, ok)

	pop.add(0, true)
	a, ok := pop.Get(3)
	require.True(t, ok)
	assert.Equal(t, model.AgentID(3), a.ID)
}

func TestPairMatchesOnlyUnpartneredAdults(t *testing.T) {
	agents := []model.Agent{
		agent(0, 20, true),
		agent(1, 30, true),
		agent(2, 40, true),
		agent(3, 20, false),
		agent(4, 25, false),
		agent(5, 50, false),
		agent(6, 60, false),
		agent(7, 70, false),
		agent(8, ChildAge, true),
		agent(9, 3, false),
	}
	agents = append(agents, couple(10, 11, 35)...)
	pop, err := PopulationFromAgents(agents)
	require.NoError(t, err)

	pairs := Pair(rand.New(rand.NewSource(42)), pop)
	assert.Equal(t, 3, pairs)
	require.NoError(t, pop.Validate())

	partnered := 0
	for _, a := range pop.Agents() {
		if a.Age <= ChildAge {
			assert.False(t, a.HasPartner(), "child %d must stay single", a.ID)
			continue
		}
		if a.HasPartner() {
			partnered++
			p, ok := pop.Get(a.Partner)
			require.True(t, ok)
			assert.NotEqual(t, a.Female, p.Female)
		}
	}
	assert.Equal(t, 2*3+2, partnered)

	existing, _ := pop.Get(10)
	assert.Equal(t, model.AgentID(11), existing.Partner)

	assert.Equal(t, 0, Pair(rand.New(rand.NewSource(42)), pop), "no new pairs without single females")
}

func TestReproduceAppendsNewborns(t *testing.T) {
	agents := append(couple(0, 1, 30), couple(2, 3, 30)...)
	agents = append(agents, agent(4, 30, true))
	pop, err := PopulationFromAgents(agents)
	require.NoError(t, err)

	births := Reproduce(rand.New(rand.NewSource(5)), pop, 1)
	assert.Equal(t, 2, births)
	require.Equal(t, 7, pop.Len())

	all := pop.Agents()
	for _, baby := range all[5:] {
		assert.Equal(t, 0, baby.Age)
		assert.False(t, baby.HasPartner())
	}
	assert.Equal(t, model.AgentID(1), all[0].Partner)
	assert.Equal(t, 0, Reproduce(rand.New(rand.NewSource(5)), pop, 0))
}

func TestMortalityFractionAndWidows(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var agents []model.Agent
	for i := 0; i < 10000; i += 2 {
		agents = append(agents, couple(model.AgentID(i), model.AgentID(i+1), 40)...)
	}
	pop, err := PopulationFromAgents(agents)
	require.NoError(t, err)

	deaths := Mortality(rng, pop, 0.3)
	assert.InDelta(t, 0.3, float64(deaths)/10000, 0.02)
	assert.Equal(t, 10000-deaths, pop.Len())
	require.NoError(t, pop.Validate())

	widows := 0
	for _, a := range pop.Agents() {
		if !a.HasPartner() {
			widows++
		}
	}
	assert.Greater(t, widows, 0)

	assert.Equal(t, 0, Mortality(rng, pop, 0))
	survivors := pop.Len()
	assert.Equal(t, survivors, Mortality(rng, pop, 1))
}

func TestMortalityAllRemovesEveryone(t *testing.T) {
	pop := NewPopulation(rand.New(rand.NewSource(2)), 50)
	assert.Equal(t, 50, Mortality(rand.New(rand.NewSource(2)), pop, 1))
	assert.Equal(t, 0, pop.Len())
}

func TestAgeIncrementsEveryAgent(t *testing.T) {
	pop := NewPopulation(rand.New(rand.NewSource(9)), 100)
	before := pop.Agents()
	Age(pop)
	after := pop.Agents()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].Age+1, after[i].Age)
		assert.Equal(t, before[i].Female, after[i].Female)
	}
}

func TestEngineStepKeepsInvariants(t *testing.T) {
	engine, err := NewEngine(0.2, 0.05)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(77))
	pop := NewPopulation(rng, 800)

	for step := 0; step < 50; step++ {
		before := pop.Len()
		m, err := engine.Step(rng, pop)
		require.NoError(t, err)
		assert.Equal(t, before+m.Births-m.Deaths, m.PopulationSize)
		assert.Equal(t, pop.Len(), m.PopulationSize)
	}
}

func TestEngineRejectsInvalidRates(t *testing.T) {
	_, err := NewEngine(1.5, 0.1)
	assert.True(t, errors.Is(err, ErrInvalidRate))
	_, err = NewEngine(0.1, -0.1)
	assert.True(t, errors.Is(err, ErrInvalidRate))

	engine := Engine{FertilityRate: 0.1, MortalityRate: 2}
	_, err = engine.Step(rand.New(rand.NewSource(1)), NewPopulation(rand.New(rand.NewSource(1)), 3))
	assert.True(t, errors.Is(err, ErrInvalidRate))

	ok, err := NewEngine(0.1, 0.1)
	require.NoError(t, err)
	_, err = ok.Step(rand.New(rand.NewSource(1)), nil)
	assert.Error(t, err)
	_, err = ok.Step(nil, NewPopulation(rand.New(rand.NewSource(1)), 3))
	assert.Error(t, err)
}
