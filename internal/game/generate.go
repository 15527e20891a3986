package game

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes generated ids so they never collide with random v4 ids.
var idNamespace = uuid.MustParse("6f1c5a2e-8d3b-4c71-9a0e-2b7d4e9f1c38")

// idSource derives ids from a SHA-1 of (seed, counter) so that the same seed
// always yields the same ids in the same order.
type idSource struct {
	seed    uint64
	counter uint64
}

func (s *idSource) next() uuid.UUID {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], s.seed)
	binary.BigEndian.PutUint64(buf[8:], s.counter)
	s.counter++
	return uuid.NewSHA1(idNamespace, buf[:])
}

type generator struct {
	rng    *rand.Rand
	ids    *idSource
	people *personNames
	pets   *namePool
	week   uint16
	state  *GameState
}

// Generate builds the initial world for a game. It is a pure function of its
// arguments: no clock, no global randomness.
func Generate(seed uint64, week uint16, orgCount int) *GameState {
	if orgCount < 0 {
		orgCount = 0
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	g := &generator{
		rng:    rng,
		ids:    &idSource{seed: seed},
		people: newPersonNames(rng),
		pets:   newNamePool(rng, petNames),
		week:   week,
		state:  NewGameState(),
	}
	g.state.Week = week

	player := Player{ID: g.ids.next(), Name: g.people.next()}
	company := Company{
		ID:       g.ids.next(),
		Name:     newNamePool(rng, companyNames).next(),
		PlayerID: player.ID,
		Financials: Financials{
			Money: StarterMoney,
		},
		Perception: Perception{
			Reputation:     StarterReputation,
			BrandAwareness: 10 + rng.Int63n(20),
		},
	}
	player.CompanyID = company.ID
	g.state.Players = append(g.state.Players, player)
	g.state.Companies[company.ID] = company

	humans := make([]uuid.UUID, 0, orgCount*6)
	for i := 0; i < orgCount; i++ {
		org := g.organization(i, company.ID)
		vp := g.human(&Employment{
			OrganizationID: org.ID,
			Role:           RoleVP,
			Level:          uint8(5 + rng.Intn(3)),
			Salary:         150_000 + rng.Int63n(50_000),
			Satisfaction:   int32(55 + rng.Intn(30)),
			Productivity:   int32(25 + rng.Intn(15)),
		})
		vpID := vp.ID
		org.VP = &vpID
		humans = append(humans, vp.ID)

		staff := 2 + rng.Intn(4)
		for j := 0; j < staff; j++ {
			e := g.human(&Employment{
				OrganizationID: org.ID,
				Role:           pick(rng, staffRoles),
				Level:          uint8(1 + rng.Intn(4)),
				Salary:         45_000 + rng.Int63n(60_000),
				Satisfaction:   int32(35 + rng.Intn(50)),
				Productivity:   int32(5 + rng.Intn(20)),
				Flags: EmploymentFlags{
					Remote: rng.Intn(4) == 0,
				},
			})
			humans = append(humans, e.ID)
		}
		g.state.Organizations[org.ID] = org
	}

	for i := 0; i < orgCount*2+2; i++ {
		e := g.human(nil)
		humans = append(humans, e.ID)
	}

	for _, owner := range humans {
		if rng.Intn(4) != 0 {
			continue
		}
		g.pet(owner)
	}

	settleTotals(g.state)
	return g.state
}

func (g *generator) organization(i int, companyID uuid.UUID) Organization {
	typ := organizationTypes[i%len(organizationTypes)]
	name := fmt.Sprintf("%s %s", titleCase(string(typ)), pick(g.rng, orgSuffixes))
	if round := i / len(organizationTypes); round > 0 {
		name = fmt.Sprintf("%s %d", name, round+1)
	}
	org := Organization{
		ID:              g.ids.next(),
		Name:            name,
		Type:            typ,
		CompanyRelation: CompanyRelation{EntityID: companyID},
		Perception: Perception{
			Reputation:     10 + g.rng.Int63n(20),
			BrandAwareness: g.rng.Int63n(10),
		},
		Budget: Budget{
			Marketing: 1_000 * (1 + g.rng.Int63n(5)),
			RnD:       1_000 * (1 + g.rng.Int63n(5)),
			Training:  500 * (1 + g.rng.Int63n(4)),
		},
		Initiatives: []Initiative{},
	}
	if g.rng.Intn(3) == 0 {
		org.Initiatives = append(org.Initiatives, pick(g.rng, initiativeCatalog))
	}
	return org
}

func (g *generator) human(emp *Employment) Entity {
	e := Entity{
		ID:   g.ids.next(),
		Name: g.people.next(),
		EntityType: EntityType{
			Kind:      KindHuman,
			Archetype: pick(g.rng, archetypes),
		},
		Employment: emp,
		Origin: Origin{
			WeekOfBirth: int32(g.week) - int32(52*(22+g.rng.Intn(40))),
		},
	}
	g.state.Entities[e.ID] = e
	return e
}

func (g *generator) pet(owner uuid.UUID) Entity {
	typ := EntityType{Kind: KindCat, Breed: pick(g.rng, catBreeds)}
	if g.rng.Intn(2) == 0 {
		typ = EntityType{Kind: KindDog, Breed: pick(g.rng, dogBreeds)}
	}
	e := Entity{
		ID:         g.ids.next(),
		Name:       g.pets.next(),
		EntityType: typ,
		Owner:      &Owner{EntityID: owner},
		Origin: Origin{
			WeekOfBirth: int32(g.week) - int32(1+g.rng.Intn(52*12)),
		},
	}
	g.state.Entities[e.ID] = e
	return e
}

// settleTotals writes the rolled-up figures straight into a freshly generated
// state, so week zero already shows consistent totals.
func settleTotals(st *GameState) {
	totals := organizationTotals(st)
	for id, org := range st.Organizations {
		t := totals[id]
		org.Financials.Productivity = t.Productivity
		org.Financials.Expenses = t.Expenses
		st.Organizations[id] = org
	}
	for id, c := range st.Companies {
		agg := companyAggregate(st, totals, id)
		c.Financials.Productivity = agg.Productivity
		c.Financials.Expenses = agg.Expenses
		c.AvgEmployeeSatisfaction = agg.avgSatisfaction()
		st.Companies[id] = c
	}
	for i, p := range st.Players {
		fin, perc := playerAggregate(st, totals, p.ID)
		st.Players[i].Financials = fin
		st.Players[i].Perception = perc
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
