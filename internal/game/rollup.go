package game

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

type aggregate struct {
	Productivity    int64
	Expenses        int64
	satisfactionSum int64
	headcount       int64
}

func (a aggregate) avgSatisfaction() int32 {
	if a.headcount == 0 {
		return 0
	}
	return int32(a.satisfactionSum / a.headcount)
}

func (a *aggregate) add(b aggregate) {
	a.Productivity += b.Productivity
	a.Expenses += b.Expenses
	a.satisfactionSum += b.satisfactionSum
	a.headcount += b.headcount
}

// organizationTotals recomputes productivity, salary expenses and satisfaction
// per organization from the employees currently on its payroll.
func organizationTotals(st *GameState) map[uuid.UUID]aggregate {
	out := make(map[uuid.UUID]aggregate, len(st.Organizations))
	for _, e := range st.Entities {
		emp := e.Employment
		if emp == nil {
			continue
		}
		if _, ok := st.Organizations[emp.OrganizationID]; !ok {
			continue
		}
		t := out[emp.OrganizationID]
		if !emp.Flags.OnLeave {
			t.Productivity += int64(emp.Productivity)
		}
		t.Expenses += emp.Salary
		t.satisfactionSum += int64(emp.Satisfaction)
		t.headcount++
		out[emp.OrganizationID] = t
	}
	return out
}

func companyAggregate(st *GameState, totals map[uuid.UUID]aggregate, companyID uuid.UUID) aggregate {
	var agg aggregate
	for id, org := range st.Organizations {
		if org.CompanyRelation.EntityID != companyID {
			continue
		}
		agg.add(totals[id])
	}
	return agg
}

// playerAggregate sums a player's companies. Money and reputation are owned by
// the companies; productivity and expenses come from the fresh totals.
func playerAggregate(st *GameState, totals map[uuid.UUID]aggregate, playerID uuid.UUID) (Financials, Perception) {
	var fin Financials
	var perc Perception
	for _, id := range sortedIDs(st.Companies) {
		c := st.Companies[id]
		if c.PlayerID != playerID {
			continue
		}
		agg := companyAggregate(st, totals, id)
		fin.Money += c.Financials.Money
		fin.Productivity += agg.Productivity
		fin.Expenses += agg.Expenses
		perc.Reputation += c.Perception.Reputation
		perc.BrandAwareness += c.Perception.BrandAwareness
	}
	return fin, perc
}

func playerSatisfaction(st *GameState, totals map[uuid.UUID]aggregate, playerID uuid.UUID) int32 {
	var agg aggregate
	for id, c := range st.Companies {
		if c.PlayerID == playerID {
			agg.add(companyAggregate(st, totals, id))
		}
	}
	return agg.avgSatisfaction()
}

// Rollup returns the bookkeeping events that follow every processed command:
// organization deltas, initiative countdowns, company and player roll-ups, one
// history point per player, company and organization, and the week advance.
func Rollup(st *GameState) []Event {
	totals := organizationTotals(st)
	orgIDs := sortedIDs(st.Organizations)
	companyIDs := sortedIDs(st.Companies)

	var out []Event
	for _, id := range orgIDs {
		org := st.Organizations[id]
		t := totals[id]
		if d := t.Productivity - org.Financials.Productivity; d != 0 {
			out = append(out, IncrementProductivity{OrganizationID: id, Amount: d})
		}
		if d := t.Expenses - org.Financials.Expenses; d != 0 {
			out = append(out, IncrementExpenses{OrganizationID: id, Amount: d})
		}
	}
	for _, id := range orgIDs {
		if len(st.Organizations[id].Initiatives) > 0 {
			out = append(out, TickInitiatives{OrganizationID: id})
		}
	}
	for _, id := range companyIDs {
		agg := companyAggregate(st, totals, id)
		out = append(out, SetCompanyRollup{
			CompanyID:               id,
			Productivity:            agg.Productivity,
			Expenses:                agg.Expenses,
			AvgEmployeeSatisfaction: agg.avgSatisfaction(),
		})
	}
	for _, p := range st.Players {
		fin, perc := playerAggregate(st, totals, p.ID)
		out = append(out, SetPlayerRollup{PlayerID: p.ID, Financials: fin, Perception: perc})
	}

	for _, p := range st.Players {
		fin, perc := playerAggregate(st, totals, p.ID)
		out = append(out, AppendHistoryPoint{
			Scope:    ScopePlayer,
			TargetID: p.ID,
			Point: HistoryPoint{
				Week:                    st.Week,
				Financials:              fin,
				Perception:              perc,
				AvgEmployeeSatisfaction: playerSatisfaction(st, totals, p.ID),
			},
		})
	}
	for _, id := range companyIDs {
		c := st.Companies[id]
		agg := companyAggregate(st, totals, id)
		fin := c.Financials
		fin.Productivity = agg.Productivity
		fin.Expenses = agg.Expenses
		out = append(out, AppendHistoryPoint{
			Scope:    ScopeCompany,
			TargetID: id,
			Point: HistoryPoint{
				Week:                    st.Week,
				Financials:              fin,
				Perception:              c.Perception,
				AvgEmployeeSatisfaction: agg.avgSatisfaction(),
			},
		})
	}
	for _, id := range orgIDs {
		org := st.Organizations[id]
		t := totals[id]
		fin := org.Financials
		fin.Productivity = t.Productivity
		fin.Expenses = t.Expenses
		out = append(out, AppendHistoryPoint{
			Scope:    ScopeOrganization,
			TargetID: id,
			Point: HistoryPoint{
				Week:                    st.Week,
				Financials:              fin,
				Perception:              org.Perception,
				AvgEmployeeSatisfaction: t.avgSatisfaction(),
			},
		})
	}

	return append(out, AdvanceWeek{})
}

func sortedIDs[T any](m map[uuid.UUID]T) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
