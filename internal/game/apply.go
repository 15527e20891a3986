package game

import "github.com/google/uuid"

// Apply folds one event into the world. It is the only code path that mutates
// GameState or HistoryState, and it runs unchanged for live traffic and for
// log replay: no I/O, no clock, nothing outside (ev, w).
//
// Events naming an id that does not exist are ignored.
func Apply(ev Event, w *World) {
	if w.State == nil {
		w.State = NewGameState()
	}
	if w.History == nil {
		w.History = NewHistoryState()
	}
	st := w.State

	switch e := ev.(type) {
	case GenerateWorld:
		w.State = Generate(e.Seed, e.Week, e.OrgCount)
		w.History = NewHistoryState()
		w.NeedsBroadcast = true
		w.NeedsStateUpdate = true

	case ClearEmployment:
		ent, ok := st.Entities[e.EmployeeID]
		if !ok {
			return
		}
		ent.Employment = nil
		st.Entities[e.EmployeeID] = ent

	case SetEmployment:
		ent, ok := st.Entities[e.EmployeeID]
		if !ok {
			return
		}
		emp := e.Employment
		ent.Employment = &emp
		st.Entities[e.EmployeeID] = ent

	case SetRole:
		updateEmployment(st, e.EmployeeID, func(emp *Employment) { emp.Role = e.Role })

	case SetVp:
		org, ok := st.Organizations[e.OrganizationID]
		if !ok {
			return
		}
		if e.EmployeeID == nil {
			org.VP = nil
		} else {
			id := *e.EmployeeID
			org.VP = &id
		}
		st.Organizations[e.OrganizationID] = org

	case IncrementSatisfaction:
		updateEmployment(st, e.EmployeeID, func(emp *Employment) { emp.Satisfaction += e.Amount })

	case IncrementSalary:
		updateEmployment(st, e.EmployeeID, func(emp *Employment) { emp.Salary += e.Amount })

	case IncrementReputation:
		c, ok := st.Companies[e.CompanyID]
		if !ok {
			return
		}
		c.Perception.Reputation += e.Amount
		st.Companies[e.CompanyID] = c

	case IncrementMoney:
		c, ok := st.Companies[e.CompanyID]
		if !ok {
			return
		}
		c.Financials.Money += e.Amount
		st.Companies[e.CompanyID] = c

	case SetBudget:
		org, ok := st.Organizations[e.OrganizationID]
		if !ok {
			return
		}
		org.Budget = e.Budget
		st.Organizations[e.OrganizationID] = org

	case IncrementProductivity:
		org, ok := st.Organizations[e.OrganizationID]
		if !ok {
			return
		}
		org.Financials.Productivity += e.Amount
		st.Organizations[e.OrganizationID] = org

	case IncrementExpenses:
		org, ok := st.Organizations[e.OrganizationID]
		if !ok {
			return
		}
		org.Financials.Expenses += e.Amount
		st.Organizations[e.OrganizationID] = org

	case TickInitiatives:
		org, ok := st.Organizations[e.OrganizationID]
		if !ok {
			return
		}
		kept := make([]Initiative, 0, len(org.Initiatives))
		for _, in := range org.Initiatives {
			if in.WeeksRemaining <= 1 {
				continue
			}
			in.WeeksRemaining--
			kept = append(kept, in)
		}
		org.Initiatives = kept
		st.Organizations[e.OrganizationID] = org

	case SetCompanyRollup:
		c, ok := st.Companies[e.CompanyID]
		if !ok {
			return
		}
		c.Financials.Productivity = e.Productivity
		c.Financials.Expenses = e.Expenses
		c.AvgEmployeeSatisfaction = e.AvgEmployeeSatisfaction
		st.Companies[e.CompanyID] = c

	case SetPlayerRollup:
		for i := range st.Players {
			if st.Players[i].ID == e.PlayerID {
				st.Players[i].Financials = e.Financials
				st.Players[i].Perception = e.Perception
				return
			}
		}

	case AppendHistoryPoint:
		if !historyTargetExists(st, e.Scope, e.TargetID) {
			return
		}
		table := w.History.table(e.Scope)
		h := table[e.TargetID]
		if h == nil {
			h = &History{Points: make([]HistoryPoint, 0, MaxHistoryPoints)}
			table[e.TargetID] = h
		}
		h.Push(e.Point)
		w.NeedsStateUpdate = true

	case AdvanceWeek:
		st.Week++
		w.NeedsBroadcast = true
	}
}

func updateEmployment(st *GameState, id uuid.UUID, fn func(*Employment)) {
	ent, ok := st.Entities[id]
	if !ok || ent.Employment == nil {
		return
	}
	emp := *ent.Employment
	fn(&emp)
	ent.Employment = &emp
	st.Entities[id] = ent
}

func historyTargetExists(st *GameState, scope HistoryScope, id uuid.UUID) bool {
	switch scope {
	case ScopePlayer:
		for _, p := range st.Players {
			if p.ID == id {
				return true
			}
		}
		return false
	case ScopeCompany:
		_, ok := st.Companies[id]
		return ok
	case ScopeOrganization:
		_, ok := st.Organizations[id]
		return ok
	default:
		return false
	}
}
