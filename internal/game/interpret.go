package game

import "github.com/google/uuid"

// Interpret translates a command into the events that carry it out, reading
// but never writing st. Ids that do not resolve produce fewer events, never an
// error.
func Interpret(st *GameState, cmd Command) []Event {
	switch c := cmd.(type) {
	case FireEmployee:
		out := []Event{ClearEmployment{EmployeeID: c.EmployeeID}}
		for _, id := range sortedIDs(st.Organizations) {
			vp := st.Organizations[id].VP
			if vp != nil && *vp == c.EmployeeID {
				out = append(out, SetVp{OrganizationID: id})
			}
		}
		return out

	case HireEmployee:
		if _, ok := st.Entities[c.EmployeeID]; !ok {
			return nil
		}
		if _, ok := st.Organizations[c.OrganizationID]; !ok {
			return nil
		}
		return []Event{SetEmployment{
			EmployeeID: c.EmployeeID,
			Employment: DefaultHireEmployment(c.OrganizationID),
		}}

	case GiveRaise:
		return []Event{
			IncrementSatisfaction{EmployeeID: c.EmployeeID, Amount: RaiseSatisfaction},
			IncrementSalary{EmployeeID: c.EmployeeID, Amount: c.Amount},
		}

	case LaunchPRCampaign:
		var target uuid.UUID
		switch {
		case c.CompanyID != nil:
			target = *c.CompanyID
		case len(st.Players) > 0:
			target = st.Players[0].CompanyID
		default:
			return nil
		}
		return []Event{
			IncrementReputation{CompanyID: target, Amount: PRCampaignReputation},
			IncrementMoney{CompanyID: target, Amount: -PRCampaignCost},
		}

	case PromoteToVp:
		// Only staff of the organization itself can become its vp.
		org, ok := st.Organizations[c.OrganizationID]
		if !ok {
			return nil
		}
		ent, ok := st.Entities[c.EmployeeID]
		if !ok || ent.Employment == nil || ent.Employment.OrganizationID != c.OrganizationID {
			return nil
		}
		out := []Event{SetRole{EmployeeID: c.EmployeeID, Role: RoleVP}}
		if org.VP != nil && *org.VP != c.EmployeeID {
			out = append(out, SetRole{EmployeeID: *org.VP, Role: RoleHRManager})
		}
		emp := c.EmployeeID
		return append(out, SetVp{OrganizationID: c.OrganizationID, EmployeeID: &emp})

	case UpdateBudget:
		return []Event{SetBudget{OrganizationID: c.OrganizationID, Budget: c.OrganizationBudget}}

	case DoNothing:
		return nil

	default:
		return nil
	}
}
