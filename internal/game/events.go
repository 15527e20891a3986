package game

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindGenerateWorld         EventKind = "GenerateWorld"
	KindClearEmployment       EventKind = "ClearEmployment"
	KindSetEmployment         EventKind = "SetEmployment"
	KindSetRole               EventKind = "SetRole"
	KindSetVp                 EventKind = "SetVp"
	KindIncrementSatisfaction EventKind = "IncrementSatisfaction"
	KindIncrementSalary       EventKind = "IncrementSalary"
	KindIncrementReputation   EventKind = "IncrementReputation"
	KindIncrementMoney        EventKind = "IncrementMoney"
	KindSetBudget             EventKind = "SetBudget"
	KindIncrementProductivity EventKind = "IncrementProductivity"
	KindIncrementExpenses     EventKind = "IncrementExpenses"
	KindTickInitiatives       EventKind = "TickInitiatives"
	KindSetCompanyRollup      EventKind = "SetCompanyRollup"
	KindSetPlayerRollup       EventKind = "SetPlayerRollup"
	KindAppendHistoryPoint    EventKind = "AppendHistoryPoint"
	KindAdvanceWeek           EventKind = "AdvanceWeek"
)

// Event is one internal state transition. The set of implementations is
// closed; Apply handles every one of them.
type Event interface {
	Kind() EventKind
}

type GenerateWorld struct {
	Seed     uint64 `json:"seed"`
	Week     uint16 `json:"week"`
	OrgCount int    `json:"org_count"`
}

type ClearEmployment struct {
	EmployeeID uuid.UUID `json:"employee_id"`
}

type SetEmployment struct {
	EmployeeID uuid.UUID  `json:"employee_id"`
	Employment Employment `json:"employment"`
}

type SetRole struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Role       Role      `json:"role"`
}

type SetVp struct {
	OrganizationID uuid.UUID  `json:"organization_id"`
	EmployeeID     *uuid.UUID `json:"employee_id,omitempty"`
}

type IncrementSatisfaction struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Amount     int32     `json:"amount"`
}

type IncrementSalary struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Amount     int64     `json:"amount"`
}

type IncrementReputation struct {
	CompanyID uuid.UUID `json:"company_id"`
	Amount    int64     `json:"amount"`
}

type IncrementMoney struct {
	CompanyID uuid.UUID `json:"company_id"`
	Amount    int64     `json:"amount"`
}

type SetBudget struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Budget         Budget    `json:"budget"`
}

type IncrementProductivity struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Amount         int64     `json:"amount"`
}

type IncrementExpenses struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Amount         int64     `json:"amount"`
}

type TickInitiatives struct {
	OrganizationID uuid.UUID `json:"organization_id"`
}

type SetCompanyRollup struct {
	CompanyID               uuid.UUID `json:"company_id"`
	Productivity            int64     `json:"productivity"`
	Expenses                int64     `json:"expenses"`
	AvgEmployeeSatisfaction int32     `json:"avg_employee_satisfaction"`
}

type SetPlayerRollup struct {
	PlayerID   uuid.UUID  `json:"player_id"`
	Financials Financials `json:"financials"`
	Perception Perception `json:"perception"`
}

type AppendHistoryPoint struct {
	Scope    HistoryScope `json:"scope"`
	TargetID uuid.UUID    `json:"target_id"`
	Point    HistoryPoint `json:"point"`
}

type AdvanceWeek struct{}

func (GenerateWorld) Kind() EventKind         { return KindGenerateWorld }
func (ClearEmployment) Kind() EventKind       { return KindClearEmployment }
func (SetEmployment) Kind() EventKind         { return KindSetEmployment }
func (SetRole) Kind() EventKind               { return KindSetRole }
func (SetVp) Kind() EventKind                 { return KindSetVp }
func (IncrementSatisfaction) Kind() EventKind { return KindIncrementSatisfaction }
func (IncrementSalary) Kind() EventKind       { return KindIncrementSalary }
func (IncrementReputation) Kind() EventKind   { return KindIncrementReputation }
func (IncrementMoney) Kind() EventKind        { return KindIncrementMoney }
func (SetBudget) Kind() EventKind             { return KindSetBudget }
func (IncrementProductivity) Kind() EventKind { return KindIncrementProductivity }
func (IncrementExpenses) Kind() EventKind     { return KindIncrementExpenses }
func (TickInitiatives) Kind() EventKind       { return KindTickInitiatives }
func (SetCompanyRollup) Kind() EventKind      { return KindSetCompanyRollup }
func (SetPlayerRollup) Kind() EventKind       { return KindSetPlayerRollup }
func (AppendHistoryPoint) Kind() EventKind    { return KindAppendHistoryPoint }
func (AdvanceWeek) Kind() EventKind           { return KindAdvanceWeek }

func newEvent(kind EventKind) (Event, error) {
	switch kind {
	case KindGenerateWorld:
		return &GenerateWorld{}, nil
	case KindClearEmployment:
		return &ClearEmployment{}, nil
	case KindSetEmployment:
		return &SetEmployment{}, nil
	case KindSetRole:
		return &SetRole{}, nil
	case KindSetVp:
		return &SetVp{}, nil
	case KindIncrementSatisfaction:
		return &IncrementSatisfaction{}, nil
	case KindIncrementSalary:
		return &IncrementSalary{}, nil
	case KindIncrementReputation:
		return &IncrementReputation{}, nil
	case KindIncrementMoney:
		return &IncrementMoney{}, nil
	case KindSetBudget:
		return &SetBudget{}, nil
	case KindIncrementProductivity:
		return &IncrementProductivity{}, nil
	case KindIncrementExpenses:
		return &IncrementExpenses{}, nil
	case KindTickInitiatives:
		return &TickInitiatives{}, nil
	case KindSetCompanyRollup:
		return &SetCompanyRollup{}, nil
	case KindSetPlayerRollup:
		return &SetPlayerRollup{}, nil
	case KindAppendHistoryPoint:
		return &AppendHistoryPoint{}, nil
	case KindAdvanceWeek:
		return &AdvanceWeek{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, kind)
	}
}

type taggedJSON struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EventJSON carries an Event through encoding/json as {"kind":..,"data":..}.
type EventJSON struct {
	Event Event
}

func (e EventJSON) MarshalJSON() ([]byte, error) {
	if e.Event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrUnknownEvent)
	}
	data, err := json.Marshal(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedJSON{Kind: string(e.Event.Kind()), Data: data})
}

func (e *EventJSON) UnmarshalJSON(b []byte) error {
	var t taggedJSON
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	ptr, err := newEvent(EventKind(t.Kind))
	if err != nil {
		return err
	}
	if len(t.Data) > 0 && string(t.Data) != "null" {
		if err := json.Unmarshal(t.Data, ptr); err != nil {
			return fmt.Errorf("decode %s: %w", t.Kind, err)
		}
	}
	e.Event = deref(ptr)
	return nil
}

// deref turns the pointer produced by newEvent back into the value type that
// the rest of the package switches on.
func deref(ev Event) Event {
	switch v := ev.(type) {
	case *GenerateWorld:
		return *v
	case *ClearEmployment:
		return *v
	case *SetEmployment:
		return *v
	case *SetRole:
		return *v
	case *SetVp:
		return *v
	case *IncrementSatisfaction:
		return *v
	case *IncrementSalary:
		return *v
	case *IncrementReputation:
		return *v
	case *IncrementMoney:
		return *v
	case *SetBudget:
		return *v
	case *IncrementProductivity:
		return *v
	case *IncrementExpenses:
		return *v
	case *TickInitiatives:
		return *v
	case *SetCompanyRollup:
		return *v
	case *SetPlayerRollup:
		return *v
	case *AppendHistoryPoint:
		return *v
	case *AdvanceWeek:
		return *v
	default:
		return ev
	}
}
