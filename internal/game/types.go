package game

import "github.com/google/uuid"

type GameState struct {
	Week          uint16                     `json:"week"`
	Players       []Player                   `json:"players"`
	Companies     map[uuid.UUID]Company      `json:"companies"`
	Organizations map[uuid.UUID]Organization `json:"organizations"`
	Entities      map[uuid.UUID]Entity       `json:"entities"`
}

func NewGameState() *GameState {
	return &GameState{
		Players:       []Player{},
		Companies:     map[uuid.UUID]Company{},
		Organizations: map[uuid.UUID]Organization{},
		Entities:      map[uuid.UUID]Entity{},
	}
}

type Financials struct {
	Money        int64 `json:"money"`
	Expenses     int64 `json:"expenses"`
	Productivity int64 `json:"productivity"`
}

type Perception struct {
	Reputation     int64 `json:"reputation"`
	BrandAwareness int64 `json:"brand_awareness"`
}

type Player struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	CompanyID  uuid.UUID  `json:"company_id"`
	Financials Financials `json:"financials"`
	Perception Perception `json:"perception"`
}

type Company struct {
	ID                      uuid.UUID  `json:"id"`
	Name                    string     `json:"name"`
	PlayerID                uuid.UUID  `json:"player_id"`
	Financials              Financials `json:"financials"`
	Perception              Perception `json:"perception"`
	AvgEmployeeSatisfaction int32      `json:"avg_employee_satisfaction"`
}

type OrganizationType string

const (
	OrgEngineering OrganizationType = "engineering"
	OrgSales       OrganizationType = "sales"
	OrgMarketing   OrganizationType = "marketing"
	OrgFinance     OrganizationType = "finance"
	OrgPeople      OrganizationType = "people"
	OrgOperations  OrganizationType = "operations"
	OrgResearch    OrganizationType = "research"
	OrgLegal       OrganizationType = "legal"
)

var organizationTypes = []OrganizationType{
	OrgEngineering, OrgSales, OrgMarketing, OrgFinance,
	OrgPeople, OrgOperations, OrgResearch, OrgLegal,
}

// CompanyRelation points an organization at the company that owns it.
type CompanyRelation struct {
	EntityID uuid.UUID `json:"entity_id"`
}

type Budget struct {
	Marketing int64 `json:"marketing"`
	RnD       int64 `json:"rnd"`
	Training  int64 `json:"training"`
}

type Initiative struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	WeeksRemaining uint16 `json:"weeks_remaining"`
}

type Organization struct {
	ID              uuid.UUID        `json:"id"`
	Name            string           `json:"name"`
	Type            OrganizationType `json:"type"`
	VP              *uuid.UUID       `json:"vp,omitempty"`
	CompanyRelation CompanyRelation  `json:"company_relation"`
	Financials      Financials       `json:"financials"`
	Perception      Perception       `json:"perception"`
	Budget          Budget           `json:"budget"`
	Initiatives     []Initiative     `json:"initiatives"`
}

type Role string

const (
	RoleVP         Role = "vp"
	RoleHRManager  Role = "hr_manager"
	RoleSalesRep   Role = "sales_rep"
	RoleEngineer   Role = "engineer"
	RoleAccountant Role = "accountant"
	RoleMarketer   Role = "marketer"
	RoleResearcher Role = "researcher"
	RoleRecruiter  Role = "recruiter"
	RoleIntern     Role = "intern"
)

var staffRoles = []Role{
	RoleSalesRep, RoleEngineer, RoleAccountant, RoleMarketer,
	RoleResearcher, RoleRecruiter, RoleIntern, RoleHRManager,
}

type EmploymentFlags struct {
	Remote  bool `json:"remote"`
	OnLeave bool `json:"on_leave"`
}

type Employment struct {
	OrganizationID uuid.UUID       `json:"organization_id"`
	Role           Role            `json:"role"`
	Level          uint8           `json:"level"`
	Salary         int64           `json:"salary"`
	Satisfaction   int32           `json:"satisfaction"`
	Productivity   int32           `json:"productivity"`
	Flags          EmploymentFlags `json:"flags"`
}

type EntityKind string

const (
	KindHuman EntityKind = "human"
	KindCat   EntityKind = "cat"
	KindDog   EntityKind = "dog"
)

type Archetype string

const (
	ArchetypeVisionary Archetype = "visionary"
	ArchetypeGrinder   Archetype = "grinder"
	ArchetypeDiplomat  Archetype = "diplomat"
	ArchetypeMaverick  Archetype = "maverick"
	ArchetypeAnalyst   Archetype = "analyst"
	ArchetypeSlacker   Archetype = "slacker"
)

var archetypes = []Archetype{
	ArchetypeVisionary, ArchetypeGrinder, ArchetypeDiplomat,
	ArchetypeMaverick, ArchetypeAnalyst, ArchetypeSlacker,
}

// EntityType is a tagged variant: humans carry an archetype, animals a breed.
type EntityType struct {
	Kind      EntityKind `json:"kind"`
	Archetype Archetype  `json:"archetype,omitempty"`
	Breed     string     `json:"breed,omitempty"`
}

func (t EntityType) IsHuman() bool { return t.Kind == KindHuman }

type Owner struct {
	EntityID uuid.UUID `json:"entity_id"`
}

type Origin struct {
	WeekOfBirth int32 `json:"week_of_birth"`
}

type Entity struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	EntityType EntityType  `json:"entity_type"`
	Employment *Employment `json:"employment,omitempty"`
	Owner      *Owner      `json:"owner,omitempty"`
	Origin     Origin      `json:"origin"`
}

type HistoryScope string

const (
	ScopePlayer       HistoryScope = "player"
	ScopeCompany      HistoryScope = "company"
	ScopeOrganization HistoryScope = "organization"
)

type HistoryPoint struct {
	Week                    uint16     `json:"week"`
	Financials              Financials `json:"financials"`
	Perception              Perception `json:"perception"`
	AvgEmployeeSatisfaction int32      `json:"avg_employee_satisfaction"`
}

// History is a FIFO of at most MaxHistoryPoints points, oldest first.
type History struct {
	Points []HistoryPoint `json:"points"`
}

func (h *History) Push(p HistoryPoint) {
	if len(h.Points) >= MaxHistoryPoints {
		n := copy(h.Points, h.Points[len(h.Points)-MaxHistoryPoints+1:])
		h.Points = h.Points[:n]
	}
	h.Points = append(h.Points, p)
}

type HistoryState struct {
	Players       map[uuid.UUID]*History `json:"players"`
	Companies     map[uuid.UUID]*History `json:"companies"`
	Organizations map[uuid.UUID]*History `json:"organizations"`
}

func NewHistoryState() *HistoryState {
	return &HistoryState{
		Players:       map[uuid.UUID]*History{},
		Companies:     map[uuid.UUID]*History{},
		Organizations: map[uuid.UUID]*History{},
	}
}

func (h *HistoryState) table(scope HistoryScope) map[uuid.UUID]*History {
	switch scope {
	case ScopePlayer:
		return h.Players
	case ScopeCompany:
		return h.Companies
	case ScopeOrganization:
		return h.Organizations
	default:
		return nil
	}
}

// World is everything an internal event may touch.
type World struct {
	State   *GameState
	History *HistoryState

	// NeedsBroadcast marks the full state snapshot dirty.
	NeedsBroadcast bool
	// NeedsStateUpdate marks the history snapshot dirty.
	NeedsStateUpdate bool
}

func NewWorld() *World {
	return &World{State: NewGameState(), History: NewHistoryState()}
}
