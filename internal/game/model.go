package game

import (
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxHistoryPoints = 50

	DefaultOrgCount = 7

	StarterMoney      = int64(250_000)
	StarterReputation = int64(50)

	PRCampaignCost       = int64(1_000)
	PRCampaignReputation = int64(1)
	RaiseSatisfaction    = int32(1)

	DefaultHireSalary       = int64(52_000)
	DefaultHireSatisfaction = int32(60)
	DefaultHireProductivity = int32(10)

	MaxGameNameLength = 64
)

var (
	ErrInvalidGameName = errors.New("game name must be 1-64 letters, digits, spaces, dashes or underscores")
	ErrUnknownEvent    = errors.New("unknown event kind")
	ErrUnknownCommand  = errors.New("unknown command kind")
)

var gameNameRE = regexp.MustCompile(`^[A-Za-z0-9 _\-]{1,64}$`)

func ValidateGameName(name string) error {
	name = strings.TrimSpace(name)
	if !gameNameRE.MatchString(name) {
		return ErrInvalidGameName
	}
	return nil
}

// SeedForGame derives the world seed from a game id so a cold start and a
// command-log redrive build the same world.
func SeedForGame(id uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(id[:8])
}

func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse id %q: %w", s, err)
	}
	return id, nil
}

// Metadata describes a game independently of its simulated state.
type Metadata struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// DefaultHireEmployment is what HireEmployee assigns, independent of any
// requested role.
func DefaultHireEmployment(orgID uuid.UUID) Employment {
	return Employment{
		OrganizationID: orgID,
		Role:           RoleSalesRep,
		Level:          1,
		Salary:         DefaultHireSalary,
		Satisfaction:   DefaultHireSatisfaction,
		Productivity:   DefaultHireProductivity,
	}
}
