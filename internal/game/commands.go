package game

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type CommandKind string

const (
	CmdFireEmployee     CommandKind = "FireEmployee"
	CmdHireEmployee     CommandKind = "HireEmployee"
	CmdGiveRaise        CommandKind = "GiveRaise"
	CmdLaunchPRCampaign CommandKind = "LaunchPRCampaign"
	CmdPromoteToVp      CommandKind = "PromoteToVp"
	CmdUpdateBudget     CommandKind = "UpdateBudget"
	CmdDoNothing        CommandKind = "DoNothing"
)

// Command is a player action as submitted by a client.
type Command interface {
	CommandKind() CommandKind
}

type FireEmployee struct {
	EmployeeID uuid.UUID `json:"employee_id"`
}

type HireEmployee struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	EmployeeID     uuid.UUID `json:"employee_id"`
}

type GiveRaise struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Amount     int64     `json:"amount"`
}

// LaunchPRCampaign targets CompanyID, or the first player's company when unset.
type LaunchPRCampaign struct {
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
}

type PromoteToVp struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	EmployeeID     uuid.UUID `json:"employee_id"`
}

type UpdateBudget struct {
	OrganizationID     uuid.UUID `json:"organization_id"`
	OrganizationBudget Budget    `json:"organization_budget"`
}

type DoNothing struct{}

func (FireEmployee) CommandKind() CommandKind     { return CmdFireEmployee }
func (HireEmployee) CommandKind() CommandKind     { return CmdHireEmployee }
func (GiveRaise) CommandKind() CommandKind        { return CmdGiveRaise }
func (LaunchPRCampaign) CommandKind() CommandKind { return CmdLaunchPRCampaign }
func (PromoteToVp) CommandKind() CommandKind      { return CmdPromoteToVp }
func (UpdateBudget) CommandKind() CommandKind     { return CmdUpdateBudget }
func (DoNothing) CommandKind() CommandKind        { return CmdDoNothing }

// CommandJSON carries a Command through encoding/json as {"kind":..,"data":..}.
type CommandJSON struct {
	Command Command
}

func (c CommandJSON) MarshalJSON() ([]byte, error) {
	if c.Command == nil {
		return nil, fmt.Errorf("%w: nil command", ErrUnknownCommand)
	}
	data, err := json.Marshal(c.Command)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedJSON{Kind: string(c.Command.CommandKind()), Data: data})
}

func (c *CommandJSON) UnmarshalJSON(b []byte) error {
	var t taggedJSON
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	hasData := len(t.Data) > 0 && string(t.Data) != "null"
	decode := func(v any) error {
		if !hasData {
			return nil
		}
		if err := json.Unmarshal(t.Data, v); err != nil {
			return fmt.Errorf("decode %s: %w", t.Kind, err)
		}
		return nil
	}

	switch CommandKind(t.Kind) {
	case CmdFireEmployee:
		var v FireEmployee
		err := decode(&v)
		c.Command = v
		return err
	case CmdHireEmployee:
		var v HireEmployee
		err := decode(&v)
		c.Command = v
		return err
	case CmdGiveRaise:
		var v GiveRaise
		err := decode(&v)
		c.Command = v
		return err
	case CmdLaunchPRCampaign:
		var v LaunchPRCampaign
		err := decode(&v)
		c.Command = v
		return err
	case CmdPromoteToVp:
		var v PromoteToVp
		err := decode(&v)
		c.Command = v
		return err
	case CmdUpdateBudget:
		var v UpdateBudget
		err := decode(&v)
		c.Command = v
		return err
	case CmdDoNothing:
		c.Command = DoNothing{}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, t.Kind)
	}
}
