package dto

import (
	"time"

	"github.com/tnqbao/gau-site-director/entity"
)

type ScheduleOperationRequestDTO struct {
	Type   string         `json:"type" binding:"required"`
	Params map[string]any `json:"params"`
}

type ActionResponseDTO struct {
	ID                uint       `json:"id"`
	Slug              string     `json:"slug"`
	Name              string     `json:"name"`
	StartedTime       *time.Time `json:"started_time"`
	BeforeState       string     `json:"before_state,omitempty"`
	AfterState        string     `json:"after_state,omitempty"`
	EquivalentCommand string     `json:"equivalent_command,omitempty"`
	Result            *bool      `json:"result"`
	Message           string     `json:"message,omitempty"`
	UserRecoverable   bool       `json:"user_recoverable"`
}

type OperationResponseDTO struct {
	ID           uint                 `json:"id"`
	SiteID       uint                 `json:"site_id"`
	SiteName     string               `json:"site_name,omitempty"`
	Type         entity.OperationType `json:"type"`
	Params       map[string]any       `json:"params,omitempty"`
	State        string               `json:"state"`
	CreatedTime  time.Time            `json:"created_time"`
	StartedTime  *time.Time           `json:"started_time"`
	UserCanClear bool                 `json:"user_can_clear"`
	Actions      []ActionResponseDTO  `json:"actions"`
}

// OperationState summarizes an operation for listings.
func OperationState(op *entity.Operation) string {
	switch {
	case op.HasFailed():
		return "failed"
	case op.HasStarted():
		return "running"
	default:
		return "queued"
	}
}

// NewOperationResponse renders op. Action messages can carry fleet
// internals and are only included for superusers.
func NewOperationResponse(op *entity.Operation, superuser bool) OperationResponseDTO {
	out := OperationResponseDTO{
		ID:           op.ID,
		SiteID:       op.SiteID,
		Type:         op.Type,
		Params:       op.Params,
		State:        OperationState(op),
		CreatedTime:  op.CreatedTime,
		StartedTime:  op.StartedTime,
		UserCanClear: op.UserCanClear(),
		Actions:      make([]ActionResponseDTO, 0, len(op.Actions)),
	}
	if op.Site != nil {
		out.SiteName = op.Site.Name
	}
	for _, a := range op.Actions {
		action := ActionResponseDTO{
			ID:                a.ID,
			Slug:              a.Slug,
			Name:              a.Name,
			StartedTime:       a.StartedTime,
			BeforeState:       a.BeforeState,
			AfterState:        a.AfterState,
			EquivalentCommand: a.EquivalentCommand,
			Result:            a.Result,
			UserRecoverable:   a.UserRecoverable,
		}
		if superuser {
			action.Message = a.Message
		}
		out.Actions = append(out.Actions, action)
	}
	return out
}

type FleetStatusResponseDTO struct {
	Pool      string    `json:"pool"`
	Nodes     []string  `json:"nodes"`
	Reachable []int     `json:"reachable"`
	CheckedAt time.Time `json:"checked_at"`
}
