package audit

import (
	"time"

	"github.com/google/uuid"

	"flowledger/pkg/domain"
)

// Action names an emitted notification.
type Action string

const (
	ActionReporterUpdated         Action = "reporter.updated"
	ActionFeeUpdated              Action = "fee.updated"
	ActionHaltToggled             Action = "halt.toggled"
	ActionInstitutionOnboarded    Action = "institution.onboarded"
	ActionInstitutionTagsUpdated  Action = "institution.tags_updated"
	ActionInstitutionDeactivated  Action = "institution.deactivated"
	ActionSnapshotRecorded        Action = "snapshot.recorded"
	ActionWindowRebased           Action = "window.rebased"
	ActionFeeForwarded            Action = "fee.forwarded"

	// ActionGovernanceTransferred is declared for wire compatibility but is
	// never emitted: no operation transfers the governance role.
	ActionGovernanceTransferred Action = "governance.transferred"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          uuid.UUID            `json:"id"`
	Timestamp   time.Time            `json:"timestamp"`
	Action      Action               `json:"action"`
	Caller      string               `json:"caller,omitempty"`
	Subject     string               `json:"subject,omitempty"`
	Institution domain.InstitutionID `json:"institution,omitempty"`
	Attrs       map[string]string    `json:"attrs,omitempty"`
}
