// Package admission drives the in-person visitor admission procedure for one reception session.
package admission

// Step is the position of a session in the admission procedure.
type Step int

const (
	StepWelcome Step = iota
	StepSelectMeetingType
	StepSelectInvitation
	StepSelectParticipants
	StepAwaitingApproval
	StepApproved
	StepDone
)

var stepNames = [...]string{
	StepWelcome:            "welcome",
	StepSelectMeetingType:  "select_meeting_type",
	StepSelectInvitation:   "select_invitation",
	StepSelectParticipants: "select_participants",
	StepAwaitingApproval:   "awaiting_approval",
	StepApproved:           "approved",
	StepDone:               "done",
}

func (s Step) String() string {
	if s < StepWelcome || s > StepDone {
		return "unknown"
	}
	return stepNames[s]
}

// guarded steps reject an ordinary cancel.
func (s Step) guarded() bool {
	return s == StepAwaitingApproval || s == StepApproved
}
