package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/placepass/backend/internal/approval"
	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
	"github.com/placepass/backend/internal/participants"
)

// Session events published to the EventSink.
const (
	EventStateChanged = "state_changed"
	EventPollFailed   = "poll_failed"
	EventApproved     = "approved"
)

const passIssueTimeout = 10 * time.Second

// InvitationStore lists the invitations a reception session can admit visitors for.
type InvitationStore interface {
	ListByPlaceAndDate(ctx context.Context, placeID uuid.UUID, date time.Time) ([]models.Invitation, error)
}

// ParticipantStore persists participants.
type ParticipantStore interface {
	ListUnapproved(ctx context.Context, invitationID uuid.UUID) ([]models.Participant, error)
	Upsert(ctx context.Context, p *models.Participant) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, f models.ParticipantFields) error
}

// Poller starts background approval polling. *approval.Poller implements it.
type Poller interface {
	Start(ids []uuid.UUID, onResult func(*approval.Run, approval.Result)) (*approval.Run, error)
}

// EventSink receives session events, e.g. to push them to reception screens.
type EventSink interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload any)
}

// PassIssuer hands approved participants over for pass issuance.
type PassIssuer interface {
	IssuePasses(ctx context.Context, sessionID uuid.UUID, invitation models.Invitation, approved []ApprovedParticipant) error
}

// ApprovedParticipant is a participant confirmed by the authority, with its pass id.
type ApprovedParticipant struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	PassID   string    `json:"pass_id"`
}

// Deps are the collaborators of a Workflow. Events and Passes may be nil.
type Deps struct {
	Invitations  InvitationStore
	Participants ParticipantStore
	Poller       Poller
	Events       EventSink
	Passes       PassIssuer
	Logger       *zap.Logger
}

// state is the single source of truth for a session. Fields other than step are only
// meaningful for the steps noted next to them.
type state struct {
	step          Step
	invitations   []models.Invitation  // >= StepSelectMeetingType
	meetingType   string               // >= StepSelectInvitation
	filtered      []models.Invitation  // >= StepSelectInvitation
	invitation    *models.Invitation   // >= StepSelectParticipants
	run           *approval.Run        // StepAwaitingApproval while a poll is live
	submitted     []uuid.UUID          // >= StepAwaitingApproval
	pollErr       error                // StepAwaitingApproval after a failed poll
	approved      []ApprovedParticipant // >= StepApproved
	cancelPending bool
	cancelForced  bool
}

type sessionEvent struct {
	name    string
	payload any
}

// Workflow is the admission state machine of one reception session. It is safe for concurrent use.
type Workflow struct {
	id      uuid.UUID
	placeID uuid.UUID
	date    time.Time
	deps    Deps
	logger  *zap.Logger

	mu       sync.Mutex
	st       state
	registry *participants.Registry
	outbox   []sessionEvent // published by unlock after mu is released

	pubMu sync.Mutex // keeps outbox batches in order across operations
}

// NewWorkflow creates a session workflow at StepWelcome for a place and date.
func NewWorkflow(id, placeID uuid.UUID, date time.Time, deps Deps) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		id:       id,
		placeID:  placeID,
		date:     date,
		deps:     deps,
		logger:   logger.With(zap.String("session_id", id.String())),
		registry: participants.NewRegistry(),
	}
}

// ID returns the session id.
func (w *Workflow) ID() uuid.UUID { return w.id }

// Step returns the current step.
func (w *Workflow) Step() Step {
	w.mu.Lock()
	defer w.unlock()
	return w.st.step
}

func (w *Workflow) expect(steps ...Step) error {
	for _, s := range steps {
		if w.st.step == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", apperr.ErrInvalidTransition, w.st.step)
}

// Start loads the day's invitations and moves to meeting type selection.
func (w *Workflow) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.expect(StepWelcome); err != nil {
		return err
	}
	list, err := w.deps.Invitations.ListByPlaceAndDate(ctx, w.placeID, w.date)
	if err != nil {
		w.logger.Warn("load invitations failed", zap.Error(err))
		return apperr.Collaborator("list invitations", err)
	}
	var open []models.Invitation
	for _, inv := range list {
		if inv.Status != models.InvitationCancelled {
			open = append(open, inv)
		}
	}
	w.st.invitations = open
	w.moveLocked(StepSelectMeetingType)
	return nil
}

// ChooseMeetingType keeps only invitations of meetingType and moves to invitation selection.
func (w *Workflow) ChooseMeetingType(meetingType string) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.expect(StepSelectMeetingType); err != nil {
		return err
	}
	meetingType = strings.TrimSpace(meetingType)
	if meetingType == "" {
		return apperr.Validation("meeting type is required")
	}
	var filtered []models.Invitation
	for _, inv := range w.st.invitations {
		if strings.EqualFold(inv.Type, meetingType) {
			filtered = append(filtered, inv)
		}
	}
	w.st.meetingType = meetingType
	w.st.filtered = filtered
	w.moveLocked(StepSelectInvitation)
	return nil
}

// ChooseInvitation selects one of the filtered invitations and loads its unapproved participants.
func (w *Workflow) ChooseInvitation(ctx context.Context, invitationID uuid.UUID) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.expect(StepSelectInvitation); err != nil {
		return err
	}
	if invitationID == uuid.Nil {
		return apperr.Validation("no invitation selected")
	}
	var chosen *models.Invitation
	for i := range w.st.filtered {
		if w.st.filtered[i].ID == invitationID {
			inv := w.st.filtered[i]
			chosen = &inv
			break
		}
	}
	if chosen == nil {
		return apperr.Validation("invitation %s is not available for meeting type %q", invitationID, w.st.meetingType)
	}
	list, err := w.deps.Participants.ListUnapproved(ctx, chosen.ID)
	if err != nil {
		w.logger.Warn("load participants failed", zap.Error(err), zap.String("invitation_id", chosen.ID.String()))
		return apperr.Collaborator("list unapproved participants", err)
	}
	w.registry.Reset()
	w.registry.Load(list)
	w.st.invitation = chosen
	w.moveLocked(StepSelectParticipants)
	return nil
}

// AddParticipant adds or edits a manually entered participant.
func (w *Workflow) AddParticipant(p models.Participant) error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.expect(StepSelectParticipants); err != nil {
		return err
	}
	p.InvitationID = w.st.invitation.ID
	if err := w.registry.Add(p); err != nil {
		return err
	}
	w.publishStateLocked()
	return nil
}

// ToggleParticipant flips the selection of the participant with email.
func (w *Workflow) ToggleParticipant(email string) (bool, error) {
	w.mu.Lock()
	defer w.unlock()
	if err := w.expect(StepSelectParticipants); err != nil {
		return false, err
	}
	on, err := w.registry.Toggle(email)
	if err != nil {
		return false, err
	}
	w.publishStateLocked()
	return on, nil
}

// Submit persists the selection with status admit and starts approval polling.
// It is also the way to resume after a poll timed out or failed.
func (w *Workflow) Submit(ctx context.Context) error {
	w.mu.Lock()
	defer w.unlock()
	switch {
	case w.st.step == StepSelectParticipants:
	case w.st.step == StepAwaitingApproval && w.st.run == nil:
	case w.st.step == StepAwaitingApproval:
		return fmt.Errorf("%w: approval already in progress", apperr.ErrInvalidTransition)
	default:
		return w.expect(StepSelectParticipants)
	}

	selection := w.registry.Selection()
	if len(selection) == 0 {
		return apperr.Validation("select at least one participant")
	}

	ids := make([]uuid.UUID, 0, len(selection))
	for _, p := range selection {
		id, err := w.persistLocked(ctx, p)
		if err != nil {
			w.logger.Warn("persist participant failed", zap.Error(err), zap.String("email", p.Email))
			return apperr.Collaborator("save participant "+p.Email, err)
		}
		w.registry.SetID(p.Email, id)
		ids = append(ids, id)
	}

	run, err := w.deps.Poller.Start(ids, w.applyResult)
	if err != nil {
		return err
	}
	w.st.run = run
	w.st.submitted = ids
	w.st.pollErr = nil
	w.moveLocked(StepAwaitingApproval)
	w.logger.Info("participants submitted for approval", zap.Int("count", len(ids)))
	return nil
}

func (w *Workflow) persistLocked(ctx context.Context, p models.Participant) (uuid.UUID, error) {
	if p.ID != nil {
		err := w.deps.Participants.Update(ctx, *p.ID, models.ParticipantFields{
			FullName: p.FullName,
			Phone:    p.Phone,
			Company:  p.Company,
			Status:   models.VisitorAdmit,
		})
		return *p.ID, err
	}
	p.InvitationID = w.st.invitation.ID
	p.Status = models.VisitorAdmit
	return w.deps.Participants.Upsert(ctx, &p)
}

// applyResult is the poller callback. Results of runs that are no longer current are dropped.
func (w *Workflow) applyResult(run *approval.Run, res approval.Result) {
	w.mu.Lock()
	if w.st.run != run || w.st.step != StepAwaitingApproval {
		w.unlock()
		w.logger.Debug("dropping stale approval result")
		return
	}
	w.st.run = nil

	if res.Err != nil {
		w.st.pollErr = res.Err
		w.logger.Warn("approval polling ended without approval", zap.Error(res.Err), zap.Int("ticks", res.Ticks))
		w.publishLocked(EventPollFailed, map[string]any{
			"code":  apperr.CodeOf(res.Err),
			"error": res.Err.Error(),
			"ticks": res.Ticks,
		})
		w.publishStateLocked()
		w.unlock()
		return
	}

	approved := w.approvedLocked(res.Approved)
	invitation := *w.st.invitation
	w.st.approved = approved
	w.moveLocked(StepApproved)
	w.publishLocked(EventApproved, approved)
	w.unlock()

	w.logger.Info("participants approved", zap.Int("count", len(approved)), zap.Int("ticks", res.Ticks))
	if w.deps.Passes != nil {
		ctx, cancel := context.WithTimeout(context.Background(), passIssueTimeout)
		defer cancel()
		if err := w.deps.Passes.IssuePasses(ctx, w.id, invitation, approved); err != nil {
			w.logger.Error("issue passes failed", zap.Error(err))
		}
	}
}

func (w *Workflow) approvedLocked(statuses []models.ApprovalStatus) []ApprovedParticipant {
	byID := make(map[uuid.UUID]models.Participant)
	for _, p := range w.registry.Selection() {
		if p.ID != nil {
			byID[*p.ID] = p
		}
	}
	out := make([]ApprovedParticipant, 0, len(statuses))
	for _, s := range statuses {
		p := byID[s.ID]
		out = append(out, ApprovedParticipant{ID: s.ID, Email: p.Email, FullName: p.FullName, PassID: s.PassID})
	}
	return out
}

// Finish closes an approved session.
func (w *Workflow) Finish() error {
	w.mu.Lock()
	defer w.unlock()
	if err := w.expect(StepApproved); err != nil {
		return err
	}
	w.moveLocked(StepDone)
	return nil
}

// Previous moves one step back. Only the selection steps can go back.
func (w *Workflow) Previous() error {
	w.mu.Lock()
	defer w.unlock()
	switch w.st.step {
	case StepSelectMeetingType:
		w.st.invitations = nil
		w.moveLocked(StepWelcome)
	case StepSelectInvitation:
		w.st.meetingType = ""
		w.st.filtered = nil
		w.moveLocked(StepSelectMeetingType)
	case StepSelectParticipants:
		w.st.invitation = nil
		w.registry.Reset()
		w.moveLocked(StepSelectInvitation)
	default:
		return w.expect(StepSelectMeetingType, StepSelectInvitation, StepSelectParticipants)
	}
	return nil
}

// RequestCancel asks for confirmation before resetting the session. While approval is pending
// or granted it fails with apperr.ErrGuardedState unless force is set, which the operator must
// pass explicitly after seeing that warning.
func (w *Workflow) RequestCancel(force bool) error {
	w.mu.Lock()
	defer w.unlock()
	if w.st.step.guarded() && !force {
		return fmt.Errorf("%w: cannot cancel while %s", apperr.ErrGuardedState, w.st.step)
	}
	w.st.cancelPending = true
	w.st.cancelForced = force
	w.publishStateLocked()
	return nil
}

// DismissCancel withdraws a pending cancel request.
func (w *Workflow) DismissCancel() {
	w.mu.Lock()
	defer w.unlock()
	if w.st.cancelPending {
		w.st.cancelPending = false
		w.st.cancelForced = false
		w.publishStateLocked()
	}
}

// ConfirmCancel resets the session to StepWelcome, discarding the invitation, the participants,
// the selection and any live approval poll.
func (w *Workflow) ConfirmCancel() error {
	w.mu.Lock()
	defer w.unlock()
	if !w.st.cancelPending {
		return fmt.Errorf("%w: cancel was not requested", apperr.ErrInvalidTransition)
	}
	if w.st.step.guarded() && !w.st.cancelForced {
		return fmt.Errorf("%w: cannot cancel while %s", apperr.ErrGuardedState, w.st.step)
	}
	w.resetLocked()
	w.logger.Info("session cancelled")
	return nil
}

// Close stops any live poll. The workflow must not be used afterwards.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.unlock()
	if w.st.run != nil {
		w.st.run.Cancel()
		w.st.run = nil
	}
}

func (w *Workflow) resetLocked() {
	if w.st.run != nil {
		w.st.run.Cancel()
	}
	w.st = state{}
	w.registry.Reset()
	w.publishStateLocked()
}

func (w *Workflow) moveLocked(to Step) {
	w.logger.Debug("step", zap.Stringer("from", w.st.step), zap.Stringer("to", to))
	w.st.step = to
	// a cancel request applies only to the step it was made in
	w.st.cancelPending = false
	w.st.cancelForced = false
	w.publishStateLocked()
}

func (w *Workflow) publishStateLocked() {
	w.publishLocked(EventStateChanged, w.snapshotLocked())
}

func (w *Workflow) publishLocked(event string, payload any) {
	if w.deps.Events != nil {
		w.outbox = append(w.outbox, sessionEvent{name: event, payload: payload})
	}
}

// unlock releases mu and then hands the queued events to the sink, so a slow sink never
// holds up other operations on the session.
func (w *Workflow) unlock() {
	events := w.outbox
	w.outbox = nil
	if len(events) == 0 {
		w.mu.Unlock()
		return
	}
	w.pubMu.Lock()
	w.mu.Unlock()
	defer w.pubMu.Unlock()
	for _, e := range events {
		w.deps.Events.PublishSessionEvent(w.id, e.name, e.payload)
	}
}

// View is a read-only snapshot of a session.
type View struct {
	SessionID     uuid.UUID             `json:"session_id"`
	PlaceID       uuid.UUID             `json:"place_id"`
	Date          string                `json:"date"`
	Step          Step                  `json:"step"`
	StepName      string                `json:"step_name"`
	MeetingType   string                `json:"meeting_type,omitempty"`
	Invitations   []models.Invitation   `json:"invitations,omitempty"`
	Invitation    *models.Invitation    `json:"invitation,omitempty"`
	Stored        []models.Participant  `json:"stored_participants,omitempty"`
	Manual        []models.Participant  `json:"manual_participants,omitempty"`
	Selection     []models.Participant  `json:"selection,omitempty"`
	Polling       bool                  `json:"polling"`
	Submitted     []uuid.UUID           `json:"submitted,omitempty"`
	PollError     string                `json:"poll_error,omitempty"`
	PollErrorCode apperr.Code           `json:"poll_error_code,omitempty"`
	Approved      []ApprovedParticipant `json:"approved,omitempty"`
	CancelPending bool                  `json:"cancel_pending"`
}

// Snapshot returns the current view of the session.
func (w *Workflow) Snapshot() View {
	w.mu.Lock()
	defer w.unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() View {
	v := View{
		SessionID:     w.id,
		PlaceID:       w.placeID,
		Date:          w.date.Format("2006-01-02"),
		Step:          w.st.step,
		StepName:      w.st.step.String(),
		MeetingType:   w.st.meetingType,
		Invitations:   w.st.invitations,
		Polling:       w.st.run != nil,
		Submitted:     w.st.submitted,
		CancelPending: w.st.cancelPending,
	}
	if w.st.step >= StepSelectInvitation {
		v.Invitations = w.st.filtered
	}
	if w.st.invitation != nil {
		inv := *w.st.invitation
		v.Invitation = &inv
	}
	if w.st.step == StepSelectParticipants || w.st.step == StepAwaitingApproval {
		v.Stored = w.registry.Stored()
		v.Manual = w.registry.Manual()
		v.Selection = w.registry.Selection()
	}
	if w.st.pollErr != nil {
		v.PollError = w.st.pollErr.Error()
		v.PollErrorCode = apperr.CodeOf(w.st.pollErr)
	}
	if w.st.step >= StepApproved {
		v.Approved = w.st.approved
	}
	return v
}

// PollError returns the error of the last finished poll while awaiting approval.
func (w *Workflow) PollError() error {
	w.mu.Lock()
	defer w.unlock()
	return w.st.pollErr
}

// IsTimeout reports whether err is a polling timeout rather than a failure.
func IsTimeout(err error) bool { return errors.Is(err, apperr.ErrTimeout) }
