package participants

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/placepass/backend/internal/apperr"
	"github.com/placepass/backend/internal/models"
)

// Source tells where a registry entry came from.
type Source int

const (
	// SourceStored entries were loaded from the participant store.
	SourceStored Source = iota
	// SourceManual entries were typed in during the session and are not persisted yet.
	SourceManual
)

type entry struct {
	p        models.Participant
	source   Source
	selected bool
}

// Registry holds the participants of one admission session keyed by normalised email.
// Stored and manually added participants share the same key space, so an email can appear once.
// Registry is not safe for concurrent use; the owning workflow serialises access.
type Registry struct {
	entries map[string]*entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// NormalizeEmail is the registry key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Load replaces stored entries with the unapproved participants in list.
// Manual entries are kept; a manual entry with the same email absorbs the stored id.
func (r *Registry) Load(list []models.Participant) {
	for key, e := range r.entries {
		if e.source == SourceStored {
			delete(r.entries, key)
		}
	}
	r.compact()
	for _, p := range list {
		if p.IsApproved {
			continue
		}
		key := NormalizeEmail(p.Email)
		if key == "" {
			continue
		}
		p.Email = key
		if e, ok := r.entries[key]; ok {
			e.p.ID = p.ID
			continue
		}
		r.entries[key] = &entry{p: p, source: SourceStored}
		r.order = append(r.order, key)
	}
}

// Add inserts a manually entered participant. An entry with the same email is edited in place:
// its fields are replaced, and its id and selection are kept.
func (r *Registry) Add(p models.Participant) error {
	key := NormalizeEmail(p.Email)
	if key == "" {
		return apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(key); err != nil {
		return apperr.Validation("invalid email %q", p.Email)
	}
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return apperr.Validation("full name is required for %s", key)
	}
	p.Email = key
	p.IsApproved = false
	p.PassID = nil
	if p.Status == "" {
		p.Status = models.VisitorPending
	}

	if e, ok := r.entries[key]; ok {
		if p.ID == nil {
			p.ID = e.p.ID
		}
		if p.InvitationID == uuid.Nil {
			p.InvitationID = e.p.InvitationID
		}
		e.p = p
		return nil
	}
	r.entries[key] = &entry{p: p, source: SourceManual}
	r.order = append(r.order, key)
	return nil
}

// Toggle flips the selection of the participant with email and reports the new state.
func (r *Registry) Toggle(email string) (bool, error) {
	e, ok := r.entries[NormalizeEmail(email)]
	if !ok {
		return false, apperr.Validation("unknown participant %q", email)
	}
	e.selected = !e.selected
	return e.selected, nil
}

// Selection returns the selected participants in insertion order. Emails are unique.
func (r *Registry) Selection() []models.Participant {
	var out []models.Participant
	for _, key := range r.order {
		if e := r.entries[key]; e.selected {
			out = append(out, e.p)
		}
	}
	return out
}

// Stored returns participants loaded from the store.
func (r *Registry) Stored() []models.Participant { return r.bySource(SourceStored) }

// Manual returns participants added during the session.
func (r *Registry) Manual() []models.Participant { return r.bySource(SourceManual) }

func (r *Registry) bySource(s Source) []models.Participant {
	var out []models.Participant
	for _, key := range r.order {
		if e := r.entries[key]; e.source == s {
			out = append(out, e.p)
		}
	}
	return out
}

// SetID records the persisted id of the participant with email.
func (r *Registry) SetID(email string, id uuid.UUID) {
	if e, ok := r.entries[NormalizeEmail(email)]; ok {
		e.p.ID = &id
	}
}

// Len is the number of distinct participants.
func (r *Registry) Len() int { return len(r.entries) }

// Reset drops every entry and the selection.
func (r *Registry) Reset() {
	r.entries = make(map[string]*entry)
	r.order = nil
}

func (r *Registry) compact() {
	kept := r.order[:0]
	for _, key := range r.order {
		if _, ok := r.entries[key]; ok {
			kept = append(kept, key)
		}
	}
	r.order = kept
}
