package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"validation", Validation("selection is empty"), CodeValidation},
		{"collaborator", Collaborator("list participants", errors.New("dial tcp")), CodeCollaborator},
		{"timeout", fmt.Errorf("poll: %w", ErrTimeout), CodeTimeout},
		{"guarded", ErrGuardedState, CodeGuardedState},
		{"transition", ErrInvalidTransition, CodeInvalidTransition},
		{"not found", fmt.Errorf("place: %w", ErrNotFound), CodeNotFound},
		{"conflict", ErrConflict, CodeConflict},
		{"unknown", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestCollaboratorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Collaborator("query status", cause)

	assert.ErrorIs(t, err, ErrCollaborator)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "query status")
}
