package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassify_ExplicitMarkers(t *testing.T) {
	transient := Classify(Transient(errors.New("backend timed out")))
	assert.Equal(t, ClassTransient, transient.Class)
	assert.Equal(t, "explicit_transient", transient.Reason)

	terminal := Classify(Terminal(errors.New("invalid params")))
	assert.Equal(t, ClassTerminal, terminal.Class)
	assert.Equal(t, "explicit_terminal", terminal.Reason)
}

func TestClassify_RepresentativeRuntimeErrors(t *testing.T) {
	testCases := []struct {
		name          string
		err           error
		expectedClass Class
	}{
		{
			name:          "context deadline transient",
			err:           context.DeadlineExceeded,
			expectedClass: ClassTransient,
		},
		{
			name:          "context canceled terminal",
			err:           context.Canceled,
			expectedClass: ClassTerminal,
		},
		{
			name:          "pg serialization failure transient",
			err:           fmt.Errorf("apply event: %w", &pq.Error{Code: "40001"}),
			expectedClass: ClassTransient,
		},
		{
			name:          "pg statement timeout transient",
			err:           fmt.Errorf("upsert loan: %w", &pq.Error{Code: "57014"}),
			expectedClass: ClassTransient,
		},
		{
			name:          "pg unique violation terminal",
			err:           fmt.Errorf("insert row: %w", &pq.Error{Code: "23505"}),
			expectedClass: ClassTerminal,
		},
		{
			name:          "connection refused transient",
			err:           errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			expectedClass: ClassTransient,
		},
		{
			name:          "bad amount terminal",
			err:           errors.New(`invalid amount value: "abc"`),
			expectedClass: ClassTerminal,
		},
		{
			name:          "unknown defaults terminal",
			err:           errors.New("unexpected failure"),
			expectedClass: ClassTerminal,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			decision := Classify(tc.err)
			assert.Equal(t, tc.expectedClass, decision.Class)
		})
	}
}
