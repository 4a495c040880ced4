// Package core_test tests the error taxonomy.
package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/book-expert/tts-publisher/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEngine = errors.New("engine exploded")

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want core.Kind
	}{
		{name: "plain error", err: errEngine, want: core.KindUnhandled},
		{name: "synthesis", err: core.NewError(core.KindSynthesis, "synthesize", errEngine), want: core.KindSynthesis},
		{
			name: "wrapped publish",
			err:  fmt.Errorf("item 3: %w", core.NewError(core.KindPublish, "upload", errEngine)),
			want: core.KindPublish,
		},
		{name: "validation", err: core.Validationf("text cannot be empty"), want: core.KindValidation},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, core.KindOf(testCase.err))
		})
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	t.Parallel()

	err := core.NewError(core.KindSynthesis, "synthesize", errEngine)
	require.Error(t, err)

	assert.Equal(t, "engine exploded", err.Error())
	assert.ErrorIs(t, err, errEngine)
	assert.NoError(t, core.NewError(core.KindPublish, "upload", nil))
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "configuration", core.KindConfiguration.String())
	assert.Equal(t, "kind(42)", core.Kind(42).String())
}
