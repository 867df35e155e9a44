// ABOUTME: Tests for the FDC3 error taxonomy and its wire round trip.
// ABOUTME: Covers Kind extraction through wrapping and ParseError family selection.

package fdc3

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   string
		wantOK bool
	}{
		{"channel error", NoChannelFound, "NoChannelFound", true},
		{"wrapped resolve error", fmt.Errorf("raising ViewChart: %w", NoAppsFound), "NoAppsFound", true},
		{"open error", AppTimeout, "AppTimeout", true},
		{"plain error", errors.New("boom"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Kind(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseError(t *testing.T) {
	t.Run("resolver unavailable maps by method", func(t *testing.T) {
		assert.Equal(t, OpenResolverUnavailable, ParseError("open", "ResolverUnavailable"))
		assert.Equal(t, ResolverUnavailable, ParseError("raiseIntent", "ResolverUnavailable"))
	})

	t.Run("known kinds match with errors.Is", func(t *testing.T) {
		assert.ErrorIs(t, ParseError("joinChannel", "NoChannelFound"), NoChannelFound)
		assert.ErrorIs(t, ParseError("raiseIntent", "NoAppsFound"), NoAppsFound)
		assert.ErrorIs(t, ParseError("raiseIntent", "AppNotFound"), AppNotFound)
	})

	t.Run("unknown strings stay plain", func(t *testing.T) {
		err := ParseError("broadcast", "context is required")
		assert.EqualError(t, err, "context is required")
		_, ok := Kind(err)
		assert.False(t, ok)
	})

	t.Run("empty string is still a rejection", func(t *testing.T) {
		assert.Error(t, ParseError("findIntent", ""))
	})
}
