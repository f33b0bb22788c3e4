package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrParentNotFound,
		ErrCycle,
		ErrInvalidName,
		ErrDuplicateName,
		ErrRecordNotFound,
		ErrAmbiguousRecord,
		ErrFormatConversion,
		ErrAuthentication,
		ErrNetworkTimeout,
		ErrRemoteNotFound,
		ErrRemoteUnavailable,
	}
}

func TestSentinelErrors_ImplementErrorInterface(t *testing.T) {
	for _, err := range allSentinels() {
		assert.NotEmpty(t, err.Error(), "sentinel error should have non-empty message")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
			assert.False(t, errors.Is(sentinels[i], sentinels[j]))
		}
	}
}

func TestSentinelErrors_ExpectedMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrParentNotFound, "parent folder not found"},
		{ErrCycle, "folder parent cycle detected"},
		{ErrRecordNotFound, "metadata record not found"},
		{ErrAmbiguousRecord, "ambiguous metadata record"},
		{ErrFormatConversion, "format conversion failed"},
		{ErrRemoteUnavailable, "remote service unavailable"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestSentinelErrors_SurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("resolving %q: %w", "Grondir", ErrCycle)
	assert.ErrorIs(t, wrapped, ErrCycle)
	assert.Contains(t, wrapped.Error(), "Grondir")
}
