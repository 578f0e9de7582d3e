package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDebugValue(t *testing.T) {
	debug, err := ParseDebugValue("true")
	require.NoError(t, err)
	assert.True(t, debug)

	debug, err = ParseDebugValue("false")
	require.NoError(t, err)
	assert.False(t, debug)
}

func TestParseDebugValueRejectsAnythingElse(t *testing.T) {
	for _, value := range []string{"maybe", "", "TRUE", "1", "yes"} {
		_, err := ParseDebugValue(value)
		assert.Error(t, err, value)
	}
}
