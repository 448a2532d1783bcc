package utils_test

import (
	"testing"

	"github.com/jrsteele09/go-session-gateway/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestPointerHelpers(t *testing.T) {
	require.Equal(t, "", utils.Value[string](nil))
	require.Equal(t, 3, utils.Value(utils.Ptr(3)))
	require.True(t, utils.ValueOr(nil, true))
	require.False(t, utils.ValueOr(utils.Ptr(false), true))
}
