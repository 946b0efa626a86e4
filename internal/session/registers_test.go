package session

import (
	"testing"

	"github.com/d4ckard/spray/internal/tracee"
	"github.com/stretchr/testify/require"
)

func TestRegisterFieldRoundTrip(t *testing.T) {
	var r tracee.Regs
	require.NoError(t, setRegisterField(&r, "rax", 0x42))
	v, err := registerField(&r, "rax")
	require.NoError(t, err)
	require.Equal(t, uint64(0x42), v)
}

func TestRegisterFieldUnknownName(t *testing.T) {
	var r tracee.Regs
	_, err := registerField(&r, "nope")
	require.Error(t, err)
	require.Error(t, setRegisterField(&r, "nope", 1))
}
