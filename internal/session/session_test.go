package session

import (
	"testing"

	"github.com/d4ckard/spray/internal/addr"
	"github.com/stretchr/testify/require"
)

func TestResolveLocationParsesHexAddress(t *testing.T) {
	s := &Session{}
	d, err := s.ResolveLocation("0x401040")
	require.NoError(t, err)
	require.Equal(t, addr.Dbg(0x401040), d)
}

func TestResolveLocationRejectsMalformedSpec(t *testing.T) {
	s := &Session{}
	_, err := s.ResolveLocation("not a valid spec!!")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestResolveLocationRejectsBadHex(t *testing.T) {
	s := &Session{}
	_, err := s.ResolveLocation("0xZZZZ")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestHistoryRecordsInOrder(t *testing.T) {
	var h History
	h.Record("break main")
	h.Record("continue")

	require.Equal(t, []string{"break main", "continue"}, h.All())
	last, ok := h.Last()
	require.True(t, ok)
	require.Equal(t, "continue", last)
}

func TestHistoryLastOnEmpty(t *testing.T) {
	var h History
	_, ok := h.Last()
	require.False(t, ok)
}
