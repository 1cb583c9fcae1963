package sigdispatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnitString(t *testing.T) {
	require.Equal(t, "PLAYER", UnitPlayer.String())
	require.Equal(t, "META", UnitMeta.String())
	require.Equal(t, "UNKNOWN", Unit(99).String())
}

func TestRegisterAndDispatchCallsAllUnits(t *testing.T) {
	var gotPlayer, gotMeta int
	d := New(nil)
	d.Register(UnitPlayer, func(sig int) { gotPlayer = sig })
	d.Register(UnitMeta, func(sig int) { gotMeta = sig })

	d.dispatch(42, "SIGTEST")

	require.Equal(t, 42, gotPlayer)
	require.Equal(t, 42, gotMeta)
}

func TestRegisterIgnoresInvalidUnitOrNilCallback(t *testing.T) {
	d := New(nil)
	d.Register(Unit(99), func(int) {})
	d.Register(UnitPlayer, nil)

	called := false
	d.Register(UnitMeta, func(int) { called = true })
	d.dispatch(1, "SIGTEST")
	require.True(t, called)
}
