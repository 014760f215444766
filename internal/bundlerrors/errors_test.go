package bundlerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(KindChainRPCUnavailable, "dial RPC endpoint", cause)

	require.ErrorIs(t, wrapped, cause)
	require.Contains(t, wrapped.Error(), "dial RPC endpoint")
	require.Contains(t, wrapped.Error(), "connection refused")
}

func TestAsExtractsTypedError(t *testing.T) {
	var err error = New(KindPolicyDenied, "payment denied by policy").WithField("reason", "daily")

	be, ok := As(err)
	require.True(t, ok)
	require.Equal(t, KindPolicyDenied, be.Kind)
	require.Equal(t, "daily", be.Fields["reason"])
}

func TestAsFailsForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	require.False(t, ok)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindKillswitchActive:          503,
		KindNoEnabledBuilders:         400,
		KindInvalidTx1Hex:             400,
		KindPolicyDenied:              400,
		KindChainRPCUnavailable:       500,
		KindPaymentCalculationOverflow: 500,
		KindInternal:                  500,
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.HTTPStatus())
	}
}
