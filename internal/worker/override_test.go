package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverrideSignerRoundtrip(t *testing.T) {
	signer := NewOverrideSigner([]byte("secret"))
	token, err := signer.Sign("bob", "list-1", 3)
	require.NoError(t, err)

	by, count, err := signer.Verify(token, "list-1")
	require.NoError(t, err)
	require.Equal(t, "bob", by)
	require.Equal(t, 3, count)
}

func TestOverrideSignerRejectsMismatchedList(t *testing.T) {
	signer := NewOverrideSigner([]byte("secret"))
	token, err := signer.Sign("bob", "list-1", 3)
	require.NoError(t, err)

	_, _, err = signer.Verify(token, "list-2")
	require.Error(t, err)
}

func TestOverrideSignerRejectsTamperedSignature(t *testing.T) {
	signer := NewOverrideSigner([]byte("secret"))
	token, err := signer.Sign("bob", "list-1", 3)
	require.NoError(t, err)

	other := NewOverrideSigner([]byte("different-secret"))
	_, _, err = other.Verify(token, "list-1")
	require.Error(t, err)
}

func TestOverrideSignerFailsClosedWithoutSecret(t *testing.T) {
	signer := NewOverrideSigner(nil)
	_, err := signer.Sign("bob", "list-1", 1)
	require.Error(t, err)
}
