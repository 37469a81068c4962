package devauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifier(t *testing.T) {
	t.Run("no pairs", func(t *testing.T) {
		_, err := NewVerifier(nil)
		require.Error(t, err)
	})

	t.Run("malformed pair", func(t *testing.T) {
		for _, pair := range []string{"tokenonly", "=account", "token=", "="} {
			_, err := NewVerifier([]string{pair})
			require.Error(t, err, "pair %q should be rejected", pair)
		}
	})

	t.Run("valid pairs", func(t *testing.T) {
		v, err := NewVerifier([]string{"tok-a=acme", " tok-b=globex "})
		require.NoError(t, err)
		assert.NotNil(t, v)
	})
}

func TestVerify(t *testing.T) {
	v, err := NewVerifier([]string{"tok-a=acme", "tok-b=globex"})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("known token", func(t *testing.T) {
		principal, err := v.Verify(ctx, "tok-a")
		require.NoError(t, err)
		assert.Equal(t, "acme", principal.Account)
		assert.Equal(t, "acme", principal.Subject)
	})

	t.Run("second token maps to its own account", func(t *testing.T) {
		principal, err := v.Verify(ctx, "tok-b")
		require.NoError(t, err)
		assert.Equal(t, "globex", principal.Account)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := v.Verify(ctx, "tok-c")
		require.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify(ctx, "")
		require.Error(t, err)
	})
}
