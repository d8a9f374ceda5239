package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateThenDerive(t *testing.T) {
	var wg WireGuard
	priv, pub, err := wg.GenerateKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, priv, pub)

	derived, err := wg.PublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, derived)
}

func TestGenerateIsRandom(t *testing.T) {
	var wg WireGuard
	a, _, err := wg.GenerateKeyPair()
	require.NoError(t, err)
	b, _, err := wg.GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveKnownVector(t *testing.T) {
	// RFC 7748 section 6.1, Alice's key pair.
	priv := "dwdtCnMYpX08FsFyUbJmRd9ML4frwJkqsXf7pR25LCo="
	want := "hSDwCYkwp1R0i33ctD73Wg2/Og0mOBr066SpjqqbTmo="

	got, err := WireGuard{}.PublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDeriveRejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "not base64", key: "not a key!"},
		{name: "short", key: "AAAA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WireGuard{}.PublicKey(tt.key)
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.ErrorIs(t, Validate(tt.key), ErrInvalidKey)
		})
	}
}

func TestStatic(t *testing.T) {
	s := &Static{Pairs: [][2]string{{"p1", "P1"}, {"p2", "P2"}}}

	priv, pub, err := s.GenerateKeyPair()
	require.NoError(t, err)
	assert.Equal(t, "p1", priv)
	assert.Equal(t, "P1", pub)

	got, err := s.PublicKey("p2")
	require.NoError(t, err)
	assert.Equal(t, "P2", got)

	_, err = s.PublicKey("nope")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, _, err = s.GenerateKeyPair()
	require.NoError(t, err)
	_, _, err = s.GenerateKeyPair()
	assert.Error(t, err)
}
