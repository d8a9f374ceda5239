package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		section Section
		minimal bool
	}{
		{key: "Address", want: "Address", section: SectionInterface, minimal: true},
		{key: "privatekey", want: "PrivateKey", section: SectionInterface, minimal: true},
		{key: "  LISTENPORT ", want: "ListenPort", section: SectionInterface},
		{key: "dns", want: "DNS", section: SectionInterface},
		{key: "allowedips", want: "AllowedIPs", section: SectionPeer},
		{key: "PersistentKeepAlive", want: "PersistentKeepalive", section: SectionPeer},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, ok := Lookup(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Name)
			assert.Equal(t, tt.section, p.Section)
			assert.Equal(t, tt.minimal, p.Minimal)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, ok := Lookup("PresharedKey")
	assert.False(t, ok)
	_, ok = Lookup("")
	assert.False(t, ok)
}

func TestSectionsAreDisjoint(t *testing.T) {
	for _, k := range InterfaceKeys {
		assert.True(t, IsInterfaceKey(k), k)
		assert.False(t, IsPeerKey(k), k)
	}
	for _, k := range PeerKeys {
		assert.True(t, IsPeerKey(k), k)
		assert.False(t, IsInterfaceKey(k), k)
	}
}

func TestAll_Order(t *testing.T) {
	all := All()
	require.Len(t, all, len(InterfaceKeys)+len(PeerKeys))
	assert.Equal(t, "Address", all[0].Name)
	assert.Equal(t, "PostDown", all[len(InterfaceKeys)-1].Name)
	assert.Equal(t, "AllowedIPs", all[len(InterfaceKeys)].Name)
	assert.Equal(t, "PersistentKeepalive", all[len(all)-1].Name)
}
