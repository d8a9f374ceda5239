package qr

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peerFile = "[Interface]\nAddress = 10.0.0.2/24\nPrivateKey = yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk=\n\n[Peer]\nPublicKey = HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykI=\nAllowedIPs = 10.0.0.0/24\n"

func TestPNG(t *testing.T) {
	data, err := PNG(peerFile, 256)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestDataURL(t *testing.T) {
	url, err := DataURL(peerFile, 128)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	_, err = DataURL("", 128)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice.png")
	require.NoError(t, WriteFile(peerFile, DefaultSize, path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, fi.Size())
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Terminal(&buf, peerFile, false))
	assert.Greater(t, strings.Count(buf.String(), "\n"), 10)

	assert.ErrorIs(t, Terminal(&buf, "", false), ErrEmpty)
}
