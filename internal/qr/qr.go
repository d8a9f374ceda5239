// Package qr renders configuration files as QR codes for the WireGuard mobile apps.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 512

// ErrEmpty is returned for empty content.
var ErrEmpty = errors.New("content cannot be empty")

func encode(content string) (*qrcode.QRCode, error) {
	if content == "" {
		return nil, ErrEmpty
	}
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return q, nil
}

// PNG returns content as a PNG image of size pixels.
func PNG(content string, size int) ([]byte, error) {
	q, err := encode(content)
	if err != nil {
		return nil, err
	}
	return q.PNG(size)
}

// WriteFile writes content as a PNG image to path.
func WriteFile(content string, size int, path string) error {
	q, err := encode(content)
	if err != nil {
		return err
	}
	if err := q.WriteFile(size, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DataURL returns content as a base64 PNG data URL.
func DataURL(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal writes content to w as block characters, two modules per line.
func Terminal(w io.Writer, content string, inverse bool) error {
	q, err := encode(content)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, q.ToSmallString(inverse))
	return err
}
