package codes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQRCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewQRCode()
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(code, "BK-"))
		assert.Len(t, code, len(QRPrefix)+QRRandomLength)
		assert.False(t, seen[code], "duplicate QR code in 100 draws")
		seen[code] = true
	}
}

func TestNewPNR(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := NewPNR()
		require.NoError(t, err)
		assert.Len(t, code, PNRLength)
		assert.True(t, ValidPNR(code), "generated PNR must validate: %s", code)
	}
}

func TestNormalizePNR(t *testing.T) {
	assert.Equal(t, "A1B2C3", NormalizePNR("  a1b2c3 "))
	assert.Equal(t, "XYZ123", NormalizePNR("xyz123"))
}

func TestValidPNR(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.True(t, ValidPNR("A1B2C3"))
		assert.True(t, ValidPNR("000000"))
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.False(t, ValidPNR("abc123"), "lowercase must be normalized first")
		assert.False(t, ValidPNR("A1B2C"), "too short")
		assert.False(t, ValidPNR("A1B2C34"), "too long")
		assert.False(t, ValidPNR("A1B2C!"), "punctuation")
		assert.False(t, ValidPNR(""))
	})
}
