// Package codes generates and validates the booking check-in identifiers:
// the QR code payload scanned by drivers and the short PNR code passengers
// can read out or type instead.
package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	// QRPrefix prefixes every QR code payload.
	QRPrefix = "BK-"

	// QRRandomLength is the number of random characters after the prefix.
	QRRandomLength = 12

	// PNRLength is the length of a passenger name record code.
	PNRLength = 6

	base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var pnrPattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NewQRCode generates a QR code payload: "BK-" followed by 12 random
// base36 characters.
func NewQRCode() (string, error) {
	suffix, err := randomBase36(QRRandomLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return QRPrefix + suffix, nil
}

// NewPNR generates a 6-character base36 passenger name record code.
func NewPNR() (string, error) {
	code, err := randomBase36(PNRLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNR: %w", err)
	}
	return code, nil
}

// NormalizePNR uppercases and trims a user-typed PNR.
func NormalizePNR(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidPNR reports whether a normalized code matches the PNR shape.
func ValidPNR(code string) bool {
	return pnrPattern.MatchString(code)
}

func randomBase36(length int) (string, error) {
	max := big.NewInt(int64(len(base36)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = base36[n.Int64()]
	}
	return string(b), nil
}
