package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// ShareTokenBytes is the entropy of a share token; the hex form is twice as long.
const ShareTokenBytes = 24

// GenShareToken returns 24 random bytes as 48 lowercase hex characters.
func GenShareToken() (string, error) {
	return genShareToken(rand.Reader)
}

func genShareToken(r io.Reader) (string, error) {
	buf := make([]byte, ShareTokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ShareURL formats the public link for a token.
func ShareURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/api/share/" + token
}
