package lifecycle

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// generatedPasswordLength is the length of passwords set at creation
const generatedPasswordLength = 8

// generatePassword returns a random alphanumeric password of length n
func generatePassword(n int) (string, error) {
	max := big.NewInt(int64(len(passwordAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = passwordAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// containerName derives a unique engine name from the owner's name, the
// creation time and a random suffix: "ada-lovelace-20240102150405-1f2e3d4c"
func containerName(userName string, now time.Time) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(userName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	base := strings.TrimRight(sb.String(), "-")
	if len(base) > 32 {
		base = strings.TrimRight(base[:32], "-")
	}
	if base == "" {
		base = "user"
	}
	return base + "-" + now.UTC().Format("20060102150405") + "-" + uuid.NewString()[:8]
}
