package internal

import (
	"strconv"
	"strings"
)

const resetTokenSeparator = "_"

// FormatResetToken appends the issuance time to a random prefix:
// "<random>_<epochSeconds>".
func FormatResetToken(random string, issuedAt int64) string {
	return random + resetTokenSeparator + strconv.FormatInt(issuedAt, 10)
}

// ResetTokenIssuedAt extracts the issuance timestamp that follows the last
// separator. It reports false for an empty token, a missing separator, an
// empty random prefix, or a suffix that is not a plain decimal number.
func ResetTokenIssuedAt(token string) (int64, bool) {
	i := strings.LastIndex(token, resetTokenSeparator)
	if i <= 0 || i == len(token)-1 {
		return 0, false
	}

	suffix := token[i+1:]
	for j := 0; j < len(suffix); j++ {
		if suffix[j] < '0' || suffix[j] > '9' {
			return 0, false
		}
	}

	issuedAt, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return issuedAt, true
}

// ResetTokenValid reports whether token was issued no more than expiry
// seconds before now. The boundary is inclusive.
func ResetTokenValid(token string, now, expiry int64) bool {
	if expiry < 0 {
		return false
	}
	issuedAt, ok := ResetTokenIssuedAt(token)
	if !ok {
		return false
	}
	// issuedAt + expiry >= now, rearranged so large timestamps cannot overflow.
	return issuedAt >= now-expiry
}
