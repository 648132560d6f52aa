package symbols

import (
	"context"
	"regexp"
	"strings"
)

// Source produces the deduplicated, deterministically ordered list of work
// items (provider stock codes) for one batch.
type Source interface {
	List(ctx context.Context) ([]string, error)
}

var parenCode = regexp.MustCompile(`\((\d{1,6})\)`)

// Normalize converts a raw symbol in any of the supported spellings —
// "005930.KS", "005930.KQ", "Samsung (005930)", bare digits — into the
// provider code form "A" + six digits. Returns "" when no code can be
// extracted.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	var digits string
	if m := parenCode.FindStringSubmatch(s); m != nil {
		digits = m[1]
	} else {
		if strings.HasSuffix(s, ".KS") || strings.HasSuffix(s, ".KQ") {
			s = s[:strings.Index(s, ".")]
		}
		var b strings.Builder
		for _, ch := range s {
			if ch >= '0' && ch <= '9' {
				b.WriteRune(ch)
			}
		}
		digits = b.String()
	}

	if digits == "" || len(digits) > 6 {
		return ""
	}
	return "A" + strings.Repeat("0", 6-len(digits)) + digits
}
