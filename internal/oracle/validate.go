package oracle

import (
	"regexp"
	"strings"
)

// ParseVerdict reads a YES/NO completion. Anything else is malformed; callers
// decide whether that counts as a negative answer.
func ParseVerdict(out string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(out)) {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	}
	return false, &MalformedOutputError{Output: out, Reason: "expected YES or NO"}
}

var fence = regexp.MustCompile("(?i)```(?:sqlite|sql)?")

// ExtractSQL strips markdown code-fence markers and surrounding whitespace
// from a completion. The statement itself is returned untouched.
func ExtractSQL(out string) (string, error) {
	sql := strings.TrimSpace(fence.ReplaceAllString(strings.TrimSpace(out), ""))
	if sql == "" {
		return "", &MalformedOutputError{Output: out, Reason: "empty query"}
	}
	return sql, nil
}
