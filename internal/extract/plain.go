package extract

import "strings"

// extractPlain returns content as text without a UTF-8 byte order mark, replacing invalid sequences.
func extractPlain(content []byte) (string, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	return strings.ToValidUTF8(text, "\ufffd"), nil
}
