package utils

/*
TruncateRunes shortens a string to at most n runes, appending an ellipsis
when anything was cut. It never splits a multi-byte character.
*/
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n]) + "…"
}
