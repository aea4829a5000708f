package ask

import "strings"

// extractSQL turns a raw query completion into a single SQL statement. The
// prompt's output format makes the model follow the SQL with two trailing
// lines (the echoed SQLResult and Answer slots), so the last two lines are
// dropped, the remainder is rejoined with single spaces, and the text is
// trimmed and stripped of one layer of surrounding quotes. A completion with
// two or fewer lines extracts to the empty string.
func extractSQL(completion string) string {
	lines := strings.Split(completion, "\n")
	if len(lines) <= 2 {
		lines = nil
	} else {
		lines = lines[:len(lines)-2]
	}
	return trimQuotes(strings.TrimSpace(strings.Join(lines, " ")))
}

// trimQuotes removes a single layer of matching surrounding quote
// characters.
func trimQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	first := value[0]
	last := value[len(value)-1]
	if first != last {
		return value
	}
	switch first {
	case '"', '\'', '`':
		return value[1 : len(value)-1]
	}
	return value
}

// parseTableNames splits a table-filter completion on commas, trims each
// entry, and discards blanks. Matching against real table names is the
// caller's concern.
func parseTableNames(completion string) []string {
	parts := strings.Split(completion, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
