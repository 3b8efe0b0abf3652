package parsers

import "strings"

// collapseWS mimics BeautifulSoup's get_text(" ", strip=True): collapse
// runs of whitespace to single spaces and trim the ends.
func collapseWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
