package adblock

import "strings"

// HardBlockList is a fixed set of substrings. Any request URL containing one
// of them is refused, whether or not the general blocker is loaded.
type HardBlockList []string

// Blocks reports whether requestURL contains any listed substring. It is
// case-sensitive.
func (l HardBlockList) Blocks(requestURL string) bool {
	for _, s := range l {
		if s != "" && strings.Contains(requestURL, s) {
			return true
		}
	}
	return false
}
