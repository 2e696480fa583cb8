package adblock

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"os"
	"strings"
)

// maxListSize caps how much of a single list is read.
const maxListSize = 32 << 20

// hostsIgnored are names that appear in hosts files but are not ad domains.
var hostsIgnored = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"0.0.0.0":               {},
}

// ParseList extracts blockable domains from a list in any of three formats:
// hosts files ("0.0.0.0 ads.example.com"), plain one-domain-per-line lists,
// and domain-anchored filter rules ("||ads.example.com^"). Comments,
// exception rules, cosmetic rules and path-specific rules are skipped.
func ParseList(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch line[0] {
		case '!', '#', '[':
			continue
		}
		if strings.HasPrefix(line, "@@") || strings.Contains(line, "##") || strings.Contains(line, "#@#") {
			continue
		}
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		if strings.HasPrefix(line, "||") {
			if d, ok := parseAnchoredRule(line[2:]); ok {
				out = append(out, d)
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) >= 2 && net.ParseIP(fields[0]) != nil {
			for _, f := range fields[1:] {
				f = strings.ToLower(f)
				if _, skip := hostsIgnored[f]; skip {
					continue
				}
				if validDomain(f) {
					out = append(out, f)
				}
			}
			continue
		}

		if len(fields) == 1 {
			if d := strings.ToLower(fields[0]); validDomain(d) {
				out = append(out, d)
			}
		}
	}
	return out
}

// parseAnchoredRule handles the part of a "||" rule after the anchor. Only
// rules that cover a whole domain are accepted: "example.com^",
// "example.com^$third-party" and "example.com".
func parseAnchoredRule(rule string) (string, bool) {
	end := strings.IndexAny(rule, "^/$|*")
	domain, rest := rule, ""
	if end >= 0 {
		domain, rest = rule[:end], rule[end:]
	}
	if rest != "" {
		if rest[0] != '^' {
			return "", false
		}
		if len(rest) > 1 && rest[1] != '$' && rest[1] != '|' {
			return "", false
		}
	}
	domain = strings.ToLower(domain)
	if !validDomain(domain) {
		return "", false
	}
	return domain, true
}

// validDomain accepts dotted hostnames made of letters, digits and hyphens.
func validDomain(s string) bool {
	if len(s) < 3 || len(s) > 253 || !strings.Contains(s, ".") {
		return false
	}
	if s[0] == '.' || s[len(s)-1] == '.' || strings.Contains(s, "..") {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '.', c == '_':
		default:
			return false
		}
	}
	return net.ParseIP(s) == nil
}

func readListFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxListSize))
}
