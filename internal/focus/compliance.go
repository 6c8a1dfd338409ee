// Package focus polices an active execution window: a countdown derived
// from the card's timer and an advisory domain compliance check against the
// frozen whitelist. It can surface breaches; it cannot block navigation.
package focus

import (
	"fmt"
	"net/url"
	"strings"
)

// SystemPageLabel is the sentinel used when the active surface has no
// resolvable domain; an unknown surface is conservatively a breach.
const SystemPageLabel = "System Page"

// DomainParseError reports a malformed domain offered to the whitelist.
// The add is rejected and the list left unchanged.
type DomainParseError struct {
	Input string
}

func (e DomainParseError) Error() string {
	return fmt.Sprintf("invalid domain %q", e.Input)
}

// Surface describes what the inspector saw in front of the user.
type Surface struct {
	Domain   string // empty when unresolvable (system page, opaque surface)
	Internal bool   // the tool's own UI, always compliant
}

// NormalizeDomain canonicalizes a whitelist entry or an observed domain:
// lowercase, scheme and path stripped, leading www. removed.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return "", DomainParseError{Input: raw}
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Hostname() == "" {
			return "", DomainParseError{Input: raw}
		}
		s = u.Hostname()
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	if s == "" || strings.Trim(s, ".-") == "" {
		return "", DomainParseError{Input: raw}
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-' {
			continue
		}
		return "", DomainParseError{Input: raw}
	}
	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return "", DomainParseError{Input: raw}
	}
	return s, nil
}

// Check classifies a surface against the frozen whitelist. It returns
// whether the surface is compliant and, when it is not, the label of the
// offending domain. An empty whitelist means no restriction was requested.
func Check(allowed []string, s Surface) (bool, string) {
	if s.Internal {
		return true, ""
	}
	if len(allowed) == 0 {
		return true, ""
	}
	if s.Domain == "" {
		return false, SystemPageLabel
	}
	active, err := NormalizeDomain(s.Domain)
	if err != nil {
		return false, SystemPageLabel
	}
	for _, entry := range allowed {
		e, err := NormalizeDomain(entry)
		if err != nil {
			continue
		}
		// substring match in either direction: music.youtube.com matches a
		// youtube.com entry and vice versa
		if strings.Contains(active, e) || strings.Contains(e, active) {
			return true, ""
		}
	}
	return false, active
}
