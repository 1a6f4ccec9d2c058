package mqtt

import "strings"

// splitSegments splits a filter or topic on '/'. Empty segments
// participate in matching ("a//b" has three segments: "a", "", "b"),
// so this is a plain strings.Split, not a filtering split.
func splitSegments(s string) []string {
	return strings.Split(s, "/")
}

// validateFilter checks a subscription filter's wildcard placement: '+'
// must occupy an entire segment, '#' must occupy an entire segment and be
// the last segment.
func validateFilter(filter string) error {
	segs := splitSegments(filter)
	for i, seg := range segs {
		if strings.Contains(seg, "+") && seg != "+" {
			return newErr(ErrBadArgs, "'+' must occupy an entire topic level in filter %q", filter)
		}
		if strings.Contains(seg, "#") {
			if seg != "#" {
				return newErr(ErrBadArgs, "'#' must occupy an entire topic level in filter %q", filter)
			}
			if i != len(segs)-1 {
				return newErr(ErrBadArgs, "'#' must be the last level in filter %q", filter)
			}
		}
	}
	return nil
}

// matchTopic reports whether topic matches filter under MQTT 3.1.1
// wildcard semantics: '+' matches exactly one segment; a trailing
// '#' matches the remainder, including zero additional segments; the
// match is segment-wise and case-sensitive, and empty segments
// participate (so "a//b" matches the filter "a//b" but not "a/b").
func matchTopic(filter, topic string) bool {
	fSegs := splitSegments(filter)
	tSegs := splitSegments(topic)

	for i, fSeg := range fSegs {
		if fSeg == "#" {
			return true // matches remainder, including nothing left
		}
		if i >= len(tSegs) {
			return false
		}
		if fSeg != "+" && fSeg != tSegs[i] {
			return false
		}
	}
	return len(fSegs) == len(tSegs)
}

// masterPrefixOf strips a trailing "/+" or "/#" from a filter to derive
// the string a master subscription prefix is compared against.
func masterPrefixOf(filter string) string {
	if strings.HasSuffix(filter, "/+") || strings.HasSuffix(filter, "/#") {
		return filter[:len(filter)-2]
	}
	return filter
}

// underMasterPrefix reports whether filter is covered by any registered
// master-subscription prefix, matched by string prefix.
func underMasterPrefix(filter string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(filter, p) {
			return p, true
		}
	}
	return "", false
}
