package router

import "strings"

// MakeRouteMatcherOptions configures the route matching behavior
type MakeRouteMatcherOptions struct {
	Separator string // default "."
	// OnlyFinalSegment restricts "#" to the last pattern segment.
	OnlyFinalSegment bool
}

// MakeRouteMatcher returns func(pattern, topic string) bool.
// "*" and "+" match exactly one segment, "#" matches zero or more.
func MakeRouteMatcher(opts ...MakeRouteMatcherOptions) func(pattern, topic string) bool {
	separator := "."
	onlyFinal := false
	if len(opts) > 0 {
		if opts[0].Separator != "" {
			separator = opts[0].Separator
		}
		onlyFinal = opts[0].OnlyFinalSegment
	}

	return func(pattern, topic string) bool {
		if pattern == topic {
			return true
		}
		p := strings.Split(pattern, separator)
		if onlyFinal {
			for i, part := range p {
				if part == "#" && i != len(p)-1 {
					return false
				}
			}
		}
		return matchSegments(p, strings.Split(topic, separator))
	}
}

func matchSegments(pattern, topic []string) bool {
	// prev[j]: pattern[:i-1] matches topic[:j]
	prev := make([]bool, len(topic)+1)
	cur := make([]bool, len(topic)+1)
	prev[0] = true

	for _, part := range pattern {
		cur[0] = part == "#" && prev[0]
		for j := 1; j <= len(topic); j++ {
			switch part {
			case "#":
				cur[j] = prev[j] || cur[j-1]
			case "*", "+":
				cur[j] = prev[j-1]
			default:
				cur[j] = prev[j-1] && part == topic[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(topic)]
}
