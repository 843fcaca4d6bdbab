package stage

import "strings"

// Health reports whether a stage can accept work. Detail names the first
// unmet requirement when Ready is false.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Requirement is one precondition a stage checks before it reports ready.
type Requirement struct {
	Met    bool
	Detail string
}

// Needs holds when ok is true and otherwise reports detail.
func Needs(ok bool, detail string) Requirement {
	return Requirement{Met: ok, Detail: detail}
}

// Configured holds when the setting named key has a non-blank value.
func Configured(key, value string) Requirement {
	return Requirement{Met: strings.TrimSpace(value) != "", Detail: key + " not configured"}
}

// Check evaluates reqs in order and stops at the first one not met.
func Check(name string, reqs ...Requirement) Health {
	for _, req := range reqs {
		if !req.Met {
			return Health{Name: name, Detail: req.Detail}
		}
	}
	return Health{Name: name, Ready: true}
}
