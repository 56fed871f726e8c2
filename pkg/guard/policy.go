package guard

import (
	"github.com/vango-dev/queryguard/pkg/query"
)

// applyPolicy filters raw according to policy.
// Keep returns raw unchanged; Drop keeps only allowed keys.
func applyPolicy(raw query.Raw, allowed []string, policy UnknownPolicy) query.Raw {
	if policy == Keep {
		return raw
	}
	return query.PickKeys(raw, allowed...)
}

// overlay combines the current raw mapping with freshly serialized typed
// state. Keep overlays serialized on current; Drop replaces current with
// serialized restricted to allowed keys.
func overlay(current, serialized query.Raw, allowed []string, policy UnknownPolicy) query.Raw {
	if policy == Keep {
		return query.Merge(current, serialized)
	}
	return applyPolicy(serialized, allowed, Drop)
}
