package stream

import "reflect"

// excludedKeys never appear in a state_update delta: bulk blobs, the message
// log (delivered through assistant_response events) and the always-changing
// timestamp.
var excludedKeys = map[string]struct{}{
	"user_image":        {},
	"image":             {},
	"attention_overlay": {},
	"messages":          {},
	"last_update_time":  {},
}

// Delta returns the subset of keys whose value differs from the previous
// flat state, minus the fixed exclusion set.
func Delta(current, previous map[string]any) map[string]any {
	delta := make(map[string]any)
	for key, value := range current {
		if _, excluded := excludedKeys[key]; excluded {
			continue
		}
		prev, existed := previous[key]
		if !existed || !reflect.DeepEqual(prev, value) {
			delta[key] = value
		}
	}
	return delta
}

// CleanCopy returns the flat state minus the excluded keys, used as the
// previous-state snapshot for the next delta.
func CleanCopy(state map[string]any) map[string]any {
	clean := make(map[string]any, len(state))
	for key, value := range state {
		if _, excluded := excludedKeys[key]; excluded {
			continue
		}
		clean[key] = value
	}
	return clean
}
