package domain

import (
	"dario.cat/mergo"

	"github.com/loomery/loom/internal/xjson"
)

// MergeMaps folds updates into current, overriding scalar conflicts and
// appending slices. Neither input is mutated.
func MergeMaps(current, updates map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(current)+len(updates))
	for k, v := range current {
		merged[k] = v
	}
	if err := mergo.Merge(&merged, updates, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, err
	}
	return merged, nil
}

// CloneMap deep-copies a variable map through a JSON round trip so subflow
// contexts never alias parent state.
func CloneMap(src map[string]interface{}) (map[string]interface{}, error) {
	if len(src) == 0 {
		return make(map[string]interface{}), nil
	}
	data, err := xjson.Marshal(src)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(src))
	if err := xjson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
