// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"maps"
	"os"
	"slices"
	"strings"
)

// EnvPrefix marks variables mason sets for its tools. Host variables with
// this prefix are not inherited so a nested invocation never sees stale
// values from an outer one.
const EnvPrefix = "MASON_"

// BuildEnv returns the host environment, minus MASON_* variables, overlaid
// with extra.
func BuildEnv(extra map[string]string) map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		env[k] = v
	}
	maps.Copy(env, extra)
	return env
}

// EnvToSlice converts an environment map to sorted KEY=VALUE pairs.
func EnvToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
