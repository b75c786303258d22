package proc

import (
	"os"
	"sort"
	"strings"
)

// EnvPlus returns the environment of the current process with the given
// overrides applied.
func EnvPlus(overrides map[string]string) map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}

	for k, v := range overrides {
		env[k] = v
	}

	return env
}

// envList converts an environment map to the KEY=VALUE form expected by
// os/exec, sorted by key.
func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}

	sort.Strings(list)

	return list
}
