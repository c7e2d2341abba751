package runbook

import (
	"os"
	"regexp"
	"sort"
)

// envVarPattern matches ${VAR} references. Runbooks do not support
// shell-style defaults; a referenced variable must be set.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${VAR} occurrence in the input with the value
// of the corresponding environment variable. A variable that is set to
// the empty string substitutes the empty string; a variable that is not
// set at all fails with MissingEnvVarError naming every missing variable.
func ExpandEnv(input string) (string, error) {
	missing := map[string]struct{}{}

	expanded := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		value, ok := os.LookupEnv(name)
		if !ok {
			missing[name] = struct{}{}
			return match
		}
		return value
	})

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", &MissingEnvVarError{Names: names}
	}
	return expanded, nil
}
