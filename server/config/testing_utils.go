package config

import (
	"os"
	"testing"
)

// SetTestEnv sets the environment variable of each config key for the
// duration of the test and restores the previous values on cleanup. Do _not_
// use this in parallel tests.
func SetTestEnv(t *testing.T, values map[string]string) {
	for key, val := range values {
		name := envNameFromConfigKey(key)
		prev, had := os.LookupEnv(name)
		t.Cleanup(func() {
			if had {
				os.Setenv(name, prev) //nolint:errcheck
				return
			}
			os.Unsetenv(name) //nolint:errcheck
		})
		if err := os.Setenv(name, val); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
}
