package util

import "os"

// GetEnvOrDefault returns the value of env when set and non-empty, otherwise def.
func GetEnvOrDefault(env, def string) string {
	if val, ok := os.LookupEnv(env); ok && val != "" {
		return val
	}
	return def
}
