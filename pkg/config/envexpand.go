package config

import "os"

// ExpandEnv expands ${VAR}/$VAR references in a YAML config file before it's
// parsed, so secrets like LLM API keys and the Postgres/Redis DSNs never
// need to live in the file itself. Missing variables expand to "" — validate
// catches fields that end up empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
