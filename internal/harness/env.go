package harness

import "strings"

// envBlocklist contains env var keys that are stripped from the child
// environment. Proxy vars are removed so executed code does not silently
// route traffic through the host's proxy.
var envBlocklist = map[string]bool{
	"HTTP_PROXY":  true,
	"HTTPS_PROXY": true,
	"ALL_PROXY":   true,
	"NO_PROXY":    true,
}

// childEnv builds the subprocess environment from a base environment,
// dropping blocklisted keys. The base slice is never mutated.
func childEnv(base []string) []string {
	out := make([]string, 0, len(base))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if envBlocklist[strings.ToUpper(key)] {
			continue
		}
		out = append(out, kv)
	}
	return out
}
