// Package config handles sluice.yaml loading for the export and search commands.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a sluice.yaml body.
// ${NAME} becomes the value of NAME; ${NAME:-fallback} becomes fallback
// when NAME is unset or empty. An unset reference without a fallback
// becomes the empty string, leaving it to field validation to reject.
func ExpandEnv(body string) string {
	refs := envRef.FindAllStringSubmatchIndex(body, -1)
	if len(refs) == 0 {
		return body
	}

	var b strings.Builder
	b.Grow(len(body))
	last := 0
	for _, ref := range refs {
		b.WriteString(body[last:ref[0]])
		b.WriteString(lookupRef(body, ref))
		last = ref[1]
	}
	b.WriteString(body[last:])
	return b.String()
}

// lookupRef resolves one match; ref holds submatch offsets as returned by
// FindAllStringSubmatchIndex.
func lookupRef(body string, ref []int) string {
	if v := os.Getenv(body[ref[2]:ref[3]]); v != "" {
		return v
	}
	if ref[4] < 0 {
		return ""
	}
	return body[ref[4]:ref[5]]
}
