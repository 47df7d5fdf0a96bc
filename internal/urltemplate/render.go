// Package urltemplate expands {placeholder} tokens in upstream URL templates.
package urltemplate

import (
	"sort"
	"strings"

	"github.com/grafana/regexp"
)

// Placeholders understood by the catch-up URL template.
const (
	ServerURL     = "server.url"
	Username      = "XC.username"
	Password      = "XC.password"
	StreamID      = "stream_id"
	ProgramStart  = "program.starttime"
	ProgramLength = "program.duration"
)

// DefaultCatchup is the Xtream-Codes timeshift.php form most providers accept.
const DefaultCatchup = "{server.url}/streaming/timeshift.php?username={XC.username}&password={XC.password}&stream={stream_id}&start={program.starttime}&duration={program.duration}"

// Context maps placeholder names (without braces) to their literal values.
type Context map[string]string

var tokenRe = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// Render replaces every {key} present in ctx with its value in a single pass.
// Substituted values are not re-scanned and tokens missing from ctx are left
// as-is.
func Render(tmpl string, ctx Context) string {
	if tmpl == "" || len(ctx) == 0 {
		return tmpl
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", ctx[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Tokens lists the placeholder names referenced by tmpl, in order of first use.
func Tokens(tmpl string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range tokenRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Unresolved returns the tokens of tmpl that ctx cannot fill.
func Unresolved(tmpl string, ctx Context) []string {
	var out []string
	for _, tok := range Tokens(tmpl) {
		if _, ok := ctx[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}
