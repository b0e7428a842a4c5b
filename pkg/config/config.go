// Package config exposes feature-flag style environment overrides, read
// fresh at each call rather than cached at startup, so tests can flip a
// flag mid-case. CLI flag parsing/packaging is out of scope; only the
// env-var binding storj's pkg/process builds on top of is kept.
package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix names every override SURREAL_<FEATURE>.
const envPrefix = "SURREAL"

// Flag describes one feature flag: its owning component, a short
// description for docs/INFO output, and the release it became
// available in — mirrors storj's `default`/`releaseDefault` struct tag
// metadata, expressed as plain fields since there is no CLI flag
// surface to generate tags for here.
type Flag struct {
	Name          string
	Owner         string
	Description   string
	EnabledSince  string
	DefaultOn     bool
}

// Flags reads feature flags from the environment on every call.
type Flags struct {
	v *viper.Viper
}

// New creates a Flags reader bound to the process environment.
func New() *Flags {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	return &Flags{v: v}
}

// Enabled reports whether f is turned on, checking SURREAL_<NAME> in
// the environment and falling back to f.DefaultOn when unset.
func (c *Flags) Enabled(f Flag) bool {
	key := strings.ToUpper(f.Name)
	raw := c.v.GetString(key)
	if raw == "" {
		return f.DefaultOn
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return f.DefaultOn
	}
	return b
}

// String reads a string-valued override, or def if unset.
func (c *Flags) String(name, def string) string {
	key := strings.ToUpper(name)
	if !c.v.IsSet(key) {
		return def
	}
	return c.v.GetString(key)
}

// Int reads an integer-valued override, or def if unset or unparsable.
func (c *Flags) Int(name string, def int) int {
	key := strings.ToUpper(name)
	if !c.v.IsSet(key) {
		return def
	}
	return c.v.GetInt(key)
}

// Registry is the set of feature flags this build recognizes, used by
// `INFO FOR ROOT`-style introspection and documentation generation.
var Registry = []Flag{
	{Name: "FULLTEXT_SEARCH", Owner: "query", Description: "enable FULLTEXT index creation and search", EnabledSince: "1.0.0", DefaultOn: true},
	{Name: "HNSW_INDEX", Owner: "query", Description: "enable HNSW vector index creation and KNN search", EnabledSince: "1.0.0", DefaultOn: true},
	{Name: "CHANGEFEED_RETENTION", Owner: "storage", Description: "enable background change feed retention pruning", EnabledSince: "1.0.0", DefaultOn: true},
}
