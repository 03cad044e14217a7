// Package flyway drives the external Flyway CLI: it renders per-schema
// configuration files and invokes the tool as a bounded subprocess.
package flyway

import (
	"fmt"
	"sort"
	"strings"
)

// Config is the configuration block for one per-schema tool invocation
type Config struct {
	URL          string
	User         string
	Password     string
	Schema       string
	Location     string
	Placeholders map[string]string
}

// Render produces the flyway config file contents
func (c *Config) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "flyway.url=%s\n", c.URL)
	fmt.Fprintf(&b, "flyway.user=%s\n", c.User)
	fmt.Fprintf(&b, "flyway.password=%s\n", c.Password)
	fmt.Fprintf(&b, "flyway.schemas=%s\n", c.Schema)
	fmt.Fprintf(&b, "flyway.defaultSchema=%s\n", c.Schema)
	fmt.Fprintf(&b, "flyway.locations=filesystem:%s\n", c.Location)
	fmt.Fprintf(&b, "flyway.baselineOnMigrate=true\n")

	// Stable ordering keeps generated files diffable
	keys := make([]string, 0, len(c.Placeholders))
	for k := range c.Placeholders {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "flyway.placeholders.%s=%s\n", k, c.Placeholders[k])
	}

	return b.String()
}
