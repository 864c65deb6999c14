// suites/suites.go

// Package suites embeds the bundled scenario suites so that the binary can
// run them without a checkout.
package suites

import "embed"

// FS holds one directory per suite. Shared app models end in .app.yaml.
//
//go:embed demobank parabank
var FS embed.FS

// Names lists the bundled suites.
func Names() []string {
	return []string{"demobank", "parabank"}
}
