// Package cli defines the docsentry commands. serve runs the documentation
// health service; check runs a single scan and exits with a CI-friendly
// status code.
package cli

import (
	"github.com/spf13/cobra"
)

// configPath is bound to the persistent --config flag and consulted by every
// subcommand. Empty means config/{DOCSENTRY_ENV}.yaml.
var configPath string

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "docsentry",
		Short: "Documentation health checker for markdown guides",
		Long: `docsentry keeps markdown documentation honest. It parses every document
in a source (a directory, a git repository, an object store bucket or a
single URL), verifies internal anchors, code fences and document structure,
and probes every external link.

Run "docsentry check" for a one-shot scan in CI, or "docsentry serve" to
keep a documentation set under continuous watch with an HTTP API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config/{DOCSENTRY_ENV|dev}.yaml)")
	root.AddCommand(NewServeCommand(version))
	root.AddCommand(NewCheckCommand())
	return root
}

// Execute runs the CLI and returns the first command error.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}
