// File: cmd/demo.go
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/flowcheck/internal/demobank"
	"github.com/xkilldash9x/flowcheck/internal/observability"
)

// newDemoCmd creates the `demo` command, serving the bundled demo bank until
// interrupted.
func newDemoCmd() *cobra.Command {
	var addr string

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Serves the bundled demo bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Demo().Addr
			}
			srv := demobank.New(demobank.WithLogger(observability.GetLogger()))
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	demoCmd.Flags().StringVar(&addr, "addr", "", "listen address (default is 127.0.0.1:8089)")
	return demoCmd
}
