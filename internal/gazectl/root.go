// Package gazectl implements the gazectl CLI's subcommands: open,
// inspect, view. Grounded on dh-cli's internal/cmd/root.go —
// persistent flags for config dir and verbosity, one cobra.Command
// builder per subcommand, registered onto a shared root command.
package gazectl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kovaxis/gaze/internal/gazeconfig"
	"github.com/kovaxis/gaze/internal/glog"
)

// Version is overridden at build time via -ldflags, same convention
// dh-cli's root.go uses for its own Version var.
var Version = "dev"

var (
	configDirFlag string
	verboseFlag   bool
)

// NewRootCmd assembles the gazectl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gazectl",
		Short:         "Reference client for the gaze editing core",
		Long:          "gazectl — opens, inspects, and renders gaze-backed document buffers.",
		Version:       fmt.Sprintf("gazectl v%s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configDirFlag != "" {
				gazeconfig.SetHome(configDirFlag)
			}
			level := "info"
			if cfg, err := gazeconfig.Load(); err == nil && cfg.LogLevel != "" {
				level = cfg.LogLevel
			}
			if verboseFlag {
				level = "debug"
			}
			return glog.SetLevel(level)
		},
	}

	pflags := root.PersistentFlags()
	pflags.StringVar(&configDirFlag, "config-dir", "", "Override config directory (default: ~/.gaze)")
	pflags.BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newOpenCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newViewCmd())
	return root
}

// Execute runs the gazectl command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// fail returns a formatted error for a subcommand's RunE to return.
// Cobra's SilenceUsage/SilenceErrors (set on the root command) mean
// main.go is the only place this ever gets printed, via Execute's
// returned error — unlike dh-cli's commands, which call os.Exit
// directly from deep inside RunE and are untestable for exactly that
// reason.
func fail(cmd *cobra.Command, format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
