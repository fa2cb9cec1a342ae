package gazectl

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kovaxis/gaze/internal/debugserver"
	"github.com/kovaxis/gaze/internal/gazeconfig"
)

// newInspectCmd opens path and serves the read-only debug HTTP
// surface over it until interrupted, per SPEC_FULL.md's "cmd/gazectl
// inspect starts the debug HTTP surface ... and prints its address."
// Grounded on dh-cli's serve.go signal-handling shape (first SIGINT
// drains gracefully; this server has nothing to drain beyond closing
// its listener, so one signal is enough).
func newInspectCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "inspect PATH",
		Short: "Open a file as a buffer and serve its debug introspection surface",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cfg, err := gazeconfig.Load()
			if err != nil {
				return fail(cmd, "loading config: %v", err)
			}

			buf, file, err := openBuffer(path, cfg)
			if err != nil {
				return fail(cmd, "opening %s: %v", path, err)
			}
			defer buf.Close()
			defer file.Close()

			buf.SetViewport(0, buf.DocLength(), nil)

			srv := debugserver.New(&debugserver.Config{ID: path, Buffer: buf})

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				srv.Close()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "serving debug introspection for %s on http://%s\n", path, addr)
			if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7717", "Address to serve the debug HTTP surface on")
	return cmd
}
