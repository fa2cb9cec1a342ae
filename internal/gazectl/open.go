package gazectl

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/kovaxis/gaze/internal/buffer"
	"github.com/kovaxis/gaze/internal/gazeconfig"
)

// newOpenCmd opens path as a buffer, waits for the initial background
// load and layout scan to settle (bounded by --timeout), then prints
// a JSON summary and exits. It exercises Open/SetViewport/RefineOnce
// exactly as a real embedder's startup path would, without the
// long-running TUI `view` needs.
func newOpenCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "open PATH",
		Short: "Open a file as a buffer and report its initial state",
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

			settleBuffer(buf, timeout)

			summary := struct {
				Path      string `json:"path"`
				DocLength int64  `json:"doc_length"`
				Epoch     uint64 `json:"epoch"`
			}{
				Path:      path,
				DocLength: buf.DocLength(),
				Epoch:     buf.PollEpoch(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Maximum time to wait for the initial load/scan to settle")
	return cmd
}

// openBuffer opens path through osFile and gazeconfig.Config, the
// shared setup open/inspect/view all need.
func openBuffer(path string, cfg gazeconfig.Config) (*buffer.Buffer, *osFile, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, nil, err
	}
	buf := buffer.Open(path, path, file, cfg)
	return buf, file, nil
}

// settleBuffer requests the whole document as the viewport and drives
// RefineOnce until either everything is resident and laid out, or
// timeout elapses — a CLI-only convenience a real embedder wouldn't
// need, since it would instead drive RefineOnce from its own event
// loop indefinitely.
func settleBuffer(buf *buffer.Buffer, timeout time.Duration) {
	length := buf.DocLength()
	buf.SetViewport(0, length, nil)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ans := buf.QueryRect(buffer.Rect{Start: 0, End: length})
		if len(ans.UnmappedRuns) == 0 {
			return
		}
		if buf.RefineOnce() {
			continue
		}
		time.Sleep(5 * time.Millisecond)
	}
}
