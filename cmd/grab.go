package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/pkg/iidc/convert"
	"github.com/spf13/cobra"
)

// CreateGrabCmd creates the grab command.
func CreateGrabCmd() *cobra.Command {
	var flags cameraFlags
	var output, bayer string
	var count, buffers int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "grab [camera-id]",
		Short: "Capture frames to files",
		Long: `Starts a capture on the selected camera, waits for frames and writes them out. ` +
			`A .png output is converted to RGB; any other extension gets the raw frame bytes. ` +
			`With --count above one the frame number is inserted before the extension.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			method, err := convert.ParseBayerMethod(bayer)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			svc, logger, closeFn, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := pickCamera(svc, args)
			if err != nil {
				return err
			}
			session, err := svc.StartCapture(id, cameras.CaptureParams{Buffers: buffers})
			if err != nil {
				return err
			}
			logger.Info("Capture started", "camera", id, "session_id", session.ID)
			defer func() {
				if _, err := svc.StopCapture(id); err != nil {
					logger.Warn("Failed to stop capture", "camera", id, "error", err)
				}
			}()

			var lastSeq uint64
			for i := 0; i < count; i++ {
				snap, err := nextSnapshot(ctx, svc, id, timeout, i > 0, lastSeq)
				if err != nil {
					return err
				}
				lastSeq = snap.Sequence
				path := framePath(output, i, count)
				if err := writeFrame(path, snap, convert.Options{Filter: snap.Filter, Method: method, Bits: snap.Bits}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: frame %d, %dx%d %s\n",
					path, snap.Sequence, snap.Geometry.Width, snap.Geometry.Height, snap.Geometry.ColorCoding)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "frame.png", "Output file")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of frames to write")
	cmd.Flags().IntVar(&buffers, "buffers", 4, "Ring buffers")
	cmd.Flags().StringVar(&bayer, "bayer", "nearest", "Demosaicing for RAW codings (nearest, simple)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Time to wait for each frame")
	return cmd
}

// nextSnapshot waits for a frame newer than after.
func nextSnapshot(ctx context.Context, svc *cameras.Service, id string, timeout time.Duration, haveLast bool, after uint64) (cameras.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		snap, err := svc.Snapshot(ctx, id)
		if err != nil {
			return cameras.Snapshot{}, fmt.Errorf("wait for frame: %w", err)
		}
		if !haveLast || snap.Sequence > after {
			return snap, nil
		}
	}
}

func framePath(output string, i, count int) string {
	if count == 1 {
		return output
	}
	ext := filepath.Ext(output)
	return fmt.Sprintf("%s-%04d%s", strings.TrimSuffix(output, ext), i, ext)
}

func writeFrame(path string, snap cameras.Snapshot, opts convert.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if strings.EqualFold(filepath.Ext(path), ".png") {
		err = convert.WritePNG(w, snap.Data, snap.Geometry, opts)
	} else {
		_, err = w.Write(snap.Data)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
