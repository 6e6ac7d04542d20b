package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/spf13/cobra"
)

// CreateBandwidthCmd creates the bandwidth command.
func CreateBandwidthCmd() *cobra.Command {
	var flags cameraFlags
	var allModes bool

	cmd := &cobra.Command{
		Use:   "bandwidth [camera-id]",
		Short: "Show isochronous bandwidth usage",
		Long: `Prints the bandwidth allocation units the current video mode needs. With --all-modes ` +
			`every supported mode is selected in turn at its highest framerate.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := pickCamera(svc, args)
			if err != nil {
				return err
			}
			vi, err := svc.Video(id)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MODE\tFRAMERATE\tPACKET\tUNITS")
			if !allModes {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", vi.Mode, orDash(vi.Framerate), vi.Geometry.QuadletsPerPacket*4, vi.BandwidthUnits)
				return tw.Flush()
			}
			for _, mode := range vi.Modes {
				row, err := svc.SetVideo(id, cameras.VideoSettings{Mode: mode})
				if err != nil {
					fmt.Fprintf(tw, "%s\t-\t-\t%v\n", mode, err)
					continue
				}
				if n := len(row.Framerates); n > 0 {
					if fast, err := svc.SetVideo(id, cameras.VideoSettings{Framerate: framerateValue(row.Framerates[n-1])}); err == nil {
						row = fast
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", row.Mode, orDash(row.Framerate), row.Geometry.QuadletsPerPacket*4, row.BandwidthUnits)
			}
			return tw.Flush()
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&allModes, "all-modes", false, "Report every supported mode")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// framerateValue parses the "7.5fps" form back to a number.
func framerateValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "fps"), 64)
	if err != nil {
		return 0
	}
	return v
}
