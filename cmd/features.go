package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/pkg/iidc"
	"github.com/spf13/cobra"
)

// CreateFeaturesCmd creates the features command.
func CreateFeaturesCmd() *cobra.Command {
	var flags cameraFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "features [camera-id]",
		Short: "List camera features",
		Long: `Opens the cameras and prints every feature the selected camera implements with ` +
			`its range, current value and control mode. Without an id the first camera is used.`,
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
			features, err := svc.Features(id)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(features)
			}
			return printFeatures(cmd.OutOrStdout(), features)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func printFeatures(w io.Writer, features []iidc.FeatureInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tMIN\tMAX\tVALUE\tMODE\tABSOLUTE")
	for _, f := range features {
		abs := "-"
		if f.AbsoluteCapable {
			abs = fmt.Sprintf("%g [%g, %g]", f.AbsValue, f.AbsMin, f.AbsMax)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n", f.Name, f.Min, f.Max, featureValue(f), cameras.FeatureMode(f), abs)
	}
	return tw.Flush()
}

func featureValue(f iidc.FeatureInfo) string {
	switch f.ID {
	case iidc.FeatureWhiteBalance:
		return fmt.Sprintf("%d/%d", f.BUValue, f.RVValue)
	case iidc.FeatureWhiteShading:
		return fmt.Sprintf("%d/%d/%d", f.RValue, f.GValue, f.BValue)
	case iidc.FeatureTemperature:
		return fmt.Sprintf("%d (target %d)", f.Value, f.TargetValue)
	case iidc.FeatureTrigger:
		return fmt.Sprintf("mode %d", f.TriggerMode-iidc.TriggerMode0)
	}
	return fmt.Sprint(f.Value)
}
