// Package devices lists the available capture devices.
package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/livesound/internal/myaudio"
)

// Command creates the devices command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Long:  "List the capture devices usable as audio.source. The default device is marked with *.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := myaudio.ListDevices()
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), infos)
		},
	}
}

// Print writes devices as an aligned table.
func Print(w io.Writer, infos []myaudio.DeviceInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tID")
	for _, d := range infos {
		marker := ""
		if d.IsDefault {
			marker = " *"
		}
		fmt.Fprintf(tw, "%d\t%s%s\t%s\n", d.Index, d.Name, marker, d.ID)
	}
	return tw.Flush()
}
