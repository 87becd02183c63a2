// Package file classifies a recorded WAV file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/livesound/internal/analysis"
	"github.com/tphakala/livesound/internal/classifier"
	"github.com/tphakala/livesound/internal/conf"
	"github.com/tphakala/livesound/internal/errors"
	"github.com/tphakala/livesound/internal/myaudio"
	"github.com/tphakala/livesound/internal/results"
)

// Command creates the file command.
func Command(settings *conf.Settings) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "file [input.wav]",
		Short: "Analyze an audio file",
		Long:  "Replay a WAV file through the pipeline at its natural rate and print every result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Audio.Source = args[0]
			settings.Audio.RealtimeFile = true

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			printer := textPrinter
			if jsonOutput {
				printer = jsonPrinter
			}
			return Run(ctx, settings, cmd.OutOrStdout(), printer)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON lines")
	cmd.Flags().Float64("overlap", 0, "Overlap between consecutive windows, 0.0 to 1.0")
	cmd.Flags().Float64("threshold", 0, "Minimum score for a reported category")
	cmd.Flags().String("model", "", "Model to load")

	if err := conf.AnnotateFlags(cmd.Flags(), map[string]string{
		"overlap":   "analysis.overlap",
		"threshold": "analysis.threshold",
		"model":     "classifier.model",
	}); err != nil {
		panic(err)
	}

	return cmd
}

// Printer writes one result.
type Printer func(w io.Writer, r *results.ClassificationResult) error

// Run classifies the file named by settings.Audio.Source until the file is
// exhausted or ctx is cancelled.
func Run(ctx context.Context, settings *conf.Settings, w io.Writer, printResult Printer) error {
	if !analysis.IsFileSource(settings.Audio.Source) {
		return errors.Newf("unsupported input %q, expected a .wav file", settings.Audio.Source).
			Component("file").
			Category(errors.CategoryValidation).
			Build()
	}

	broadcaster := results.NewBroadcaster(settings.Analysis.ResultBuffer, nil)
	defer broadcaster.Close()
	sub := broadcaster.Subscribe()
	defer sub.Unsubscribe()

	loader := classifier.NewTFLiteLoader(classifier.NewModels(settings.Classifier.Models))
	ctrl := analysis.NewController(settings, loader, analysis.DefaultDevices, broadcaster, nil)
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	session := ctrl.Session()
	for {
		select {
		case r, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := printResult(w, r); err != nil {
				return err
			}
		case <-session.Done():
			drain(sub, w, printResult)
			if err := session.Err(); err != nil && !errors.Is(err, myaudio.ErrSourceExhausted) {
				return err
			}
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// drain prints results queued before the session ended.
func drain(sub *results.Subscription, w io.Writer, printResult Printer) {
	for {
		select {
		case r, ok := <-sub.C():
			if !ok || printResult(w, r) != nil {
				return
			}
		default:
			return
		}
	}
}

func textPrinter(w io.Writer, r *results.ClassificationResult) error {
	parts := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		label := c.Label
		if label == "" {
			label = fmt.Sprintf("#%d", c.Index)
		}
		parts = append(parts, fmt.Sprintf("%s %.2f", label, c.Score))
	}
	if len(parts) == 0 {
		parts = append(parts, "-")
	}
	_, err := fmt.Fprintf(w, "%s  %s\n", r.Timestamp.Format("15:04:05.000"), strings.Join(parts, ", "))
	return err
}

func jsonPrinter(w io.Writer, r *results.ClassificationResult) error {
	return json.NewEncoder(w).Encode(r)
}
