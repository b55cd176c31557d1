package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maauso/beatstore-api/internal/bootstrap"
)

func newPreviewCmd(root *rootOptions) *cobra.Command {
	var output, ffmpegPath string

	cmd := &cobra.Command{
		Use:   "preview <input>",
		Short: "Render the MP3 preview of an audio file",
		Long: `Decodes the input (WAV, MP3 or FLAC natively, anything else through ffmpeg),
keeps the first 30% of the first channel and encodes it as a 128 kbps MP3.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if output == "" {
				output = defaultPreviewPath(input)
			}

			data, err := os.ReadFile(input) // #nosec G304 - path comes from the operator
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			enc := bootstrap.NewPreviewEncoder(ffmpegPath, root.logger(cmd))
			asset, err := enc.Encode(data)
			if err != nil {
				return err
			}

			if err := os.WriteFile(output, asset.Data, 0o644); err != nil { // #nosec G306
				return fmt.Errorf("write output: %w", err)
			}

			dur := time.Duration(asset.Samples) * time.Second / time.Duration(asset.SampleRate)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d bytes, %d of %d samples at %d Hz (%s)\n",
				output, len(asset.Data), asset.Samples, asset.SourceSamples, asset.SampleRate, dur.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default <input>.preview.mp3)")
	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "ffmpeg", "path to the ffmpeg binary")
	return cmd
}

func defaultPreviewPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".preview.mp3"
}
