package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/lease-abstract/internal/classifier"
	"github.com/sells-group/lease-abstract/internal/segmenter"
)

var (
	segmentJSON bool
	segmentFull bool
)

var segmentCmd = &cobra.Command{
	Use:   "segment <document.txt>",
	Short: "Segment and classify a document without calling the extraction service",
	Long:  "Dry run of the pipeline's local stages. Useful for tuning segmenter sizes and reviewing what the classifier would exclude.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSegment,
}

func init() {
	segmentCmd.Flags().BoolVar(&segmentJSON, "json", false, "emit segments as JSON")
	segmentCmd.Flags().BoolVar(&segmentFull, "text", false, "include full segment text in JSON output")
	rootCmd.AddCommand(segmentCmd)
}

func runSegment(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	res := segmenter.New(cfg.Segmenter).Segment(string(raw))
	segments := classifier.New(cfg.Classifier).Classify(res.Segments)

	if segmentJSON {
		if !segmentFull {
			for i := range segments {
				segments[i].Text = ""
			}
		}
		return writeJSON(struct {
			Strategy string `json:"strategy"`
			Degraded bool   `json:"degraded,omitempty"`
			Segments any    `json:"segments"`
		}{res.Strategy, res.Degraded, segments}, "")
	}

	fmt.Printf("strategy=%s degraded=%v segments=%d\n", res.Strategy, res.Degraded, len(segments))
	for _, s := range segments {
		mark := " "
		if s.Excluded {
			mark = "x"
		}
		heading := s.Heading
		if heading == "" {
			heading = "-"
		}
		fmt.Printf("%s %-8s [%7d,%7d) %-12s pages %d-%d  %s\n",
			mark, s.ID, s.StartOffset, s.EndOffset, s.Category, s.PageStart, s.PageEnd, heading)
	}
	return nil
}
