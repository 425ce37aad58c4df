package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/lease-abstract/internal/classifier"
	"github.com/sells-group/lease-abstract/internal/model"
	"github.com/sells-group/lease-abstract/internal/pipeline"
	"github.com/sells-group/lease-abstract/internal/segmenter"
	"github.com/sells-group/lease-abstract/internal/store"
	"github.com/sells-group/lease-abstract/pkg/extractor"
)

var (
	extractCategory string
	extractOutput   string
	extractNoStore  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <document.txt>",
	Short: "Run the full extraction pipeline over a lease document",
	Long:  "Segments the document, classifies sections, runs every extraction pass, and writes the aggregated abstract with diagnostics as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractCategory, "category", "generic", "document category: retail, office, industrial, or generic")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output file (default stdout)")
	extractCmd.Flags().BoolVar(&extractNoStore, "no-journal", false, "disable the run journal")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if cfg.Anthropic.Key == "" {
		return fmt.Errorf("anthropic api key not configured (set LEASE_ANTHROPIC_KEY)")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	passes, err := model.LoadPasses()
	if err != nil {
		return err
	}

	client := extractor.NewClient(cfg.Anthropic.Key, cfg.Extraction.RequestsPerSecond, cfg.Extraction.Burst)
	adapter, err := extractor.NewAdapter(client, cfg.Anthropic.Model, cfg.Extraction.MaxRequestChars, passes)
	if err != nil {
		return err
	}

	journal, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer journal.Close()

	ctrl := pipeline.NewController(
		segmenter.New(cfg.Segmenter),
		classifier.New(cfg.Classifier),
		pipeline.NewOrchestrator(adapter, passes, cfg.Orchestra),
		pipeline.NewAggregator(model.DefaultFieldRegistry(), passes, cfg.Aggregator),
		journal,
		cfg.Segmenter.MinDocumentChars,
	)

	out, err := ctrl.Run(cmd.Context(), string(raw), model.ParseDocumentCategory(extractCategory))
	if err != nil {
		return err
	}

	return writeJSON(out, extractOutput)
}

func openJournal(cmd *cobra.Command) (store.Store, error) {
	storeCfg := cfg.Store
	if extractNoStore {
		storeCfg.Driver = "none"
	}
	journal, err := store.New(storeCfg)
	if err != nil {
		return nil, err
	}
	if err := journal.Migrate(cmd.Context()); err != nil {
		journal.Close()
		return nil, err
	}
	return journal, nil
}

func writeJSON(v any, path string) error {
	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
