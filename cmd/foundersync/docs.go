package main

import (
	"fmt"
	"os"

	"github.com/ashureev/foundersync/internal/docs"
	"github.com/ashureev/foundersync/internal/store"
	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs <simulation-id>",
	Short: "Generate and store feature documentation for a simulation",
	Long: `Ask every agent about every documentation topic, assemble the
document, store it with the simulation and print it.

Sections whose model call fails are replaced with a short notice, so the
command only fails when the simulation cannot be loaded or saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocs,
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.Flags().StringP("output", "o", "", "also write the document to this file")
	docsCmd.Flags().String("topics", "", "topic catalog YAML (overrides DOCS_TOPICS_FILE)")
}

func runDocs(cmd *cobra.Command, args []string) error {
	cfg, svc, err := newService(cmd)
	if err != nil {
		return err
	}

	topicsFile, _ := cmd.Flags().GetString("topics")
	if topicsFile == "" {
		topicsFile = cfg.Docs.TopicsFile
	}
	topics, err := docs.LoadTopics(topicsFile)
	if err != nil {
		return err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	sim, err := repo.GetSimulation(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("load simulation %s: %w", args[0], err)
	}

	gen, err := docs.NewGenerator(svc, repo, topics, docs.Options{
		Concurrency:  cfg.Docs.Concurrency,
		HistoryLimit: cfg.Chat.HistoryLimit,
	})
	if err != nil {
		return err
	}

	doc, err := gen.Generate(cmd.Context(), sim)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("output"); path != "" {
		if err := os.WriteFile(path, []byte(doc.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	fmt.Fprint(cmd.OutOrStdout(), doc.Content)
	fmt.Fprintf(cmd.ErrOrStderr(), "stored documentation %s for %s\n", doc.ID, sim.StartupName)
	return nil
}
