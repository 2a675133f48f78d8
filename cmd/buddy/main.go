package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindwell/buddy/config"
	"github.com/mindwell/buddy/internal/kb"
	"github.com/mindwell/buddy/internal/registry"
	srv "github.com/mindwell/buddy/internal/server"
)

func main() {
	var root = &cobra.Command{Use: "buddy"}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to ./config/config.json)")

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the question answering HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return srv.Run(config.LoadConfig(configPath))
		},
	}

	var question string
	var index = &cobra.Command{
		Use:   "index",
		Short: "Build the internal knowledge index and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(configPath)
			source, routes, err := registry.LoadDir(cfg.Registry.Dir)
			if err != nil {
				return fmt.Errorf("loading registries: %w", err)
			}
			idx := kb.New(source, routes, log.New(io.Discard, "", 0))

			ctx := context.Background()
			pages, err := idx.Pages(ctx)
			if err != nil {
				return err
			}

			if question != "" {
				result, err := idx.Search(ctx, question, 5)
				if err != nil {
					return err
				}
				fmt.Printf("coverage: %s\n", result.Coverage)
				for _, hit := range result.Hits {
					fmt.Printf("%.4f  %-40s %s\n", hit.Score, hit.Page.Route, hit.Page.Title)
				}
				return nil
			}

			fmt.Printf("%d pages indexed\n", len(pages))
			for _, page := range pages {
				fmt.Printf("%-40s %-30s %s\n", page.Route, page.Title, strings.Join(page.Tags, ","))
			}
			return nil
		},
	}
	index.Flags().StringVar(&question, "question", "", "run a search instead of dumping the index")

	root.AddCommand(serve, index)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
