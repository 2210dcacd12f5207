package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rag-web-backend",
	Short: "Document ingestion and retrieval-augmented question answering",
	Long: `rag-web-backend ingests office documents into per-scope knowledge
stores (markdown, summaries, embeddings) and answers questions over them
through retrieval-augmented generation.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
