package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formpilot/formpilot/internal/knowledge"
)

var (
	ingestFile     string
	ingestTaskKind string
	ingestReplace  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <document-id>",
	Short: "Add a document to the knowledge base",
	Long: `Add a document to the knowledge base for retrieval-augmented
generation.

The document text is read from --file or stdin, split into paragraph
chunks, embedded, and stored under the given document ID. Tag chunks
with --task-kind to scope them to one task's retrieval:

  formpilot ingest onboarding-sop --file sop.txt --task-kind sop-generator
  cat notes.txt | formpilot ingest meeting-notes --replace

--replace removes the document's existing chunks first, so re-ingesting
an updated file does not leave stale chunks behind.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "path to the document text (defaults to stdin)")
	ingestCmd.Flags().StringVar(&ingestTaskKind, "task-kind", "", "tag chunks for one task kind's retrieval filter")
	ingestCmd.Flags().BoolVar(&ingestReplace, "replace", false, "delete the document's existing chunks first")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	documentID := args[0]

	text, err := readDocument()
	if err != nil {
		return err
	}
	chunks := splitChunks(text)
	if len(chunks) == 0 {
		return fmt.Errorf("document is empty; nothing to ingest")
	}

	ctx, stop, a, err := setupApp()
	if err != nil {
		return err
	}
	defer stop()
	defer func() { _ = a.Close() }()

	if a.Knowledge == nil {
		return fmt.Errorf("no embedder configured; set GEMINI_API_KEY or OPENAI_API_KEY to ingest documents")
	}

	out := cmd.OutOrStdout()

	if ingestReplace {
		removed, err := a.Knowledge.DeleteDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("removing existing chunks: %w", err)
		}
		if removed > 0 {
			fmt.Fprintf(out, "Removed %d existing chunk(s) of %q\n", removed, documentID)
		}
	}

	var metadata map[string]string
	if ingestTaskKind != "" {
		metadata = map[string]string{"task_kind": ingestTaskKind}
	}

	for i, chunkText := range chunks {
		err := a.Knowledge.Add(ctx, knowledge.Chunk{
			ID:         fmt.Sprintf("%s-%d", documentID, i),
			DocumentID: documentID,
			Ordinal:    i,
			Text:       chunkText,
			Metadata:   metadata,
		})
		if err != nil {
			return fmt.Errorf("ingesting chunk %d of %q: %w", i, documentID, err)
		}
	}

	total, err := a.Knowledge.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	fmt.Fprintf(out, "Ingested %d chunk(s) as %q (%d total in the knowledge base)\n",
		len(chunks), documentID, total)
	return nil
}

func readDocument() (string, error) {
	if ingestFile == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading document from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(ingestFile)
	if err != nil {
		return "", fmt.Errorf("reading document file: %w", err)
	}
	return string(data), nil
}

// splitChunks breaks document text into paragraph chunks, dropping
// blank paragraphs. One paragraph per chunk keeps embeddings focused
// on a single idea.
func splitChunks(text string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	chunks := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks
}
