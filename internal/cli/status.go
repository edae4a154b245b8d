package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured backends and their availability",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.Orchestrator.Status(cmd.Context())

	if statusJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Embedding:    %s (%s)\n", a.Config.Embedding.Type, st.EmbeddingModel)
	cmd.Printf("Vector store: %s\n", a.Config.VectorStore.Type)
	cmd.Printf("LLM:          %s (%s)\n", st.GeneratorModel, availability(st.GeneratorAvailable))
	if st.Ready {
		cmd.Printf("Document:     %s (%d chunks)\n", st.DocumentName, st.IndexedChunks)
	} else {
		cmd.Println("Document:     none loaded")
	}
	return nil
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}
