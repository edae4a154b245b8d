package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docqa/internal/app"
	"github.com/0xcro3dile/docqa/internal/config"
	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%32]++
	}
	return v, nil
}

func (e wordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (wordEmbedder) Dimensions() int   { return 32 }
func (wordEmbedder) ModelName() string { return "words" }

type cannedGenerator struct{ text string }

func (cannedGenerator) IsAvailable(context.Context) bool { return true }
func (cannedGenerator) ModelName() string                { return "canned" }

func (g cannedGenerator) Generate(context.Context, string) (<-chan ports.StreamToken, error) {
	ch := make(chan ports.StreamToken, 2)
	ch <- ports.StreamToken{Content: g.text}
	ch <- ports.StreamToken{Done: true}
	close(ch)
	return ch, nil
}

// setupTestApp makes every command build an in-memory pipeline with fake backends.
func setupTestApp(t *testing.T) {
	t.Helper()
	original := buildApp
	buildApp = func(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app.App, error) {
		cfg.VectorStore.Type = config.StoreMemory
		cfg.Embedding.Dimensions = 32
		cfg.Chunking.Size = 10
		cfg.Chunking.Overlap = 2
		return app.Build(ctx, cfg, log,
			app.WithEmbedder(wordEmbedder{}),
			app.WithGenerator(cannedGenerator{text: "It is in Berlin."}),
		)
	}
	t.Cleanup(func() { buildApp = original })
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cfgFlag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfgFlag)
	assert.Equal(t, "c", cfgFlag.Shorthand)

	verboseFlag := rootCmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "false", verboseFlag.DefValue)
}

func TestVersionCmd_Executes(t *testing.T) {
	originalVersion := version
	version = "test-1.2.3"
	defer func() { version = originalVersion }()

	out, err := run(t, "", "version")

	assert.NoError(t, err)
	assert.Contains(t, out, "docqa version test-1.2.3")
}

func TestStatusCmd_Text(t *testing.T) {
	setupTestApp(t)

	out, err := run(t, "", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "Embedding:    ollama (words)")
	assert.Contains(t, out, "Vector store: memory")
	assert.Contains(t, out, "LLM:          canned (available)")
	assert.Contains(t, out, "Document:     none loaded")
}

func TestStatusCmd_JSON(t *testing.T) {
	setupTestApp(t)
	defer func() { statusJSON = false }()

	out, err := run(t, "", "status", "--json")
	require.NoError(t, err)

	var st entities.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Ready)
	assert.True(t, st.GeneratorAvailable)
	assert.Equal(t, "canned", st.GeneratorModel)
}

func TestStatusCmd_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [not, a, map"), 0o644))

	_, err := run(t, "", "status", "--config", path)
	configPath = ""

	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrConfiguration)
}

func TestChatCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := run(t, "", "chat")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestChatCmd_AnswersFromStdin(t *testing.T) {
	setupTestApp(t)

	doc := filepath.Join(t.TempDir(), "trip.txt")
	require.NoError(t, os.WriteFile(doc, []byte(
		"The team meets in Berlin on Monday. Hotels are booked near the station. "+
			"Dinner is on Tuesday evening at the old market."), 0o644))

	out, err := run(t, "\nWhere does the team meet?\nquit\nnever asked\n", "chat", doc)

	require.NoError(t, err)
	assert.Contains(t, out, "Successfully processed document")
	assert.Contains(t, out, "It is in Berlin.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "[chunk ")
	assert.Equal(t, 1, strings.Count(out, "It is in Berlin."), "quit stops reading")
}

func TestChatCmd_IngestFailure(t *testing.T) {
	setupTestApp(t)

	doc := filepath.Join(t.TempDir(), "deck.pptx")
	require.NoError(t, os.WriteFile(doc, []byte("x"), 0o644))

	_, err := run(t, "", "chat", doc)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error processing document")
}

func TestServeCmd_Flags(t *testing.T) {
	for _, name := range []string{"addr", "watch", "debounce"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "500ms", serveCmd.Flags().Lookup("debounce").DefValue)
}

func TestPrintAnswer_FailureWithoutStream(t *testing.T) {
	score := 0.75
	out := new(bytes.Buffer)

	printAnswer(out, entities.AnswerResult{
		Answer:  "No relevant information found in the document.",
		Sources: []entities.Source{{ChunkID: 2, TextPreview: "line one\nline two", RelevanceScore: &score}},
	}, "")

	assert.Contains(t, out.String(), "No relevant information found in the document.")
	assert.Contains(t, out.String(), "[chunk 2] (0.75) line one line two")
}

func TestPrintAnswer_PartialAnswerShowsInterruption(t *testing.T) {
	out := new(bytes.Buffer)
	streamed := "Paris is"

	out.WriteString(streamed)
	printAnswer(out, entities.AnswerResult{
		Success: true,
		Answer:  streamed + "\n\n[generation interrupted: stream decode error]",
		Outcome: entities.OutcomePartialAnswer,
	}, streamed)

	assert.Equal(t, 1, strings.Count(out.String(), "Paris is"), "streamed text is not repeated")
	assert.Contains(t, out.String(), "[generation interrupted: stream decode error]")
}

func TestPrintAnswer_StreamedAnswerEndsLine(t *testing.T) {
	out := new(bytes.Buffer)

	out.WriteString("Berlin.")
	printAnswer(out, entities.AnswerResult{
		Success: true,
		Answer:  "Berlin.",
		Outcome: entities.OutcomeAnswered,
	}, "Berlin.")

	assert.Equal(t, "Berlin.\n", out.String())
}
