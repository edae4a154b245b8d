package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/usecases"
)

var chatTopK int

var chatCmd = &cobra.Command{
	Use:   "chat [file]",
	Short: "Load a document and ask questions about it",
	Long: `Ingests the given document, then reads questions from standard input,
one per line, and streams each answer followed by its sources.
Type "exit" or "quit" to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVarP(&chatTopK, "top-k", "k", 0, "chunks retrieved per question (0 uses the configured value)")
	rootCmd.AddCommand(chatCmd)
}

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	warnColor   = color.New(color.FgYellow)
	sourceColor = color.New(color.Faint)
)

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	res := a.IngestFile(ctx, args[0])
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintf(out, "%s (%d words)\n", res.Message, res.TotalWordCount)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		promptColor.Fprint(out, "\nQuestion: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		var streamed strings.Builder
		ans := a.Orchestrator.Answer(ctx, question,
			usecases.WithK(chatTopK),
			usecases.WithFragmentHandler(func(fragment string) {
				streamed.WriteString(fragment)
				fmt.Fprint(out, fragment)
			}),
		)
		printAnswer(out, ans, streamed.String())
	}
}

// printAnswer finishes an answer whose fragments (streamed) are already on out.
// Whatever the result adds beyond them, such as an interruption marker or a
// failure message, is printed as a warning.
func printAnswer(out io.Writer, ans entities.AnswerResult, streamed string) {
	switch {
	case streamed == "" && ans.Success && ans.Outcome != entities.OutcomePartialAnswer:
		fmt.Fprintln(out, ans.Answer)
	case streamed == "":
		warnColor.Fprintln(out, ans.Answer)
	case !ans.Success:
		fmt.Fprintln(out)
		warnColor.Fprintln(out, ans.Answer)
	default:
		var rest string
		switch {
		case strings.HasPrefix(ans.Answer, streamed):
			rest = ans.Answer[len(streamed):]
		case ans.Outcome == entities.OutcomePartialAnswer:
			rest = "\n" + ans.Answer
		}
		if strings.TrimSpace(rest) == "" {
			fmt.Fprintln(out)
		} else {
			warnColor.Fprintln(out, rest)
		}
	}

	if len(ans.Sources) == 0 {
		return
	}
	fmt.Fprintln(out, "\nSources:")
	for _, src := range ans.Sources {
		if src.RelevanceScore != nil {
			fmt.Fprintf(out, "  [chunk %d] (%.2f) ", src.ChunkID, *src.RelevanceScore)
		} else {
			fmt.Fprintf(out, "  [chunk %d] ", src.ChunkID)
		}
		sourceColor.Fprintln(out, strings.ReplaceAll(src.TextPreview, "\n", " "))
	}
}
