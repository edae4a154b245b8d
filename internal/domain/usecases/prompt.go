package usecases

import (
	"strings"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

// BuildPrompt assembles the generation prompt: role, retrieved context in rank
// order, the literal question and the answering rules.
func BuildPrompt(question string, results []entities.RetrievalResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Text
	}

	var sb strings.Builder
	sb.WriteString("You are an AI assistant that answers questions about a document. ")
	sb.WriteString("Use only the provided context to answer the question.\n\n")
	sb.WriteString("Context Information:\n")
	sb.WriteString(strings.Join(parts, "\n\n"))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n\nInstructions:\n")
	sb.WriteString("- Answer based only on the provided context\n")
	sb.WriteString("- If the context doesn't contain enough information, say so\n")
	sb.WriteString("- Be specific and cite relevant details from the context\n")
	sb.WriteString("- Keep responses clear and concise\n\n")
	sb.WriteString("Answer:")
	return sb.String()
}
