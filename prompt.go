package creditgate

import (
	"fmt"
	"strings"
)

const (
	passagesHeader = "Use the following passages to answer the question:"
	questionPrefix = "Question: "
	answerCue      = "Answer:"
)

// PromptAssembler builds the single grounded prompt sent for a RAG query.
type PromptAssembler struct {
	// Budget is the maximum estimated token count of the assembled prompt.
	// Zero means DefaultPromptBudget.
	Budget int64
}

// Assemble joins instructions, numbered passages and the question. Passages
// are taken in rank order; lower-ranked passages are dropped until the
// prompt fits the budget. The top passage is always kept. It returns the
// prompt and the passages actually placed in it.
func (a PromptAssembler) Assemble(instructions string, chunks []Chunk, question string) (string, []Chunk) {
	budget := a.Budget
	if budget <= 0 {
		budget = DefaultPromptBudget
	}

	n := len(chunks)
	prompt := render(instructions, chunks, question)
	for n > 1 && EstimateTextTokens(prompt) > budget {
		n--
		prompt = render(instructions, chunks[:n], question)
	}
	return prompt, chunks[:n]
}

func render(instructions string, chunks []Chunk, question string) string {
	var b strings.Builder
	if instructions != "" {
		b.WriteString(instructions)
		b.WriteString("\n\n")
	}
	b.WriteString(passagesHeader)
	b.WriteString("\n\n")
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Passage %d]\n%s", i+1, c.Text)
	}
	b.WriteString("\n\n")
	b.WriteString(questionPrefix)
	b.WriteString(question)
	b.WriteString("\n\n")
	b.WriteString(answerCue)
	return b.String()
}

// chatMessages prepends instructions as a system message.
func chatMessages(instructions string, messages []Message) []Message {
	if instructions == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: "system", Content: instructions})
	return append(out, messages...)
}
