package response

import (
	"context"
	"fmt"
	"strings"

	"multimodal-chat-be/pkg/llm"
	"multimodal-chat-be/pkg/rag/session"
)

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 512

	// historyTail is how many trailing history messages reach the prompt.
	historyTail = 3
)

// Generator turns a question plus assembled context into an answer via the
// configured completion provider.
type Generator struct {
	provider llm.LLMProvider
}

func NewGenerator(provider llm.LLMProvider) *Generator {
	return &Generator{provider: provider}
}

func historyText(history []session.Message) string {
	if len(history) > historyTail {
		history = history[len(history)-historyTail:]
	}
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// Knowledge answers a grounded question from the assembled context. When
// lowConfidence is set, the prompt instructs the model to add a one-line
// disclaimer that the answer may be incomplete.
func (g *Generator) Knowledge(ctx context.Context, question, contextBlock string, history []session.Message, lowConfidence bool) (string, error) {
	disclaimer := ""
	if lowConfidence {
		disclaimer = "\n\nNOTE: Retrieved context appears limited; include a brief one-line disclaimer that the answer may be incomplete."
	}

	prompt := fmt.Sprintf(`You are a helpful AI assistant answering questions based on provided documents.

CURRENT QUESTION (THIS IS WHAT YOU MUST ANSWER):
%s

DOCUMENT CONTEXT RETRIEVED FOR THIS QUESTION:
%s

CONVERSATION HISTORY (only for reference, NOT to change the topic):
%s

CRITICAL INSTRUCTIONS:
1. **FOCUS ON THE CURRENT QUESTION** - Answer EXACTLY what is being asked right now
2. **Use only the current context** - Reference documents retrieved for THIS question, not previous conversations
3. **Don't redirect the topic** - Even if history mentions other topics, stay focused on the current question
4. **If context is provided, use it** - If documents are retrieved, base your answer on them
5. **If no context, use your knowledge** - But stay focused on the specific question
6. **Be direct and comprehensive** - Provide thorough answers with examples when relevant
7. **Availability checks** - When the user asks if an item (image/document/audio) is present, inspect the retrieved context:
    - If you see any IDs/URLs in context, answer "Yes, found" and list them
    - If none are present, answer "No, not found" and say what would be needed

ANSWER FORMAT:
- Start with a clear yes/no if the question is about presence/availability
- If yes, list the IDs/URLs you see in the retrieved context (prefer exact IDs from context)
- If no, state that nothing was found in the retrieved context

WHAT NOT TO DO:
- Do NOT assume the user is asking the same thing as before
- Do NOT use old conversation topics to reinterpret the current question
- Do NOT provide information about previous questions unless the user explicitly refers to them
- Do NOT hallucinate or invent document sources

Answer the current question based on the provided context:%s`,
		question,
		orDefault(contextBlock, "No documents found for this question"),
		orDefault(historyText(history), "No previous messages"),
		disclaimer,
	)

	return g.generate(ctx, prompt)
}

// Chitchat answers greetings and small talk without any grounding context.
func (g *Generator) Chitchat(ctx context.Context, question string, history []session.Message) (string, error) {
	prompt := fmt.Sprintf(`You are a friendly and helpful AI assistant.

USER MESSAGE:
%s

CONVERSATION HISTORY:
%s

INSTRUCTIONS:
- Respond naturally and conversationally
- For greetings (hi, hello, hey), respond warmly
- For thanks, acknowledge politely
- Keep responses brief and friendly
- Don't mention documents or retrieval

Respond to the user:`,
		question,
		orDefault(historyText(history), "No previous messages"),
	)

	return g.generate(ctx, prompt)
}

// Meta summarizes the session's own conversation history.
func (g *Generator) Meta(ctx context.Context, question string, history []session.Message) (string, error) {
	prompt := fmt.Sprintf(`You are a helpful AI assistant.

CONVERSATION HISTORY (from this chat session):
%s

USER IS ASKING YOU TO:
%s

INSTRUCTIONS:
- Summarize what we have discussed in this conversation
- List the main topics or questions that were asked
- Be concise and organized
- Use bullet points if helpful
- Don't make up topics we didn't discuss

Provide a clear summary of our conversation:`,
		orDefault(historyText(history), "No previous messages in this session"),
		question,
	)

	return g.generate(ctx, prompt)
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	answer, err := g.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You are a helpful AI assistant."},
		{Role: "user", Content: prompt},
	}, llm.WithTemperature(defaultTemperature), llm.WithMaxTokens(defaultMaxTokens))
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return answer, nil
}
