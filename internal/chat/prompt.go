package chat

import (
	"strings"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// SystemInstruction opens every chat request.
const SystemInstruction = "You are a helpful assistant. Answer the user's question clearly and concisely. " +
	"When context passages are provided, ground your answer in them and mention the file they came from."

// FormatContext renders search results as "[filename]\ncontent" blocks
// separated by blank lines.
func FormatContext(results []models.SearchResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, "["+r.Metadata.Filename+"]\n"+r.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// BuildRequest assembles the messages sent to the chat router: the system
// instruction, the prior history, an optional context message, then the
// current user message.
func BuildRequest(history []models.ChatMessage, current models.ChatMessage, results []models.SearchResult) []models.ChatMessage {
	msgs := make([]models.ChatMessage, 0, len(history)+3)
	msgs = append(msgs, models.ChatMessage{Role: models.RoleSystem, Content: SystemInstruction})
	msgs = append(msgs, history...)
	if len(results) > 0 {
		msgs = append(msgs, models.ChatMessage{
			Role:    models.RoleSystem,
			Content: "Use the following context to answer the question:\n\n" + FormatContext(results),
		})
	}
	return append(msgs, current)
}

// Citations groups results by unique filename in first-seen order.
// Results without a filename are not cited.
func Citations(results []models.SearchResult) []models.Citation {
	var out []models.Citation
	index := make(map[string]int)
	for _, r := range results {
		name := r.Metadata.Filename
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, models.Citation{Filename: name})
		}
		out[i].Snippets = append(out[i].Snippets, r.Content)
	}
	return out
}
