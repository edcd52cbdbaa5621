package intent

import "strings"

// Intent is the resolved category of a user turn. It gates which
// retrieval paths run, or whether retrieval runs at all.
type Intent string

const (
	// IntentMultimodal means the turn carries an image or audio upload.
	IntentMultimodal Intent = "multimodal"
	// IntentChitchat covers greetings and small talk. No retrieval.
	IntentChitchat Intent = "chitchat"
	// IntentMeta covers questions about the conversation itself.
	// Answered from session history, no retrieval.
	IntentMeta Intent = "meta"
	// IntentShortQuery is a terse lookup of four words or fewer.
	IntentShortQuery Intent = "short_query"
	// IntentKnowledge is everything else and triggers full retrieval.
	IntentKnowledge Intent = "knowledge"
)

var chitchatPatterns = []string{
	"hi", "hello", "hey", "thanks", "thank you",
	"bye", "goodbye", "ok", "okay",
}

var metaPatterns = []string{
	"what have we discussed",
	"what did we talk about",
	"tell me about our conversation",
	"summarize our chat",
	"recap of our discussion",
	"what have you told me",
	"remind me what we discussed",
	"our conversation",
}

// Input is the slice of a normalized turn the classifier looks at.
type Input struct {
	Text     string
	HasImage bool
	HasAudio bool
}

// Classify resolves the intent of a normalized turn. Upload presence
// wins over any text pattern; chitchat is checked before meta so a
// "thanks, what did we talk about" stays chitchat, matching the rule
// order the rest of the pipeline is tuned against.
func Classify(in Input) Intent {
	if in.HasImage || in.HasAudio {
		return IntentMultimodal
	}

	text := strings.ToLower(strings.TrimSpace(in.Text))

	for _, pattern := range chitchatPatterns {
		if strings.Contains(text, pattern) {
			return IntentChitchat
		}
	}

	for _, pattern := range metaPatterns {
		if strings.Contains(text, pattern) {
			return IntentMeta
		}
	}

	if len(strings.Fields(text)) <= 4 {
		return IntentShortQuery
	}

	return IntentKnowledge
}

// NeedsRetrieval reports whether the intent triggers the retrieval router.
func (i Intent) NeedsRetrieval() bool {
	switch i {
	case IntentChitchat, IntentMeta:
		return false
	default:
		return true
	}
}
