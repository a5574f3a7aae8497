package copilot

import "regexp"

// ReplySource tells where the reply text came from.
type ReplySource int

const (
	// ReplyText is the model's own free text.
	ReplyText ReplySource = iota

	// ReplyAction is the message of the action the model invoked.
	ReplyAction
)

// String returns a label for logs.
func (s ReplySource) String() string {
	if s == ReplyAction {
		return "action"
	}
	return "text"
}

// Reply is the single reply a turn reduces to before post-processing.
type Reply struct {
	Source ReplySource
	Text   string
}

// dogPattern matches "I'm a dog" style claims, with a straight or curly
// apostrophe or none, "d0g" spellings, and an optional trailing punctuation
// mark captured in group 1.
var dogPattern = regexp.MustCompile(`(?i)\b(?:i['’]?m|i am)\s+a\s+d[o0]g\w*\b([.!?])?`)

// Corrective phrases. The free-text and action paths historically used
// different wording; both are kept as-is.
const (
	dogCorrectionText   = "I'M NOT A FUCKING DAWG"
	dogCorrectionAction = "I'M NOT A DAWG"
)

// PostProcessor rewrites the selected reply into the user-visible string.
type PostProcessor struct {
	vocabulary *EmojiVocabulary
}

// NewPostProcessor creates a post-processor for an emoji vocabulary.
func NewPostProcessor(vocabulary *EmojiVocabulary) *PostProcessor {
	if vocabulary == nil {
		vocabulary = NewEmojiVocabulary(nil)
	}
	return &PostProcessor{vocabulary: vocabulary}
}

// Process restores emoji tokens and applies the dog correction.
func (p *PostProcessor) Process(r Reply) string {
	text := p.vocabulary.Restore(r.Text)

	phrase := dogCorrectionText
	if r.Source == ReplyAction {
		phrase = dogCorrectionAction
	}
	return dogPattern.ReplaceAllString(text, phrase+"${1}")
}
