package copilot

import (
	"regexp"
	"sort"
	"strings"
)

// Emoji is one entry of the custom emoji vocabulary.
type Emoji struct {
	// Mention is the platform-native form, e.g. <:roccomeem:1429492351952486502>.
	Mention string `yaml:"mention"`

	// Description tells the model when the emoji fits.
	Description string `yaml:"description"`
}

// DefaultEmojis returns the built-in vocabulary.
func DefaultEmojis() map[string]Emoji {
	return map[string]Emoji{
		"roccomeem": {
			Mention: "<:roccomeem:1429492351952486502>",
			Description: "This is you looking at the camera in a zoomed in pose. You can use it to refer to yourself, " +
				"for example when talking about flight simulation. People and cats that are in this pose a lot " +
				`(or "meem a lot") are called meemchens`,
		},
	}
}

// nativeEmojiPattern matches Discord custom emoji mentions, static or animated.
var nativeEmojiPattern = regexp.MustCompile(`<a?:(\w+):(\d+)>`)

// EmojiVocabulary maps :token: names to platform-native mentions. It is
// read-only after construction.
type EmojiVocabulary struct {
	names    []string
	entries  map[string]Emoji
	byID     map[string]string
	expander *strings.Replacer
}

// NewEmojiVocabulary builds a vocabulary. Entries without a mention are
// dropped. The token name does not have to match the name inside the
// mention; native mentions are folded back by emoji ID.
func NewEmojiVocabulary(emojis map[string]Emoji) *EmojiVocabulary {
	v := &EmojiVocabulary{
		entries: make(map[string]Emoji, len(emojis)),
		byID:    make(map[string]string, len(emojis)),
	}
	for name, e := range emojis {
		if name == "" || e.Mention == "" {
			continue
		}
		v.entries[name] = e
		v.names = append(v.names, name)
		if m := nativeEmojiPattern.FindStringSubmatch(e.Mention); m != nil {
			v.byID[m[2]] = name
		}
	}
	sort.Strings(v.names)

	pairs := make([]string, 0, 2*len(v.names))
	for _, name := range v.names {
		pairs = append(pairs, ":"+name+":", v.entries[name].Mention)
	}
	v.expander = strings.NewReplacer(pairs...)
	return v
}

// Describe renders one ":name: - description" line per emoji.
func (v *EmojiVocabulary) Describe() string {
	lines := make([]string, 0, len(v.names))
	for _, name := range v.names {
		lines = append(lines, ":"+name+": - "+v.entries[name].Description)
	}
	return strings.Join(lines, "\n")
}

// Restore first folds any native emoji mention down to its :token: form,
// then expands known tokens back to their mention. Unknown tokens are left
// as they are. Restore(Restore(s)) == Restore(s).
func (v *EmojiVocabulary) Restore(text string) string {
	text = nativeEmojiPattern.ReplaceAllStringFunc(text, func(mention string) string {
		m := nativeEmojiPattern.FindStringSubmatch(mention)
		if name, ok := v.byID[m[2]]; ok {
			return ":" + name + ":"
		}
		return ":" + m[1] + ":"
	})
	return v.expander.Replace(text)
}
