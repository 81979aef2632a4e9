package compression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// codeBase is the first rune of the Unicode private use area. Phrase n of
// the table is encoded as codeBase+n.
const codeBase = '\uE000'

// privateUseEnd is the last rune of the basic private use area.
const privateUseEnd = '\uF8FF'

// phrases are verbose English fragments common in prompts. Each also gets a
// capitalised variant.
//
//nolint:gochecknoglobals // fixed substitution table
var phrases = []string{
	"can you please explain",
	"could you please explain",
	"can you explain",
	"could you explain",
	"please explain",
	"explain to me",
	"i would like to know",
	"i want to know",
	"tell me about",
	"what is the difference between",
	"in order to",
	"as well as",
	"for example",
	"in addition to",
	"with respect to",
	"in the context of",
	"as soon as possible",
	"at the same time",
	"on the other hand",
	"in other words",
	"for the purpose of",
	"due to the fact that",
	"in spite of the fact that",
	"it is important to note that",
	"make sure that",
	"step by step",
	"the following",
	"information about",
	"a number of",
	"a lot of",
	"is able to",
	"are able to",
	"in terms of",
	"with regard to",
	"in relation to",
	"the reason why",
}

// DictionaryCodec replaces known phrases with single private-use runes.
// Encoding is exactly reversible for any input free of runes in the code
// range.
type DictionaryCodec struct {
	table   []string
	encoder *strings.Replacer
	decoder *strings.Replacer
}

// NewDictionaryCodec builds the codec from the built-in phrase table.
func NewDictionaryCodec() *DictionaryCodec {
	return newDictionaryCodec(phrases)
}

func newDictionaryCodec(base []string) *DictionaryCodec {
	table := make([]string, 0, len(base)*2)
	for _, phrase := range base {
		table = append(table, phrase, capitalize(phrase))
	}

	// Longer phrases first so the replacer prefers the longest match.
	order := make([]int, len(table))
	for n := range order {
		order[n] = n
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(table[order[a]]) > len(table[order[b]])
	})

	encodePairs := make([]string, 0, len(table)*2)
	decodePairs := make([]string, 0, len(table)*2)
	for _, n := range order {
		code := string(codeBase + rune(n))
		encodePairs = append(encodePairs, table[n], code)
		decodePairs = append(decodePairs, code, table[n])
	}

	return &DictionaryCodec{
		table:   table,
		encoder: strings.NewReplacer(encodePairs...),
		decoder: strings.NewReplacer(decodePairs...),
	}
}

// Name returns the codec identifier.
func (c *DictionaryCodec) Name() string {
	return "dictionary"
}

// Encode substitutes phrases. Text already holding a rune from the code
// range is refused.
func (c *DictionaryCodec) Encode(_ context.Context, text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", errors.New("input is not valid UTF-8")
	}

	for _, r := range text {
		if r >= codeBase && r <= privateUseEnd {
			return "", fmt.Errorf("input contains reserved rune %U", r)
		}
	}

	return c.encoder.Replace(text), nil
}

// Decode expands codes back into phrases. Unknown codes are refused.
func (c *DictionaryCodec) Decode(_ context.Context, text string) (string, error) {
	limit := codeBase + rune(len(c.table))
	for _, r := range text {
		if r >= limit && r <= privateUseEnd {
			return "", fmt.Errorf("unknown dictionary code %U", r)
		}
	}

	return c.decoder.Replace(text), nil
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
