package signal

import (
	"strings"
	"unicode"
)

// elementLexicon lists the words that resonate with each element.
var elementLexicon = [NumElements][]string{
	Fire: {"stuck", "passion", "create", "destroy", "change", "transform",
		"energy", "motivation", "burn", "ignite"},
	Water: {"feel", "emotion", "intuition", "dream", "heal", "flow", "release",
		"cleanse", "tears", "grief", "love", "connect", "empathy", "sensitive"},
	Earth: {"ground", "stable", "practical", "manifest", "build", "grow", "root",
		"foundation", "body", "physical", "money", "home", "secure", "solid", "real"},
	Air: {"think", "thought", "idea", "communicate", "speak", "write", "clarity",
		"perspective", "freedom", "mental", "understand", "learn", "know",
		"breathe", "space"},
	Aether: {"unity", "oneness", "void", "emptiness", "integration", "paradox",
		"mystery", "quantum", "consciousness", "transcend", "beyond", "infinite",
		"eternal", "sacred", "divine", "cosmos", "universal", "everything", "nothing"},
}

// reflectiveWords raise the awareness index.
var reflectiveWords = []string{"aware", "notice", "realize", "realise", "recognize",
	"see", "observe", "conscious", "insight", "understand", "witness"}

// ownershipWords raise authenticity; hedgeWords lower it.
var (
	ownershipWords = []string{"i", "me", "my", "myself", "honest", "truth", "admit"}
	hedgeWords     = []string{"maybe", "perhaps", "whatever", "supposed", "guess",
		"kinda", "sorta", "should", "fine"}
)

// tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// countHits counts tokens matching any word. Words of four or more letters
// also match as a prefix so "transforming" counts for "transform".
func countHits(tokens, words []string) int {
	hits := 0
	for _, tok := range tokens {
		for _, w := range words {
			if tok == w || (len(w) >= 4 && strings.HasPrefix(tok, w)) {
				hits++
				break
			}
		}
	}
	return hits
}
