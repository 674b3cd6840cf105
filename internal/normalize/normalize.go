// Package normalize implements the text normalizer (C1): a pure,
// deterministic, restartable function from free text to an ordered
// token sequence. Nothing in this package touches the network, the
// store, or a clock (spec §9 "Ambient IO in pure functions").
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// separators is the class split on in step 3. Alphanumerics, '+', '$',
// '£', '€' are deliberately excluded so tokens like "c++" and currency
// glyphs survive.
const separators = " \t\n\r/\\-_()[]{},;.:!?'‘’\"“”|"

var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

func isSeparator(r rune) bool {
	return strings.ContainsRune(separators, r)
}

// Tokens runs the full C1 pipeline: lowercase, diacritic strip,
// separator split, empty-token drop, then token augmentation.
func Tokens(text string) []string {
	lowered := strings.ToLower(text)
	stripped, _, err := transform.String(diacriticStripper, lowered)
	if err != nil {
		// transform.String only fails on malformed input it cannot
		// decode; falling back to the lowered text keeps the function
		// total rather than introducing an error return that every
		// caller up the chain would need to plumb through.
		stripped = lowered
	}

	raw := strings.FieldsFunc(stripped, isSeparator)

	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}

	return augment(tokens)
}

// augment implements step 5: it never removes or reorders the
// original tokens, only inserts additional ones immediately after the
// token (or token pair) that triggered them.
func augment(tokens []string) []string {
	out := make([]string, 0, len(tokens)+4)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		out = append(out, tok)

		switch {
		case strings.Contains(tok, "$"):
			out = append(out, "usd")
		case strings.Contains(tok, "£"):
			out = append(out, "gbp")
		case strings.Contains(tok, "€"):
			out = append(out, "eur")
		}

		switch tok {
		case "eeuu":
			out = append(out, "us", "usa")
		case "latinoamerica":
			out = append(out, "latam")
		}

		if i+1 < len(tokens) {
			switch {
			case tok == "u" && tokens[i+1] == "s":
				out = append(out, tokens[i+1])
				out = append(out, "us", "usa")
				i++
			case tok == "u" && tokens[i+1] == "k":
				out = append(out, tokens[i+1])
				out = append(out, "uk")
				i++
			}
		}
	}

	return out
}
