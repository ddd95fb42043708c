package scoring

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// tagToken matches one half of an inline annotation: <red>, <em class="x"> or </red>.
	tagToken     = regexp.MustCompile(`<(/?)([A-Za-z][\w-]*)([^<>]*)>`)
	nonWordChars = regexp.MustCompile(`[^\w\s]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// StripMarkup removes matching inline tag pairs, keeping the enclosed text.
// Each closing tag pairs with the nearest unpaired opening tag of the same
// name before it, so nested pairs are resolved innermost first. Unpaired
// tags are left in place; the punctuation pass of Normalize reduces them to
// plain words.
func StripMarkup(text string) string {
	tags := tagToken.FindAllStringSubmatchIndex(text, -1)
	if len(tags) == 0 {
		return text
	}

	paired := make([]bool, len(tags))
	open := make(map[string][]int)
	for i, loc := range tags {
		name := text[loc[4]:loc[5]]
		if loc[2] == loc[3] {
			open[name] = append(open[name], i)
			continue
		}
		// Closing tags carry nothing after the name.
		if loc[6] != loc[7] {
			continue
		}
		stack := open[name]
		if len(stack) == 0 {
			continue
		}
		paired[stack[len(stack)-1]] = true
		paired[i] = true
		open[name] = stack[:len(stack)-1]
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i, loc := range tags {
		if !paired[i] {
			continue
		}
		b.WriteString(text[last:loc[0]])
		last = loc[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// Normalize lowercases text, drops everything that is not a word character
// or whitespace, and collapses whitespace runs. Markup is stripped first when
// stripMarkup is set (reference texts only).
func Normalize(text string, stripMarkup bool) string {
	if stripMarkup {
		text = StripMarkup(text)
	}
	// Casers carry state, so one per call.
	text = cases.Lower(language.Und).String(text)
	text = nonWordChars.ReplaceAllString(text, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Tokenize splits normalized text into words, dropping empty tokens.
func Tokenize(normalized string) []string {
	return strings.Fields(normalized)
}
