package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations never end a sentence even when followed by a capital letter.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "hon": true, "st": true,
	"no": true, "vs": true, "etc": true, "e.g": true, "i.e": true, "govt": true, "dept": true,
	"rs": true, "ksh": true, "approx": true, "jan": true, "feb": true, "aug": true, "sept": true,
	"oct": true, "nov": true, "dec": true,
}

// Normalize trims text and collapses runs of whitespace to one space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Sentences splits text into normalized sentences. Line breaks that separate paragraphs also end
// sentences; decimal points and common abbreviations do not.
func Sentences(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		para = Normalize(para)
		if para == "" {
			continue
		}
		out = append(out, splitParagraph(para)...)
	}
	return out
}

func splitParagraph(para string) []string {
	var out []string
	start := 0
	for i, r := range para {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next < len(para) && para[next] != ' ' {
			continue
		}
		if r == '.' && isAbbreviation(para[start:i]) {
			continue
		}
		if next < len(para) {
			following, _ := utf8.DecodeRuneInString(para[next+1:])
			if !unicode.IsUpper(following) && !unicode.IsDigit(following) && following != '"' {
				continue
			}
		}
		if s := strings.TrimSpace(para[start:next]); s != "" {
			out = append(out, s)
		}
		start = next
	}
	if s := strings.TrimSpace(para[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isAbbreviation(before string) bool {
	idx := strings.LastIndexByte(before, ' ')
	word := strings.ToLower(before[idx+1:])
	if len(word) == 1 && unicode.IsLetter(rune(word[0])) {
		return true
	}
	return abbreviations[word]
}
