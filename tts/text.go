package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"amd-helper/models"

	"github.com/neurosnap/sentences/english"
)

// google translate rejects longer requests
const maxChunkRunes = 200

var (
	htmlTagRE        = regexp.MustCompile(`<[^>]*>`)
	tableSeparatorRE = regexp.MustCompile(`^\s*\|\s*[-=\s]+\|\s*$`)
	cjkStopRE        = regexp.MustCompile(`[^。！？；]+[。！？；]*`)
)

// cleanText removes markup that engines would read out loud
func cleanText(text string) string {
	text = strings.NewReplacer(
		"*", "",
		"#", "",
		"_", "",
		"~", "",
		"`", "",
		"[", "",
		"]", "",
	).Replace(text)
	text = htmlTagRE.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if tableSeparatorRE.MatchString(strings.TrimSpace(line)) {
			continue
		}
		filtered = append(filtered, strings.ReplaceAll(line, "|", ""))
	}
	return strings.TrimSpace(strings.Join(filtered, "\n"))
}

// splitSentences splits on sentence boundaries; CJK text uses full-width stops.
func splitSentences(text string, lang models.Lang) []string {
	var out []string
	if lang == models.LangZH {
		for _, s := range cjkStopRE.FindAllString(text, -1) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return []string{text}
	}
	for _, s := range tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// chunkText packs sentences into chunks of at most limit runes,
// hard-splitting sentences that are longer than the limit on word boundaries.
func chunkText(text string, lang models.Lang, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece string) {
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(piece) > limit {
			flush()
		}
		if cur.Len() > 0 && lang != models.LangZH {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}
	for _, sentence := range splitSentences(text, lang) {
		if utf8.RuneCountInString(sentence) <= limit {
			add(sentence)
			continue
		}
		flush()
		for _, part := range hardSplit(sentence, limit) {
			add(part)
		}
	}
	flush()
	return chunks
}

func hardSplit(s string, limit int) []string {
	var parts []string
	runes := []rune(s)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i] == ' ' || runes[i] == ',' || runes[i] == '，' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
