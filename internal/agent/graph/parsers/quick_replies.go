// Package parsers extracts private wire conventions from model output.
package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	logx "github.com/drew-quote-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 128 * 1024 // 128KB
	maxOptions    = 6
	maxOptionLen  = 80
)

const directiveName = "QUICK_REPLIES"

var (
	// a closed directive, e.g. [QUICK_REPLIES: "Yes", "No"]
	directiveRe = regexp.MustCompile(`(?i)\[\s*` + directiveName + `\s*:?([^\]]*)\]`)
	// an opened but never closed directive runs to the end of the text
	danglingRe = regexp.MustCompile(`(?is)\[\s*` + directiveName + `\b.*$`)
	optionRe   = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|“([^”]*)”`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// QuickReplies is the parsed form of a model message.
type QuickReplies struct {
	// Text is the message with every directive removed.
	Text    string
	Options []string
	// Found reports that at least one directive was present.
	Found bool
	// Malformed reports a directive that yielded no usable options, or text that had to be cut.
	Malformed bool
}

// ParseQuickReplies strips every quick-reply directive from content and returns the
// options they carried, deduplicated case-insensitively and capped.
func ParseQuickReplies(content string) (res QuickReplies) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "quick_reply_parser").Msgf("panic recovered: %v", r)
			res = QuickReplies{Text: cutDirective(content), Found: true, Malformed: true}
		}
	}()

	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
		res.Malformed = true
	}
	if len(content) > maxContentLen {
		logx.Warn().Int("length", len(content)).Msg("model output truncated before quick reply parsing")
		cut := maxContentLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
		res.Malformed = true
	}

	seen := map[string]bool{}
	for _, m := range directiveRe.FindAllStringSubmatch(content, -1) {
		res.Found = true
		for _, opt := range parseOptions(m[1]) {
			key := strings.ToLower(opt)
			if seen[key] || len(res.Options) == maxOptions {
				continue
			}
			seen[key] = true
			res.Options = append(res.Options, opt)
		}
	}
	text := directiveRe.ReplaceAllString(content, "")

	if loc := danglingRe.FindStringIndex(text); loc != nil {
		res.Found = true
		res.Malformed = true
		text = text[:loc[0]]
	}
	if res.Found && len(res.Options) == 0 {
		res.Malformed = true
	}

	res.Text = tidy(text)
	return res
}

func parseOptions(body string) []string {
	var out []string
	for _, m := range optionRe.FindAllStringSubmatch(body, -1) {
		raw := m[1]
		if m[2] != "" {
			raw = m[2]
		}
		opt := raw
		if unq, err := strconv.Unquote(`"` + raw + `"`); err == nil {
			opt = unq
		}
		opt = strings.TrimSpace(opt)
		if opt == "" || utf8.RuneCountInString(opt) > maxOptionLen {
			continue
		}
		out = append(out, opt)
	}
	return out
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func cutDirective(s string) string {
	if i := strings.Index(strings.ToUpper(s), "["+directiveName); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
