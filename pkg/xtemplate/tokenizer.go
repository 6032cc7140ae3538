package xtemplate

import (
	"strings"

	"github.com/AlexanderGrooff/xtemplate-go/internal/invariant"
)

// segmentType defines the type of a scanned template segment.
type segmentType int

const (
	// literalText is plain text copied to the output.
	literalText segmentType = iota
	// expressionTag is the content of {{ ... }} or {{{ ... }}}.
	expressionTag
)

// segment is a piece of the scanned template. pos is the byte offset of
// content inside the template source.
type segment struct {
	segmentType segmentType
	raw         bool
	content     string
	pos         int
}

// tokenize splits a template into literal text and expression segments.
//
//   - "{{{ e }}}" is a raw segment and "{{ e }}" an escaped one.
//   - The closing delimiter is the first "}}" (or "}}}") that is neither inside
//     a quoted string nor closing a '{' opened inside the expression, so
//     "{{1}}}" is the expression "1" followed by the text "}".
//   - Backslashes right before "{{" pair up: "\\" is one literal backslash,
//     and a leftover one makes the "{{" literal, so "\{{" prints "{{" and
//     "\\{{x}}" prints a backslash followed by x.
//   - "{{! ... }}" is a comment.
//
// An expression or string that never closes is a syntax error.
func tokenize(name, src string) ([]segment, error) {
	var segments []segment
	var text strings.Builder
	textPos := 0

	flush := func() {
		if text.Len() > 0 {
			segments = append(segments, segment{segmentType: literalText, content: text.String(), pos: textPos})
			text.Reset()
		}
	}

	i := 0
	for i < len(src) {
		rel := strings.Index(src[i:], "{{")
		if rel == -1 {
			if text.Len() == 0 {
				textPos = i
			}
			text.WriteString(src[i:])
			break
		}
		start := i + rel
		if text.Len() == 0 {
			textPos = i
		}

		slashes := 0
		for start-slashes > i && src[start-slashes-1] == '\\' {
			slashes++
		}
		text.WriteString(src[i : start-slashes])
		text.WriteString(strings.Repeat("\\", slashes/2))
		if slashes%2 == 1 {
			text.WriteString("{{")
			i = start + 2
			continue
		}
		flush()

		if strings.HasPrefix(src[start:], "{{!") {
			end := strings.Index(src[start+3:], "}}")
			if end == -1 {
				return nil, newSyntaxError(name, src, start, "unterminated comment, missing '}}'")
			}
			i = start + 3 + end + 2
			continue
		}

		raw := strings.HasPrefix(src[start:], "{{{")
		openLen, closer := 2, "}}"
		if raw {
			openLen, closer = 3, "}}}"
		}
		contentStart := start + openLen

		end, err := scanExpressionEnd(name, src, start, contentStart, closer)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment{
			segmentType: expressionTag,
			raw:         raw,
			content:     src[contentStart:end],
			pos:         contentStart,
		})

		next := end + len(closer)
		invariant.Invariant(next > i, "tokenizer must advance (at %d)", i)
		i = next
	}
	flush()
	return segments, nil
}

// scanExpressionEnd returns the offset of the closing delimiter for the
// expression whose content starts at from.
func scanExpressionEnd(name, src string, open, from int, closer string) (int, error) {
	depth := 0
	j := from
	for j < len(src) {
		switch src[j] {
		case '\'', '"':
			endQuote, ok := skipQuoted(src, j)
			if !ok {
				return 0, newSyntaxError(name, src, j, "unterminated string literal")
			}
			j = endQuote + 1
			continue
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			} else if strings.HasPrefix(src[j:], closer) {
				return j, nil
			}
		}
		j++
	}
	return 0, newSyntaxError(name, src, open, "unterminated expression, missing '%s'", closer)
}

// skipQuoted returns the offset of the quote that closes the string literal
// opening at start, honouring backslash escapes.
func skipQuoted(src string, start int) (int, bool) {
	quote := src[start]
	for k := start + 1; k < len(src); k++ {
		switch src[k] {
		case '\\':
			k++
		case quote:
			return k, true
		}
	}
	return 0, false
}
