package xtemplate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	ErrSyntax         = errors.New("template syntax error")
	ErrUnknownCommand = errors.New("unknown command")
)

// SyntaxError reports a malformed template: unbalanced delimiters or block
// tags, unterminated strings or expressions, and unexpected tokens.
type SyntaxError struct {
	Template string // template name, may be empty
	Offset   int    // byte offset into the template source
	Line     int    // 1-based
	Column   int    // 1-based, in bytes
	Msg      string
	Context  string // the source line the error points into
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	b.WriteString("syntax error")
	if e.Template != "" {
		fmt.Fprintf(&b, " in %q", e.Template)
	}
	fmt.Fprintf(&b, " at line %d, column %d: %s", e.Line, e.Column, e.Msg)
	if e.Context != "" {
		fmt.Fprintf(&b, "\n  %s\n  %s^", e.Context, strings.Repeat(" ", max(e.Column-1, 0)))
	}
	return b.String()
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// newSyntaxError locates offset inside src and fills in line, column and the
// offending source line.
func newSyntaxError(name, src string, offset int, format string, args ...interface{}) *SyntaxError {
	if offset > len(src) {
		offset = len(src)
	}
	if offset < 0 {
		offset = 0
	}
	line := 1 + strings.Count(src[:offset], "\n")
	lineStart := strings.LastIndexByte(src[:offset], '\n') + 1
	lineEnd := strings.IndexByte(src[offset:], '\n')
	if lineEnd == -1 {
		lineEnd = len(src)
	} else {
		lineEnd += offset
	}
	return &SyntaxError{
		Template: name,
		Offset:   offset,
		Line:     line,
		Column:   offset - lineStart + 1,
		Msg:      fmt.Sprintf(format, args...),
		Context:  src[lineStart:lineEnd],
	}
}

// UnknownCommandError is returned by Render when a call expression or block
// names a command that is not in the template's registry.
type UnknownCommandError struct {
	Name       string
	Suggestion string // closest registered name, if any
}

func (e *UnknownCommandError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown command '%s' (did you mean '%s'?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown command '%s'", e.Name)
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }

// CommandError wraps an error returned by a command function.
type CommandError struct {
	Name string
	Err  error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("error calling command '%s': %v", e.Name, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// closestCommand returns the registered name that best fuzzy-matches target.
func closestCommand(target string, commands Commands) string {
	if len(commands) == 0 {
		return ""
	}
	candidates := make([]string, 0, len(commands))
	for name := range commands {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		return ""
	}
	sort.Stable(ranks)
	return ranks[0].Target
}
