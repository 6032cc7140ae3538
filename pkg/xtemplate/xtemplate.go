// Package xtemplate compiles and renders logic-light text templates.
//
// A template mixes literal text with {{ expression }} (HTML-escaped) and
// {{{ expression }}} (raw) markers and the block constructs
// {{#if(test)}}…{{else}}…{{/if}}, {{#each(collection)}}…{{/each}} and
// {{#with(value)}}…{{/with}}:
//
//	t, err := xtemplate.Compile(`{{#each(items)}}{{xindex+1}}. {{name}}{{/each}}`, nil)
//	if err != nil {
//		return err
//	}
//	out, err := t.Render(map[string]interface{}{"items": items})
//
// Expressions support literals, `../`-relative identifiers, arithmetic,
// comparisons, short-circuit `&&`/`||`, array and object literals and calls
// to registered commands. Compiled templates are immutable and safe for
// concurrent Render calls.
package xtemplate

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options configure a single compilation.
type Options struct {
	// Name identifies the template in errors and logs.
	Name string
	// Commands are added to, and override, the engine's commands for this
	// template only.
	Commands Commands
}

// Template is a compiled template. It never changes after Compile.
type Template struct {
	name     string
	source   string
	root     []*Node
	commands Commands
}

// Name returns the name given at compile time.
func (t *Template) Name() string { return t.name }

// Source returns the template text.
func (t *Template) Source() string { return t.source }

// Nodes returns the root of the compiled tree. It must not be modified.
func (t *Template) Nodes() []*Node { return t.root }

// Render renders the template against data. Missing values render as empty
// strings; calling an unregistered command is an error. On error no partial
// output is returned.
func (t *Template) Render(data interface{}) (string, error) {
	r := newRenderer(t.commands)
	out, err := r.renderToString(t.root, newRootScope(data))
	if err != nil {
		if t.name != "" {
			return "", fmt.Errorf("template rendering error in %q: %w", t.name, err)
		}
		return "", fmt.Errorf("template rendering error: %w", err)
	}
	return out, nil
}

// Engine holds the engine-wide command registry, a compile cache and a
// logger. Its methods are safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	commands  Commands
	cache     *TemplateCache
	logger    *slog.Logger
	cacheSize int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithCommands adds commands to the engine-wide registry.
func WithCommands(commands Commands) EngineOption {
	return func(e *Engine) { e.commands = e.commands.Merge(commands) }
}

// WithCacheSize bounds the compile cache; zero disables caching.
func WithCacheSize(n int) EngineOption {
	return func(e *Engine) { e.cacheSize = n }
}

// DefaultCacheSize is the compile cache bound of NewEngine.
const DefaultCacheSize = 512

// NewEngine creates an engine with the builtin commands.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		commands:  Builtins(),
		logger:    defaultLogger(),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = NewTemplateCache(e.cacheSize)
	return e
}

// defaultLogger discards everything unless XTEMPLATE_DEBUG is set, in which
// case debug records go to stderr without time and level noise.
func defaultLogger() *slog.Logger {
	if os.Getenv("XTEMPLATE_DEBUG") == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// RegisterCommand adds or replaces an engine-wide command. Templates
// compiled earlier keep the registry they were compiled with.
func (e *Engine) RegisterCommand(name string, cmd Command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = e.commands.Merge(Commands{name: cmd})
	e.cache.Purge()
	e.logger.Debug("command registered", "name", name)
}

// Commands returns a copy of the engine-wide registry.
func (e *Engine) Commands() Commands {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.commands.Clone()
}

// Compile parses source into a Template. Templates compiled without
// per-template commands are cached by name and source.
func (e *Engine) Compile(source string, opts *Options) (*Template, error) {
	if opts == nil {
		opts = &Options{}
	}
	cacheable := len(opts.Commands) == 0
	if cacheable {
		if t, ok := e.cache.Get(opts.Name, source); ok {
			e.logger.Debug("template cache hit", "name", opts.Name)
			return t, nil
		}
	}

	nodes, err := NewParser(opts.Name, source).ParseAll()
	if err != nil {
		e.logger.Debug("template compile failed", "name", opts.Name, "error", err)
		return nil, err
	}

	// The snapshot and the cache store happen under one read lock so a
	// concurrent RegisterCommand cannot purge in between.
	e.mu.RLock()
	t := &Template{name: opts.Name, source: source, root: nodes, commands: e.commands.Merge(opts.Commands)}
	if cacheable {
		e.cache.Set(t)
	}
	e.mu.RUnlock()
	e.logger.Debug("template compiled", "name", opts.Name, "nodes", countNodes(nodes), "commands", len(t.commands))
	return t, nil
}

// RenderString compiles (or reuses) source and renders it against data.
func (e *Engine) RenderString(source string, data interface{}) (string, error) {
	t, err := e.Compile(source, nil)
	if err != nil {
		return "", fmt.Errorf("template parsing error: %w", err)
	}
	return t.Render(data)
}

func countNodes(nodes []*Node) int {
	n := len(nodes)
	for _, node := range nodes {
		if node.Block != nil {
			n += countNodes(node.Block.Body) + countNodes(node.Block.Else)
		}
	}
	return n
}

// DefaultEngine backs the package-level functions.
var DefaultEngine = NewEngine()

// Compile compiles source with DefaultEngine.
func Compile(source string, opts *Options) (*Template, error) {
	return DefaultEngine.Compile(source, opts)
}

// MustCompile is like Compile but panics on a syntax error. It is meant for
// templates embedded in the program.
func MustCompile(source string, opts *Options) *Template {
	t, err := Compile(source, opts)
	if err != nil {
		panic(err)
	}
	return t
}

// RenderString compiles and renders source with DefaultEngine.
func RenderString(source string, data interface{}) (string, error) {
	return DefaultEngine.RenderString(source, data)
}

// Describe returns an indented outline of the compiled tree, one node per
// line. The CLI's check command prints it.
func (t *Template) Describe() string {
	var b strings.Builder
	describeNodes(&b, t.root, 0)
	return b.String()
}

func describeNodes(b *strings.Builder, nodes []*Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		switch n.Type {
		case NodeText:
			fmt.Fprintf(b, "%stext %q\n", indent, n.Content)
		case NodeExpression:
			kind := "expr"
			if n.Raw {
				kind = "raw"
			}
			fmt.Fprintf(b, "%s%s %s\n", indent, kind, n.Expr)
		case NodeBlock:
			fmt.Fprintf(b, "%s#%s %s\n", indent, n.Block.Name, n.Block.Subject)
			describeNodes(b, n.Block.Body, depth+1)
			if n.Block.HasElse {
				fmt.Fprintf(b, "%selse\n", indent)
				describeNodes(b, n.Block.Else, depth+1)
			}
		}
	}
}
