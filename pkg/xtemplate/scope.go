package xtemplate

import (
	"strings"

	"github.com/AlexanderGrooff/xtemplate-go/internal/invariant"
)

// Scope is one frame of the runtime resolution chain. The root frame wraps
// the data passed to Render; #each pushes one frame per item and #with one
// frame for its subject. #if never pushes a frame.
//
// Frames are created per render call and never shared between renders.
type Scope struct {
	data   interface{}
	parent *Scope
	depth  int

	// specials
	this     interface{}
	index    interface{} // int for sequences, string key for mappings
	count    int
	hasIndex bool
}

func newRootScope(data interface{}) *Scope {
	if data == nil {
		data = Undefined
	}
	return &Scope{data: data, this: data}
}

// NewScope returns a root frame over data, for use with an Evaluator.
func NewScope(data interface{}) *Scope { return newRootScope(data) }

// push creates a child frame whose data and `this` are value.
func (s *Scope) push(value interface{}) *Scope {
	invariant.NotNil(s, "parent scope")
	return &Scope{data: value, this: value, parent: s, depth: s.depth + 1}
}

// pushItem creates an iteration frame carrying xindex and xcount.
func (s *Scope) pushItem(value, index interface{}, count int) *Scope {
	child := s.push(value)
	child.index = index
	child.count = count
	child.hasIndex = true
	return child
}

// Data returns the frame's data.
func (s *Scope) Data() interface{} { return s.data }

// This returns the value bound to `this` in the frame.
func (s *Scope) This() interface{} { return s.this }

// Parent returns the enclosing frame, or nil at the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Depth is the number of frames between s and the root.
func (s *Scope) Depth() int { return s.depth }

// Root returns the frame wrapping the render data.
func (s *Scope) Root() *Scope {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// Push returns a child frame with value as its data and `this`. Block
// commands use it to render their body against a new subject.
func (s *Scope) Push(value interface{}) *Scope { return s.push(value) }

// special returns the frame's own binding for `this`, `xindex` or `xcount`.
func (s *Scope) special(name string) (interface{}, bool) {
	switch name {
	case "this":
		return s.this, true
	case "xindex":
		if s.hasIndex {
			return s.index, true
		}
	case "xcount":
		if s.hasIndex {
			return s.count, true
		}
	}
	return nil, false
}

// lookup searches s and then its ancestors for name: specials first, then an
// own property of each frame's data.
func (s *Scope) lookup(name string) (interface{}, bool) {
	for f := s; f != nil; f = f.parent {
		if v, ok := f.special(name); ok {
			return v, true
		}
		if v, ok := property(f.data, name); ok {
			return v, true
		}
	}
	return nil, false
}

// Resolve walks upLevels parent frames, finds path[0] from there upward and
// follows the remaining path segments as property lookups. A miss anywhere
// yields Undefined.
func (s *Scope) Resolve(path []string, upLevels int) interface{} {
	invariant.Precondition(len(path) > 0, "resolve needs a non-empty path")
	target := s
	for i := 0; i < upLevels; i++ {
		if target.parent == nil {
			return Undefined
		}
		target = target.parent
	}

	v, ok := target.lookup(path[0])
	if !ok {
		return Undefined
	}
	for _, seg := range path[1:] {
		if v, ok = property(v, seg); !ok {
			return Undefined
		}
	}
	return v
}

// Get resolves a name written the way it appears in a template, for example
// "user.name" or "../limit".
func (s *Scope) Get(name string) interface{} {
	up := 0
	for strings.HasPrefix(name, "../") {
		up++
		name = name[3:]
	}
	if name == "" {
		return Undefined
	}
	return s.Resolve(strings.Split(name, "."), up)
}
