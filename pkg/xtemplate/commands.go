package xtemplate

// Option is the second argument of every command call.
type Option struct {
	// Name is the command name as written in the template.
	Name string
	// Params holds the already evaluated arguments, in source order.
	Params []interface{}
	// Fn renders the block body in the given scope. It is nil unless the
	// command was invoked as a block, {{#name(...)}}...{{/name}}.
	Fn func(scope *Scope) (string, error)
	// Inverse renders the block's {{else}} body; nil when there is none.
	Inverse func(scope *Scope) (string, error)
}

// Param returns the i-th parameter, or Undefined when there are fewer.
func (o *Option) Param(i int) interface{} {
	if i < 0 || i >= len(o.Params) {
		return Undefined
	}
	return o.Params[i]
}

// Command is a function callable from templates as name(args...). It may
// have side effects; it runs only when evaluation reaches its call.
type Command func(scope *Scope, option *Option) (interface{}, error)

// Commands maps command names to functions. A Template holds its own copy,
// frozen at compile time.
type Commands map[string]Command

// Lookup returns the command registered under name.
func (c Commands) Lookup(name string) (Command, bool) {
	cmd, ok := c[name]
	return cmd, ok && cmd != nil
}

// Clone returns a shallow copy of c.
func (c Commands) Clone() Commands {
	out := make(Commands, len(c))
	for name, cmd := range c {
		out[name] = cmd
	}
	return out
}

// Merge returns a new registry holding c overlaid with overrides.
func (c Commands) Merge(overrides Commands) Commands {
	out := make(Commands, len(c)+len(overrides))
	for name, cmd := range c {
		out[name] = cmd
	}
	for name, cmd := range overrides {
		out[name] = cmd
	}
	return out
}

// Names returns the registered names in no particular order.
func (c Commands) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	return names
}
