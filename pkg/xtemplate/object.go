package xtemplate

// Object is a string-keyed mapping that remembers insertion order. Object
// literals evaluate to *Object so that #each visits their keys in source
// order; the CLI data loader produces them for the same reason.
type Object struct {
	keys   []string
	values map[string]interface{}
}

// NewObject creates an empty Object with room for n keys.
func NewObject(n int) *Object {
	return &Object{
		keys:   make([]string, 0, n),
		values: make(map[string]interface{}, n),
	}
}

// Set stores value under key. A new key is appended to the iteration order;
// an existing key keeps its position.
func (o *Object) Set(key string, value interface{}) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (interface{}, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in insertion order. The slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Map returns a copy of the entries as a plain Go map.
func (o *Object) Map() map[string]interface{} {
	m := make(map[string]interface{}, o.Len())
	for _, k := range o.Keys() {
		m[k] = o.values[k]
	}
	return m
}
