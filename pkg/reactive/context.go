package reactive

// Context carries a value down the owner tree. Provide stores it on an
// owner; Use finds the nearest provided value or falls back to the default.
type Context[T any] struct {
	key          *contextKey
	defaultValue T
}

type contextKey struct{}

// CreateContext creates a context with the given default.
//
//	var ThemeContext = reactive.CreateContext("light")
func CreateContext[T any](defaultValue T) *Context[T] {
	return &Context[T]{key: &contextKey{}, defaultValue: defaultValue}
}

// Provide stores value on owner for owner and its descendants.
func (c *Context[T]) Provide(owner *Owner, value T) {
	owner.SetValue(c.key, value)
}

// Use returns the value provided to the current owner or an ancestor.
func (c *Context[T]) Use() T {
	v, _ := c.Lookup(getCurrentOwner())
	return v
}

// Lookup returns the value provided to owner or an ancestor, and whether
// one was found. A nil owner yields the default.
func (c *Context[T]) Lookup(owner *Owner) (T, bool) {
	if owner != nil {
		if v, ok := owner.GetValue(c.key); ok {
			if typed, ok := v.(T); ok {
				return typed, true
			}
		}
	}
	return c.defaultValue, false
}

// Default returns the context's default value.
func (c *Context[T]) Default() T {
	return c.defaultValue
}
