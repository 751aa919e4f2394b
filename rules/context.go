package rules

// Key is a resolved rate limit key. Two keys are equal iff their strings are
// equal; the bucket store treats the value as an opaque string.
type Key string

func (k Key) String() string {
	return string(k)
}

// RequestContext is an immutable snapshot of one inbound request, built once
// by the HTTP layer and consumed read-only by the engine.
type RequestContext struct {
	ClientIP string
	UserID   string
	APIKey   string
	Endpoint string
	Method   string

	// Headers maps lowercase header names to their first value.
	Headers map[string]string

	// Attributes carries caller-defined values for custom resolvers.
	Attributes map[string]string
}

// Header returns the named header value, or "" when absent.
func (c RequestContext) Header(name string) string {
	return c.Headers[name]
}

// Attribute returns the named attribute and whether it was present.
func (c RequestContext) Attribute(name string) (string, bool) {
	v, ok := c.Attributes[name]
	return v, ok
}
