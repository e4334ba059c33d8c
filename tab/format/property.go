package format

// Resolver substitutes placeholder text in a raw property value for a specific
// target/viewer pair. Implementations are supplied by the host; the static
// resolver is used when no placeholder support is available.
type Resolver interface {
	// Resolve replaces placeholders in raw. target is the name of the player
	// the property belongs to and viewer the name of the player the resolved
	// text will be shown to.
	Resolve(raw string, target, viewer string) string
}

// StaticResolver performs no substitution and returns raw values unchanged.
type StaticResolver struct{}

// Resolve ...
func (StaticResolver) Resolve(raw string, _, _ string) string {
	return raw
}
