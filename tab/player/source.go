package player

// PropertySource supplies raw property values for a player, typically layered
// from per-user overrides, group overrides and configured defaults.
type PropertySource interface {
	// PropertyValue returns the raw value of the property stored under key
	// for the given player. An empty string means the property is unset.
	PropertyValue(p *Player, key string) string
}

// Property keys used by the replication features.
const (
	PropertyTagPrefix  = "tagprefix"
	PropertyTagSuffix  = "tagsuffix"
	PropertyTabPrefix  = "tabprefix"
	PropertyTabSuffix  = "tabsuffix"
	PropertyCustomName = "customtabname"
)

// LoadProperties refreshes the given property keys of p from source and
// reports whether any raw value changed.
func LoadProperties(p *Player, source PropertySource, keys ...string) bool {
	changed := false
	for _, key := range keys {
		if p.Property(key).Set(source.PropertyValue(p, key)) {
			changed = true
		}
	}
	return changed
}
