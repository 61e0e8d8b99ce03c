package loam

// BlueprintMetadata is the frontmatter of a blueprint document.
// It uses "mapstructure" tags to match standard Frontmatter/YAML keys.
type BlueprintMetadata struct {
	ID      string `json:"id" mapstructure:"id"`
	Name    string `json:"name" mapstructure:"name"`
	Entity  string `json:"entity" mapstructure:"entity"`
	Context string `json:"context" mapstructure:"context"`
}
