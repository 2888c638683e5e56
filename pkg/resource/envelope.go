package resource

// SchemaVersion is stamped on every envelope for version-aware decoding.
const SchemaVersion = 1

// Envelope carries a finished resource plus routing metadata.
type Envelope struct {
	Session       Session   `json:"session"`
	PluginPath    []string  `json:"pluginPath"`
	Tags          []string  `json:"tags"`
	SchemaVersion int       `json:"schemaVersion"`
	Contents      *Resource `json:"contents"`
}

// NewEnvelope wraps r for emission.
func NewEnvelope(session Session, pluginPath, tags []string, r *Resource) Envelope {
	return Envelope{
		Session:       session,
		PluginPath:    pluginPath,
		Tags:          tags,
		SchemaVersion: SchemaVersion,
		Contents:      r,
	}
}

// Tag builds a routing tag such as "aws.redshift:cluster".
func Tag(service, kind string) string {
	return service + ":" + kind
}
