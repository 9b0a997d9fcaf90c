package serialization

import (
	"fmt"
	"mime"
	"strings"

	"github.com/casualjim/roost/internal/registry"
)

// Registry resolves serializers by content type. The zero value is not usable; use NewRegistry.
type Registry struct {
	def    Serializer
	byType registry.Registry[Serializer]
}

// NewRegistry creates a registry whose default is def, also registering the extra serializers.
func NewRegistry(def Serializer, others ...Serializer) *Registry {
	r := &Registry{def: def, byType: registry.New[Serializer]()}
	r.Register(def)
	for _, s := range others {
		r.Register(s)
	}
	return r
}

// Default registers JSON as the default with CBOR and CloudEvents alongside.
func Default() *Registry {
	return NewRegistry(JSON(), CBOR(), CloudEvents())
}

// Register adds or replaces the serializer for its content type.
func (r *Registry) Register(s Serializer) {
	if s == nil {
		return
	}
	r.byType.Add(normalize(s.ContentType()), s)
}

// Default returns the serializer used when a message carries no content type.
func (r *Registry) Default() Serializer {
	return r.def
}

// Lookup finds the serializer for a content type. Parameters such as charset are ignored
// and an empty content type resolves to the default.
func (r *Registry) Lookup(contentType string) (Serializer, error) {
	if strings.TrimSpace(contentType) == "" {
		return r.def, nil
	}
	if s, ok := r.byType.Get(normalize(contentType)); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
}

// ContentTypes lists the registered content types.
func (r *Registry) ContentTypes() []string {
	out := make([]string, 0, r.byType.Len())
	r.byType.Range(func(name string, _ Serializer) bool {
		out = append(out, name)
		return true
	})
	return out
}

func normalize(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
