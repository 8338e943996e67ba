package marketplace

import (
	"sort"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
)

// Registry is the static connector/normalizer lookup built once at startup
// from configuration. It is read-only after construction, so no locking.
type Registry struct {
	connectors  map[order.Platform]sync.Connector
	normalizers map[order.Platform]sync.Normalizer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connectors:  make(map[order.Platform]sync.Connector),
		normalizers: make(map[order.Platform]sync.Normalizer),
	}
}

// Register adds a connector/normalizer pair for its platform. Both must
// serve the same platform.
func (r *Registry) Register(connector sync.Connector, normalizer sync.Normalizer) {
	r.connectors[connector.Platform()] = connector
	r.normalizers[normalizer.Platform()] = normalizer
}

// Connector returns the connector for the platform, or false if the platform
// is not configured
func (r *Registry) Connector(platform order.Platform) (sync.Connector, bool) {
	c, ok := r.connectors[platform]
	return c, ok
}

// Normalizer returns the normalizer for the platform, or false if the
// platform is not configured
func (r *Registry) Normalizer(platform order.Platform) (sync.Normalizer, bool) {
	n, ok := r.normalizers[platform]
	return n, ok
}

// Platforms returns all configured platforms in stable order
func (r *Registry) Platforms() []order.Platform {
	platforms := make([]order.Platform, 0, len(r.connectors))
	for p := range r.connectors {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// Ensure Registry implements the Registry port
var _ sync.Registry = (*Registry)(nil)
