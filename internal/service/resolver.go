package service

import (
	"fmt"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/provider"
)

// ProviderResolver maps a tenant model id to its configured completion
// backend. The model registry owning the configurations is an external
// collaborator; the core only consumes resolved providers.
type ProviderResolver interface {
	Resolve(modelID string) (provider.Provider, error)
}

type staticResolver struct {
	providers map[string]provider.Provider
}

// NewStaticResolver resolves from a fixed map, as built at startup from the
// model registry. Providers are constructed eagerly so configuration errors
// surface before the first request.
func NewStaticResolver(providers map[string]provider.Provider) ProviderResolver {
	return &staticResolver{providers: providers}
}

func (r *staticResolver) Resolve(modelID string) (provider.Provider, error) {
	p, ok := r.providers[modelID]
	if !ok {
		return nil, fmt.Errorf("%w: no provider configured for model %s", apperr.ErrConfiguration, modelID)
	}
	return p, nil
}
