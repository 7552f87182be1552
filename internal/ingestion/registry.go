package ingestion

import "github.com/hmoscout/hmoscout/internal/enrichment"

// Registry is the immutable set of adapters for one run. It is built fresh by
// the composition root; there is no package-level registration, so two
// concurrent managers can never see each other's adapters.
type Registry struct {
	sources   []SourceAdapter
	enrichers []enrichment.Adapter
}

func NewRegistry(sources []SourceAdapter, enrichers []enrichment.Adapter) *Registry {
	return &Registry{
		sources:   append([]SourceAdapter(nil), sources...),
		enrichers: append([]enrichment.Adapter(nil), enrichers...),
	}
}

func (r *Registry) Sources() []SourceAdapter {
	return r.sources
}

func (r *Registry) Enrichers() []enrichment.Adapter {
	return r.enrichers
}
