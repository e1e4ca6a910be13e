package backend

import (
	"fmt"

	"github.com/datastack-labs/mcp-datacenter/pkg/config"
	"github.com/datastack-labs/mcp-datacenter/pkg/logging"
)

// Factory constructs backend variants from data source configuration entries.
type Factory struct {
	log *logging.Logger
}

// NewFactory returns a Factory logging through log.
func NewFactory(log *logging.Logger) *Factory {
	return &Factory{log: log}
}

// New dispatches on the configured type tag. Unknown tags fail with an
// explicit error; there is no fallback variant.
func (f *Factory) New(cfg *config.DataSource) (Backend, error) {
	switch cfg.Type {
	case config.TypeRelational:
		return newRelational(cfg, f.log)
	case config.TypeDocument:
		return newDocument(cfg, f.log)
	case config.TypeKeyValue:
		return newKeyValue(cfg, f.log)
	case config.TypeSearch:
		return newSearch(cfg, f.log)
	case config.TypeREST:
		return newREST(cfg, f.log)
	default:
		return nil, fmt.Errorf("backend: unsupported data source type %q for %q", cfg.Type, cfg.Name)
	}
}

// NewAll constructs one variant per enabled entry. A single entry's failure is
// logged and skipped so the remaining entries still get their variants.
func (f *Factory) NewAll(cfgs []config.DataSource) []Backend {
	var out []Backend
	for i := range cfgs {
		cfg := &cfgs[i]
		if !cfg.Enabled {
			continue
		}
		b, err := f.New(cfg)
		if err != nil {
			f.log.Error("skipping data source", logging.Fields{"source": cfg.Name, "error": err.Error()})
			continue
		}
		out = append(out, b)
	}
	return out
}
