package providers

import (
	"time"

	"github.com/predictradar/signalscan/internal/config"
	"github.com/predictradar/signalscan/internal/providers/kalshi"
	"github.com/predictradar/signalscan/internal/providers/opinion"
	"github.com/predictradar/signalscan/internal/providers/polymarket"
)

// operationalConfigPath is where BuildAdapters looks for the optional
// per-provider request-budget table (spec.md §6); its absence is not an
// error, adapters just keep their built-in timeout default.
const operationalConfigPath = "config/providers.yaml"

// BuildAdapters constructs one adapter per provider, honoring feature
// flags from config. Each adapter reports Enabled()=false on its own if
// its credentials are missing (spec.md §4.1), independent of the flag.
func BuildAdapters(cfg *config.Config) []Adapter {
	defaultTimeout := 10 * time.Second
	ops, err := LoadOperationalConfig(operationalConfigPath)
	if err != nil {
		ops = OperationalConfig{}
	}

	var adapters []Adapter

	if cfg.EnableKalshi {
		adapters = append(adapters, kalshi.New(kalshi.Config{
			APIKey:         cfg.KalshiAPIKey,
			RequestTimeout: ops.Providers["kalshi"].Timeout(defaultTimeout),
		}))
	}
	if cfg.EnablePolymarket {
		adapters = append(adapters, polymarket.New(polymarket.Config{
			APIKey:         cfg.PolymarketAPIKey,
			RequestTimeout: ops.Providers["polymarket"].Timeout(defaultTimeout),
		}))
	}
	if cfg.EnableOpinion {
		adapters = append(adapters, opinion.New(opinion.Config{
			APIKey:         cfg.OpinionAPIKey,
			RequestTimeout: ops.Providers["opinion"].Timeout(defaultTimeout),
		}))
	}

	return adapters
}
