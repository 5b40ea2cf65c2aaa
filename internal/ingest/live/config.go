package live

import (
	"time"

	"github.com/radieske/live-odds-ingestion/internal/ingest/model"
)

// Config é o conjunto de parâmetros do loop sujeito a hot-reload: ligas
// habilitadas e intervalos por kind podem mudar em tempo de execução e
// passam a valer no próximo Trigger.
type Config struct {
	EnabledLeagues []int64
	OddsInterval   time.Duration
	EventsInterval time.Duration
	StatsInterval  time.Duration
	Concurrency    int
	ConsecFailMax  int
	Cooldown       time.Duration
}

// DefaultConfig replica os defaults declarados: odds a cada 10s, eventos a
// cada 5s, estatísticas a cada 15s, 5 pulls concorrentes, cooldown após 5
// falhas consecutivas por 10 minutos.
func DefaultConfig() Config {
	return Config{
		OddsInterval:   10 * time.Second,
		EventsInterval: 5 * time.Second,
		StatsInterval:  15 * time.Second,
		Concurrency:    5,
		ConsecFailMax:  5,
		Cooldown:       10 * time.Minute,
	}
}

func (c Config) intervalFor(kind model.TickKind) time.Duration {
	switch kind {
	case model.KindOdds:
		return c.OddsInterval
	case model.KindEvent:
		return c.EventsInterval
	case model.KindStat:
		return c.StatsInterval
	default:
		return 0
	}
}

func (c Config) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return DefaultConfig().Concurrency
}

func (c Config) consecFailMax() int {
	if c.ConsecFailMax > 0 {
		return c.ConsecFailMax
	}
	return DefaultConfig().ConsecFailMax
}

func (c Config) cooldown() time.Duration {
	if c.Cooldown > 0 {
		return c.Cooldown
	}
	return DefaultConfig().Cooldown
}
