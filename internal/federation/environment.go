package federation

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/fedgraph/internal/metrics"
)

// DefaultNoContributionTTL is how long "this source has nothing here" is
// trusted before the source is asked again.
const DefaultNoContributionTTL = time.Minute

// Environment carries the ambient services an executor needs.
type Environment struct {
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	NewUUID func() uuid.UUID
	// NoContributionTTL bounds empty contributions, including those that
	// stand in for failed sources.
	NoContributionTTL time.Duration
}

func (e Environment) withDefaults() Environment {
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.NewUUID == nil {
		e.NewUUID = uuid.New
	}
	if e.NoContributionTTL <= 0 {
		e.NoContributionTTL = DefaultNoContributionTTL
	}
	return e
}
