package listeners

import (
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/statelistener"
	"github.com/rs/zerolog"
)

var _ statelistener.StateChangeListener = (*StatsManagerListener)(nil)

// StatsManagerListener is the default Stats Manager Listener: a logging
// no-op that participates only in OFFLINE→DROPPED (spec §4.3.4 step 5),
// where a production implementation would retire per-replica stats
// aggregation state.
type StatsManagerListener struct {
	logger zerolog.Logger
}

// NewStatsManagerListener constructs a logging-only StatsManagerListener.
func NewStatsManagerListener() *StatsManagerListener {
	return &StatsManagerListener{logger: log.WithComponent("stats-listener")}
}

func (l *StatsManagerListener) OnBecomeBootstrapFromOffline(string) error { return nil }
func (l *StatsManagerListener) OnBecomeStandbyFromBootstrap(string) error { return nil }
func (l *StatsManagerListener) OnBecomeLeaderFromStandby(string) error    { return nil }
func (l *StatsManagerListener) OnBecomeStandbyFromLeader(string) error    { return nil }
func (l *StatsManagerListener) OnBecomeInactiveFromStandby(string) error  { return nil }
func (l *StatsManagerListener) OnBecomeOfflineFromInactive(string) error  { return nil }

func (l *StatsManagerListener) OnBecomeDroppedFromOffline(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("offline -> dropped: retiring stats aggregation")
	return nil
}
