package listeners

import (
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/statelistener"
	"github.com/rs/zerolog"
)

var _ statelistener.StateChangeListener = (*ReplicationManagerListener)(nil)

// ReplicationManagerListener is the default Replication Manager Listener:
// it logs every transition it is driven through and otherwise is a no-op.
// It owns INACTIVE→OFFLINE in the full state machine (the core's own
// listener treats that transition as a no-op), and participates in the
// resume-decommission branch of OFFLINE→DROPPED.
type ReplicationManagerListener struct {
	logger zerolog.Logger
}

// NewReplicationManagerListener constructs a logging-only
// ReplicationManagerListener.
func NewReplicationManagerListener() *ReplicationManagerListener {
	return &ReplicationManagerListener{logger: log.WithComponent("replication-listener")}
}

func (l *ReplicationManagerListener) OnBecomeBootstrapFromOffline(partitionName string) error {
	l.logger.Debug().Str("partition", partitionName).Msg("offline -> bootstrap")
	return nil
}

func (l *ReplicationManagerListener) OnBecomeStandbyFromBootstrap(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("bootstrap -> standby")
	return nil
}

func (l *ReplicationManagerListener) OnBecomeLeaderFromStandby(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("standby -> leader")
	return nil
}

func (l *ReplicationManagerListener) OnBecomeStandbyFromLeader(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("leader -> standby")
	return nil
}

func (l *ReplicationManagerListener) OnBecomeInactiveFromStandby(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("standby -> inactive: pausing replication")
	return nil
}

// OnBecomeOfflineFromInactive disconnects the replica from its replication
// peers. This is the transition the core's own listener explicitly leaves
// as a no-op and delegates here.
func (l *ReplicationManagerListener) OnBecomeOfflineFromInactive(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("inactive -> offline: disconnecting from peers")
	return nil
}

func (l *ReplicationManagerListener) OnBecomeDroppedFromOffline(partitionName string) error {
	l.logger.Info().Str("partition", partitionName).Msg("offline -> dropped: forgetting peer state")
	return nil
}
