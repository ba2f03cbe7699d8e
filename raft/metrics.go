package raft

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTerm = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qircd_raft_term",
		Help: "Current raft term.",
	}, []string{"node"})

	metricCommitIndex = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qircd_raft_commit_index",
		Help: "Highest committed log index.",
	}, []string{"node"})

	metricAppliedIndex = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qircd_raft_applied_index",
		Help: "Highest log index applied to the state machine.",
	}, []string{"node"})

	metricLeader = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qircd_raft_is_leader",
		Help: "1 when this node is the leader.",
	}, []string{"node"})

	metricProposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qircd_raft_proposals_total",
		Help: "Proposals submitted through this node, by result.",
	}, []string{"node", "result"})

	metricSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qircd_raft_snapshots_total",
		Help: "Snapshots taken by this node.",
	}, []string{"node"})

	metricElections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qircd_raft_elections_total",
		Help: "Elections started by this node.",
	}, []string{"node"})
)
