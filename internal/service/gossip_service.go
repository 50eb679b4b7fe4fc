package service

import (
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/driftkv/driftkv/internal/config"
	"go.uber.org/zap"
)

// GossipService drives ring membership from a memberlist cluster so
// nodes discover each other without operator calls to the admin API.
// Each member advertises its KV listener address as its memberlist
// node name, which is the same identity the ring uses.
type GossipService struct {
	list   *memberlist.Memberlist
	rings  *RingManager
	cfg    config.GossipConfig
	logger *zap.Logger
}

type ringEventDelegate struct {
	rings  *RingManager
	selfID string
	logger *zap.Logger
}

func (d *ringEventDelegate) NotifyJoin(node *memberlist.Node) {
	if node.Name == d.selfID {
		return
	}
	d.logger.Info("Gossip: member joined", zap.String("node_id", node.Name))
	d.rings.AddNode(node.Name)
}

func (d *ringEventDelegate) NotifyLeave(node *memberlist.Node) {
	if node.Name == d.selfID {
		return
	}
	d.logger.Info("Gossip: member left", zap.String("node_id", node.Name))
	d.rings.RemoveNode(node.Name)
}

func (d *ringEventDelegate) NotifyUpdate(node *memberlist.Node) {}

// NewGossipService starts a memberlist instance named after the local
// node and joins the configured seed members.
func NewGossipService(rings *RingManager, cfg config.GossipConfig, logger *zap.Logger) (*GossipService, error) {
	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = rings.SelfID()
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.GossipInterval = cfg.GossipInterval
	mlConfig.ProbeInterval = cfg.ProbeInterval
	mlConfig.ProbeTimeout = cfg.ProbeTimeout
	mlConfig.Events = &ringEventDelegate{
		rings:  rings,
		selfID: rings.SelfID(),
		logger: logger,
	}
	mlConfig.LogOutput = zap.NewStdLog(logger.Named("memberlist")).Writer()

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	s := &GossipService{
		list:   list,
		rings:  rings,
		cfg:    cfg,
		logger: logger,
	}

	if len(cfg.SeedNodes) > 0 {
		joined, err := list.Join(cfg.SeedNodes)
		if err != nil {
			logger.Warn("Failed to join gossip seeds",
				zap.Strings("seeds", cfg.SeedNodes),
				zap.Error(err))
		} else {
			logger.Info("Joined gossip cluster",
				zap.Int("contacted", joined),
				zap.Strings("seeds", cfg.SeedNodes))
		}
	}

	return s, nil
}

// Members returns the names of the current gossip members.
func (s *GossipService) Members() []string {
	nodes := s.list.Members()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

// Shutdown leaves the cluster gracefully and stops gossiping.
func (s *GossipService) Shutdown() error {
	if err := s.list.Leave(5 * time.Second); err != nil {
		s.logger.Warn("Gossip leave failed", zap.Error(err))
	}
	return s.list.Shutdown()
}
