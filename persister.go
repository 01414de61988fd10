package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

const (
	// gossipChannelCapacity bounds the ingestion channel. A full channel
	// suspends the producer until the persister drains it, trading upstream
	// latency for bounded memory.
	gossipChannelCapacity = 100

	// graphCacheInterval is how much ingestion time may pass between
	// snapshots of the network graph.
	graphCacheInterval = 10 * time.Minute

	// Progress log cadence: coarse during backfill, fine once live.
	progressEveryBackfill = 10000
	progressEveryLive     = 50
)

// syncState is the persister's lifecycle. The awaitingSync -> live
// transition fires on the first SyncComplete marker and is terminal.
type syncState int

const (
	awaitingSync syncState = iota
	live
)

func (s syncState) String() string {
	if s == live {
		return "live"
	}
	return "awaiting_sync"
}

// GossipPersister is the persistence actor: it drains the gossip channel in
// arrival order, writes each message to the store, snapshots the shared
// graph every graphCacheInterval, and notifies the downstream consumer
// exactly once when backfill is complete. It owns no locks; the graph
// synchronizes itself.
type GossipPersister struct {
	messages  chan GossipMessage
	syncDone  chan struct{}
	store     ChannelStore
	graph     *NetworkGraph
	cachePath string
	log       *slog.Logger

	state     syncState
	persisted uint64
	lastCache time.Time // monotonic; survives wall-clock adjustments
}

// NewGossipPersister returns the persister and the send side of its bounded
// ingestion channel. The persister owns both ends of the one-slot syncDone
// channel, so the completion send can never block.
func NewGossipPersister(store ChannelStore, graph *NetworkGraph, cachePath string, log *slog.Logger) (*GossipPersister, chan<- GossipMessage) {
	p := &GossipPersister{
		messages:  make(chan GossipMessage, gossipChannelCapacity),
		syncDone:  make(chan struct{}, 1),
		store:     store,
		graph:     graph,
		cachePath: cachePath,
		log:       log,
		lastCache: time.Now(),
	}
	return p, p.messages
}

// SyncDone fires once, after every backfill message has been persisted.
func (p *GossipPersister) SyncDone() <-chan struct{} {
	return p.syncDone
}

// Run drains the gossip channel until the producer closes it. That close is
// the only normal exit; any store or snapshot failure is returned for the
// top-level boundary to treat as fatal.
func (p *GossipPersister) Run(ctx context.Context) error {
	for msg := range p.messages {
		if err := p.handle(ctx, msg); err != nil {
			return err
		}
	}
	p.log.Info("gossip stream closed, persister exiting", "persisted", p.persisted)
	return nil
}

func (p *GossipPersister) handle(ctx context.Context, msg GossipMessage) error {
	if _, control := msg.(SyncComplete); !control {
		p.persisted++
		p.logProgress()
	}

	// Checked ahead of dispatch so a long-idle stream cannot starve the
	// snapshot cycle.
	if time.Since(p.lastCache) >= graphCacheInterval {
		if err := p.cacheGraph(); err != nil {
			return fmt.Errorf("cache network graph: %w", err)
		}
		p.lastCache = time.Now()
	}

	switch m := msg.(type) {
	case ChannelAnnouncement:
		if err := p.store.InsertAnnouncement(ctx, m); err != nil {
			return fmt.Errorf("persist announcement %s: %w", scidHex(m.ShortChannelID), err)
		}
		gossipPersistedTotal.WithLabelValues("announcement").Inc()
	case ChannelUpdate:
		if err := p.store.InsertUpdate(ctx, m); err != nil {
			return fmt.Errorf("persist update %s: %w", m.CompositeIndex(), err)
		}
		gossipPersistedTotal.WithLabelValues("update").Inc()
	case SyncComplete:
		p.completeSync()
	}
	return nil
}

func (p *GossipPersister) logProgress() {
	every := uint64(progressEveryBackfill)
	if p.state == live {
		every = progressEveryLive
	}
	if p.persisted == 1 || p.persisted%every == 0 {
		p.log.Info("persisting gossip", "count", p.persisted, "state", p.state.String())
	}
}

// completeSync transitions awaitingSync -> live and fires the one-shot
// completion signal. The detour through the persister guarantees every
// earlier message is already in the store when the signal lands. Later
// markers are administrative no-ops.
func (p *GossipPersister) completeSync() {
	if p.state == live {
		p.log.Debug("redundant sync completion marker ignored")
		return
	}
	p.state = live
	p.log.Info("persister caught up with gossip", "persisted", p.persisted)
	p.syncDone <- struct{}{}
	syncCompleteGauge.Set(1)
	p.log.Info("downstream notified of sync completion")
}

// cacheGraph prunes stale channels, then writes the graph's binary snapshot
// to the cache file, truncating any previous one. Runs synchronously inside
// the loop; ingestion pauses for its duration.
func (p *GossipPersister) cacheGraph() error {
	start := time.Now()
	pruned := p.graph.RemoveStaleChannels()

	f, err := os.OpenFile(p.cachePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := p.graph.WriteTo(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	channels := p.graph.ChannelCount()
	graphCacheTotal.Inc()
	graphCacheDuration.Observe(time.Since(start).Seconds())
	graphChannelCount.Set(float64(channels))
	p.log.Info("cached network graph",
		"path", p.cachePath, "channels", channels, "pruned", pruned,
		"elapsed", time.Since(start))
	return nil
}
