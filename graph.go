package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// staleChannelAge is the graph's freshness policy: a channel with no update
// newer than this is dropped at the next prune.
const staleChannelAge = 14 * 24 * time.Hour

// Snapshot framing: magic, format version, big-endian fixed-layout entries.
var graphMagic = [4]byte{'L', 'N', 'G', 'C'}

const graphFormatVersion uint16 = 1

var errBadSnapshot = errors.New("malformed graph snapshot")

// channelEntry is the graph's view of one channel.
type channelEntry struct {
	chainHash   [32]byte
	lastUpdated uint32 // unix seconds of the freshest update, 0 if none yet
}

// NetworkGraph is the shared in-memory routing graph. The gossip source
// adds and refreshes channels while the persister prunes and snapshots it,
// so all access goes through the internal RWMutex; callers never lock.
type NetworkGraph struct {
	mu       sync.RWMutex
	channels map[uint64]*channelEntry
}

func NewNetworkGraph() *NetworkGraph {
	return &NetworkGraph{channels: make(map[uint64]*channelEntry)}
}

// AddChannel records a channel seen in an announcement. Announcements are
// immutable, so a channel already present keeps its existing entry.
func (g *NetworkGraph) AddChannel(scid uint64, chainHash [32]byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[scid]; ok {
		return
	}
	g.channels[scid] = &channelEntry{chainHash: chainHash}
}

// ApplyUpdate refreshes a channel's last-updated time. Updates for unknown
// channels are dropped; stale timestamps never move the clock backwards.
func (g *NetworkGraph) ApplyUpdate(scid uint64, timestamp uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[scid]
	if !ok {
		return
	}
	if timestamp > ch.lastUpdated {
		ch.lastUpdated = timestamp
	}
}

func (g *NetworkGraph) ChannelCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.channels)
}

// RemoveStaleChannels drops channels whose freshest update is older than
// staleChannelAge and returns how many were removed. Channels that have
// never seen an update are kept; they may still be mid-backfill.
func (g *NetworkGraph) RemoveStaleChannels() int {
	return g.removeStale(time.Now())
}

func (g *NetworkGraph) removeStale(now time.Time) int {
	cutoff := now.Add(-staleChannelAge).Unix()
	g.mu.Lock()
	defer g.mu.Unlock()
	pruned := 0
	for scid, ch := range g.channels {
		if ch.lastUpdated != 0 && int64(ch.lastUpdated) < cutoff {
			delete(g.channels, scid)
			pruned++
		}
	}
	return pruned
}

// WriteTo serializes the graph in its canonical binary form: magic, format
// version, entry count, then fixed-layout entries in ascending scid order
// so identical graphs produce identical bytes.
func (g *NetworkGraph) WriteTo(w io.Writer) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	scids := make([]uint64, 0, len(g.channels))
	for scid := range g.channels {
		scids = append(scids, scid)
	}
	sort.Slice(scids, func(i, j int) bool { return scids[i] < scids[j] })

	var written int64
	n, err := w.Write(graphMagic[:])
	written += int64(n)
	if err != nil {
		return written, err
	}
	var hdr [10]byte
	binary.BigEndian.PutUint16(hdr[0:2], graphFormatVersion)
	binary.BigEndian.PutUint64(hdr[2:10], uint64(len(scids)))
	n, err = w.Write(hdr[:])
	written += int64(n)
	if err != nil {
		return written, err
	}

	var entry [44]byte // scid(8) + chain hash(32) + last updated(4)
	for _, scid := range scids {
		ch := g.channels[scid]
		binary.BigEndian.PutUint64(entry[0:8], scid)
		copy(entry[8:40], ch.chainHash[:])
		binary.BigEndian.PutUint32(entry[40:44], ch.lastUpdated)
		n, err = w.Write(entry[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ReadNetworkGraph decodes a snapshot previously produced by WriteTo.
func ReadNetworkGraph(r io.Reader) (*NetworkGraph, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadSnapshot, err)
	}
	if magic != graphMagic {
		return nil, fmt.Errorf("%w: bad magic", errBadSnapshot)
	}
	var hdr [10]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadSnapshot, err)
	}
	if v := binary.BigEndian.Uint16(hdr[0:2]); v != graphFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errBadSnapshot, v)
	}
	count := binary.BigEndian.Uint64(hdr[2:10])

	g := NewNetworkGraph()
	var entry [44]byte
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, entry[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadSnapshot, err)
		}
		ch := &channelEntry{lastUpdated: binary.BigEndian.Uint32(entry[40:44])}
		copy(ch.chainHash[:], entry[8:40])
		g.channels[binary.BigEndian.Uint64(entry[0:8])] = ch
	}
	return g, nil
}

// loadGraphCache warm-starts the graph from a previous snapshot. A missing
// file is a cold start, not an error.
func loadGraphCache(path string) (*NetworkGraph, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewNetworkGraph(), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := ReadNetworkGraph(f)
	if err != nil {
		return nil, fmt.Errorf("read graph cache %s: %w", path, err)
	}
	return g, nil
}
