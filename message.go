package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// GossipMessage is one unit of the decoded gossip stream handed to the
// persister: a channel announcement, a channel update, or the marker that
// historical backfill has been fully delivered.
type GossipMessage interface {
	gossipMessage()
}

// SyncComplete marks the end of historical backfill. It carries no data and
// is never persisted.
type SyncComplete struct{}

// ChannelAnnouncement is a decoded channel_announcement. Signed holds the
// full signed wire encoding, signatures included; the announcement is
// treated as immutable once seen.
type ChannelAnnouncement struct {
	ShortChannelID uint64
	ChainHash      [32]byte
	Signed         []byte
}

// ChannelUpdate is a decoded channel_update for one direction of a channel.
type ChannelUpdate struct {
	ShortChannelID            uint64
	ChainHash                 [32]byte
	Timestamp                 uint32
	ChannelFlags              uint8
	CLTVExpiryDelta           uint16
	HTLCMinimumMsat           uint64
	FeeBaseMsat               uint32
	FeeProportionalMillionths uint32
	HTLCMaximumMsat           uint64
	Signed                    []byte
}

func (SyncComplete) gossipMessage()        {}
func (ChannelAnnouncement) gossipMessage() {}
func (ChannelUpdate) gossipMessage()       {}

// scidHex encodes a short channel id as the 16-character lowercase hex of
// its 8 big-endian bytes.
func scidHex(scid uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], scid)
	return hex.EncodeToString(b[:])
}

// blockHeight extracts the funding block height from a short channel id:
// the top 24 bits, independent of the transaction and output index below.
func blockHeight(scid uint64) uint32 {
	return uint32(scid >> 40)
}

func chainHashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// Direction is bit 0 of the channel flags: which endpoint of the channel
// this update describes.
func (u ChannelUpdate) Direction() uint8 {
	return u.ChannelFlags & 1
}

// Disabled is bit 1 of the channel flags.
func (u ChannelUpdate) Disabled() bool {
	return u.ChannelFlags&2 != 0
}

// CompositeIndex is the unique store key for an update: scid, timestamp and
// direction. Replays of the same update at the same timestamp collide here
// and are dropped by the store.
func (u ChannelUpdate) CompositeIndex() string {
	return fmt.Sprintf("%s:%d:%d", scidHex(u.ShortChannelID), u.Timestamp, u.Direction())
}
