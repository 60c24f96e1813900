// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tcp implements control.Channel over plain TCP connections between
// a host node and its peers, grounded on original_source/tcp.h's
// SocketManager (host side, one socket fanning out to every client) and
// EndpointManager (peer side, one socket back to the host) pair. Unlike the
// original's fixed 32-byte message union, each message here is a small
// length-prefixed gob value -- the wire framing itself is what spec.md
// scopes out, not the higher-level exchange built on top of it.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"net"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/iht/control"
	"github.com/luxfi/iht/rma"
)

type messageKind uint8

const (
	kindRoot messageKind = iota + 1
	kindBarrierArrive
	kindBarrierRelease
	kindDrainAck
	kindDrainRelease
)

type wireMessage struct {
	Kind  messageKind
	Stage string
	Owner ids.NodeID
	Addr  uint64
}

func gobEncode(msg wireMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("control/tcp: encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(raw []byte, msg *wireMessage) error {
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(msg); err != nil {
		return fmt.Errorf("control/tcp: decode message: %w", err)
	}
	return nil
}

func writeMessage(w *bufio.Writer, msg wireMessage) error {
	var lenBuf [4]byte
	encoded, err := gobEncode(msg)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return err
	}
	return w.Flush()
}

func readMessage(r *bufio.Reader) (wireMessage, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return wireMessage{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := readFull(r, body); err != nil {
		return wireMessage{}, err
	}
	var msg wireMessage
	if err := gobDecode(body, &msg); err != nil {
		return wireMessage{}, err
	}
	return msg, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// conn wraps one peer-direction TCP socket with its own writer mutex, since
// SendRoot/Barrier/DrainAck on the host side write to every peer connection
// concurrently with that connection's reader goroutine.
type conn struct {
	netConn net.Conn
	writeMu sync.Mutex
	writer  *bufio.Writer
	reader  *bufio.Reader
}

func newConn(nc net.Conn) *conn {
	return &conn{netConn: nc, writer: bufio.NewWriter(nc), reader: bufio.NewReader(nc)}
}

func (c *conn) send(msg wireMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeMessage(c.writer, msg)
}

// Channel implements control.Channel. One node in the cluster is the host
// (the node that calls NewHost); every other node calls NewPeer and dials
// in. The host fans every Send out to all peer connections in turn, which
// is adequate at the node counts a control-plane bootstrap handles (spec.md
// never asks this channel to carry hot-path traffic).
type Channel struct {
	log      log.Logger
	self     ids.NodeID
	isHost   bool
	peers    []ids.NodeID
	listener net.Listener // host only

	mu         sync.Mutex
	conns      []*conn // host: one per peer, in Peers() order; peer: single-element
	root       rma.RemotePtr[byte]
	rootReady  chan struct{}
	rootClosed bool

	barriers map[string]*barrierState
	drain    *barrierState
	closed   bool
}

type barrierState struct {
	mu      sync.Mutex
	arrived map[ids.NodeID]bool
	release chan struct{}
}

func newBarrierState() *barrierState {
	return &barrierState{arrived: make(map[ids.NodeID]bool), release: make(chan struct{})}
}

// NewHost listens on addr and blocks until every peer in peers has
// connected, returning a Channel the host can use to publish its table
// root and drive barriers.
func NewHost(ctx context.Context, logger log.Logger, self ids.NodeID, addr string, peers []ids.NodeID) (*Channel, error) {
	lst, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control/tcp: listen on %s: %w", addr, err)
	}
	ch := &Channel{
		log:       logger,
		self:      self,
		isHost:    true,
		peers:     peers,
		listener:  lst,
		rootReady: make(chan struct{}),
		barriers:  make(map[string]*barrierState),
		drain:     newBarrierState(),
	}
	for range peers {
		nc, err := lst.Accept()
		if err != nil {
			return nil, fmt.Errorf("control/tcp: accept peer: %w", err)
		}
		c := newConn(nc)
		ch.conns = append(ch.conns, c)
		go ch.readLoop(c)
	}
	logger.Info("control channel host ready", log.Int("peers", len(peers)))
	return ch, nil
}

// NewPeer dials the host at addr and returns a Channel the peer can use to
// receive the table root and participate in barriers.
func NewPeer(ctx context.Context, logger log.Logger, self ids.NodeID, addr string, peers []ids.NodeID) (*Channel, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("control/tcp: dial host at %s: %w", addr, err)
	}
	c := newConn(nc)
	ch := &Channel{
		log:       logger,
		self:      self,
		isHost:    false,
		peers:     peers,
		conns:     []*conn{c},
		rootReady: make(chan struct{}),
		barriers:  make(map[string]*barrierState),
		drain:     newBarrierState(),
	}
	go ch.readLoop(c)
	return ch, nil
}

func (ch *Channel) Peers() []ids.NodeID { return ch.peers }

// readLoop is the single reader for one connection. Host-side, there is one
// readLoop per peer connection; peer-side, there is exactly one, reading
// from the host.
func (ch *Channel) readLoop(c *conn) {
	for {
		msg, err := readMessage(c.reader)
		if err != nil {
			return
		}
		switch msg.Kind {
		case kindRoot:
			ch.mu.Lock()
			if !ch.rootClosed {
				ch.root = rma.RemotePtr[byte]{Owner: msg.Owner, Addr: msg.Addr}
				ch.rootClosed = true
				close(ch.rootReady)
			}
			ch.mu.Unlock()

		case kindBarrierArrive:
			ch.barrierFor(msg.Stage).arrive(ch, msg.Owner, msg.Stage)

		case kindBarrierRelease:
			ch.barrierFor(msg.Stage).releaseAll()

		case kindDrainAck:
			ch.drain.arrive(ch, msg.Owner, "")

		case kindDrainRelease:
			ch.drain.releaseAll()
		}
	}
}

func (ch *Channel) barrierFor(stage string) *barrierState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	b, ok := ch.barriers[stage]
	if !ok {
		b = newBarrierState()
		ch.barriers[stage] = b
	}
	return b
}

// arrive records node as having reached a barrier. On the host, once every
// peer plus the host itself has arrived, it broadcasts a release. Peers
// never count arrivals: the host sends them only release messages, so a
// peer's barrier is released by readLoop on kindBarrierRelease or
// kindDrainRelease.
func (b *barrierState) arrive(ch *Channel, node ids.NodeID, stage string) {
	b.mu.Lock()
	b.arrived[node] = true
	// The host counts itself alongside every peer: release only once all
	// len(peers)+1 nodes in the cluster have reported arrival.
	complete := ch.isHost && len(b.arrived) >= len(ch.peers)+1
	b.mu.Unlock()
	if complete {
		msg := wireMessage{Kind: kindBarrierRelease, Stage: stage}
		if stage == "" {
			msg.Kind = kindDrainRelease
		}
		ch.broadcast(msg)
		b.releaseAll()
	}
}

func (b *barrierState) releaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.release:
		// already released
	default:
		close(b.release)
	}
}

func (ch *Channel) broadcast(msg wireMessage) {
	ch.mu.Lock()
	conns := append([]*conn(nil), ch.conns...)
	ch.mu.Unlock()
	for _, c := range conns {
		_ = c.send(msg)
	}
}

// SendRoot is called by the host once, after iht.Table.InitRoot.
func (ch *Channel) SendRoot(ctx context.Context, root rma.RemotePtr[byte]) error {
	if ch.isClosed() {
		return control.ErrChannelClosed
	}
	if !ch.isHost {
		return fmt.Errorf("control/tcp: SendRoot called on a peer channel")
	}
	ch.broadcast(wireMessage{Kind: kindRoot, Owner: root.Owner, Addr: root.Addr})
	return nil
}

func (ch *Channel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// RecvRoot is called by every peer once, before any table operation.
func (ch *Channel) RecvRoot(ctx context.Context) (rma.RemotePtr[byte], error) {
	if ch.isClosed() {
		return rma.RemotePtr[byte]{}, control.ErrChannelClosed
	}
	select {
	case <-ctx.Done():
		return rma.RemotePtr[byte]{}, ctx.Err()
	case <-ch.rootReady:
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return ch.root, nil
	}
}

// Barrier blocks until every node has called Barrier with stage.
func (ch *Channel) Barrier(ctx context.Context, stage string) error {
	if ch.isClosed() {
		return control.ErrChannelClosed
	}
	b := ch.barrierFor(stage)
	if ch.isHost {
		b.arrive(ch, ch.self, stage)
	} else {
		ch.mu.Lock()
		host := ch.conns[0]
		ch.mu.Unlock()
		if err := host.send(wireMessage{Kind: kindBarrierArrive, Stage: stage, Owner: ch.self}); err != nil {
			return fmt.Errorf("control/tcp: send barrier arrival: %w", err)
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

// DrainAck is the same rendezvous as Barrier, keyed implicitly rather than
// by a caller-chosen stage name, since a run has exactly one drain.
func (ch *Channel) DrainAck(ctx context.Context) error {
	if ch.isClosed() {
		return control.ErrChannelClosed
	}
	if ch.isHost {
		ch.drain.arrive(ch, ch.self, "")
	} else {
		ch.mu.Lock()
		host := ch.conns[0]
		ch.mu.Unlock()
		if err := host.send(wireMessage{Kind: kindDrainAck, Owner: ch.self}); err != nil {
			return fmt.Errorf("control/tcp: send drain ack: %w", err)
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.drain.release:
		return nil
	}
}

func (ch *Channel) Close() error {
	ch.mu.Lock()
	ch.closed = true
	conns := append([]*conn(nil), ch.conns...)
	ch.mu.Unlock()
	var firstErr error
	for _, c := range conns {
		if err := c.netConn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ch.listener != nil {
		if err := ch.listener.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ control.Channel = (*Channel)(nil)
