// Package engine drives the connection loop: it owns every live TCP
// connection, pulls command buffers from a round-robin set of
// BufferSources, and keeps connection_limit connections continuously
// writing via a single kernel submission/completion queue.
package engine

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/framegrace/tsunami/breadthflatten"
	"github.com/framegrace/tsunami/buffer"
	"github.com/framegrace/tsunami/ring"
)

// ReusableConn is an already-connected socket handed to the engine at
// setup time instead of being dialed fresh — the bootstrap handshake
// connection is the canonical example. File is the duplicated
// descriptor produced by (*net.TCPConn).File(); keeping it referenced
// here is what keeps the fd alive once the original net.Conn is closed.
type ReusableConn struct {
	File *os.File
	Peer net.Addr
}

var (
	ErrNoReachableTarget = errors.New("engine: no (target, interface) pair could be dialed")
	ErrNoSources         = errors.New("engine: at least one buffer source is required")
)

const initialBackoff = time.Second

// ringKind tags which of the three in-flight operation shapes a
// ringData value describes, mirroring the ConnectionEstablished /
// Reconnecting / Backoff variants from the data model.
type ringKind int

const (
	kindConnecting  ringKind = iota // a connect(2) is outstanding (covers the first connect and every reconnect)
	kindEstablished                 // a write(2) is outstanding
	kindBackoff                     // a timeout is outstanding, chained ahead of a connect
)

// writeCursor tracks a partially written buffer so the next submission
// resumes exactly where the kernel left off.
type writeCursor struct {
	buf          *buffer.Buffer
	bytesWritten int
}

// ringData is the tagged union of state attached to every outstanding
// kernel operation, keyed by the userData value the operation was
// submitted with.
type ringData struct {
	kind ringKind

	id          uuid.UUID
	fd          int
	peer        net.Addr
	sourceIndex int

	cursor *writeCursor // kindEstablished

	reconnects int           // kindConnecting
	backoff    time.Duration // kindConnecting

	next *ringData // kindBackoff: the connect submitted right behind this timeout
}

// Engine owns every live connection and the round-robin buffer sources
// they pull frames from.
type Engine struct {
	targets  []*net.TCPAddr
	ifaces   []net.IP
	sources  []BufferSource
	reusable []ReusableConn

	connectionLimit       int
	reconnectLimit        int // negative means unlimited
	reconnectBackoffLimit time.Duration
	timeAnchor            time.Time

	log  *log.Logger
	warn *log.Logger

	ring *ring.Ring

	ops          map[uint64]*ringData
	nextUserData uint64
	connections  int
}

// Config collects Engine's construction parameters.
type Config struct {
	Targets               []*net.TCPAddr
	Interfaces            []net.IP // empty means "unspecified v4 + v6"
	Sources               []BufferSource
	ReusableConns         []ReusableConn
	ConnectionLimit       int
	ReconnectLimit        int // negative = unlimited
	ReconnectBackoffLimit time.Duration
	TimeAnchor            time.Time
	Logger                *log.Logger
	WarnLogger            *log.Logger
}

// New validates cfg and builds an idle Engine; call Setup to dial out
// and start the first batch of connections.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Sources) == 0 {
		return nil, ErrNoSources
	}
	ifaces := cfg.Interfaces
	if len(ifaces) == 0 {
		ifaces = []net.IP{net.IPv4zero, net.IPv6unspecified}
	}
	logger, warn := cfg.Logger, cfg.WarnLogger
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	if warn == nil {
		warn = log.New(os.Stderr, "WARN: ", log.LstdFlags)
	}
	return &Engine{
		targets:               cfg.Targets,
		ifaces:                ifaces,
		sources:               cfg.Sources,
		reusable:              cfg.ReusableConns,
		connectionLimit:       cfg.ConnectionLimit,
		reconnectLimit:        cfg.ReconnectLimit,
		reconnectBackoffLimit: cfg.ReconnectBackoffLimit,
		timeAnchor:            cfg.TimeAnchor,
		log:                   logger,
		warn:                  warn,
		ops:                   make(map[uint64]*ringData),
	}, nil
}

// tag allocates a fresh userData value to correlate a submitted
// operation with its ringData.
func (e *Engine) tag(d *ringData) uint64 {
	e.nextUserData++
	e.ops[e.nextUserData] = d
	return e.nextUserData
}

// Setup prepends any reusable connections (the bootstrap handshake
// socket, typically), then enumerates target×interface pairs via
// breadthflatten to fill whatever connectionLimit slots remain, and
// submits their initial connects plus (once established) their first
// writes.
func (e *Engine) Setup(ringEntries uint32) error {
	r, err := ring.Setup(ringEntries)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	e.ring = r

	for _, rc := range e.reusable {
		if e.connections >= e.connectionLimit {
			break
		}
		sourceIndex := e.connections % len(e.sources)
		est := &ringData{
			kind:        kindEstablished,
			id:          uuid.New(),
			fd:          int(rc.File.Fd()),
			peer:        rc.Peer,
			sourceIndex: sourceIndex,
		}
		if err := e.submitNextWrite(est); err != nil {
			e.warn.Printf("reusable connection %s -> %s: %v", est.id, est.peer, err)
			continue
		}
		e.connections++
		e.log.Printf("connection %s -> %s reused from bootstrap handshake", est.id, est.peer)
	}

	attempts := e.dialAttempts(e.connectionLimit - e.connections)
	for _, a := range attempts {
		sourceIndex := e.connections % len(e.sources)
		d := &ringData{
			kind:        kindConnecting,
			id:          uuid.New(),
			fd:          a.fd,
			peer:        a.target,
			sourceIndex: sourceIndex,
			backoff:     initialBackoff,
		}
		if err := e.ring.PushConnect(a.fd, a.target, e.tag(d), false); err != nil {
			e.warn.Printf("connection %s: submit initial connect: %v", d.id, err)
			delete(e.ops, e.nextUserData)
			unixClose(a.fd)
			continue
		}
		e.connections++
	}
	if e.connections == 0 {
		return ErrNoReachableTarget
	}
	if _, err := e.ring.Submit(0); err != nil {
		return fmt.Errorf("engine: submit initial connects: %w", err)
	}
	e.log.Printf("engine: dialing %d connection(s) across %d target(s)", e.connections, len(e.targets))
	return nil
}

// Run drives the completion loop until every connection has retired.
func (e *Engine) Run() error {
	for e.connections > 0 {
		userData, result, err := e.ring.WaitCQE()
		if err != nil {
			return fmt.Errorf("engine: wait for completion: %w", err)
		}
		d, ok := e.ops[userData]
		if !ok {
			continue
		}
		delete(e.ops, userData)
		if err := e.dispatch(d, result); err != nil {
			return err
		}
	}
	e.log.Printf("engine: all connections retired, exiting")
	return nil
}

func (e *Engine) dispatch(d *ringData, result int32) error {
	switch d.kind {
	case kindConnecting:
		return e.onConnectCompletion(d, result)
	case kindEstablished:
		return e.onWriteCompletion(d, result)
	case kindBackoff:
		return e.onBackoffCompletion(d, result)
	default:
		return fmt.Errorf("engine: unknown ring data kind %d", d.kind)
	}
}

// Close releases the underlying ring.
func (e *Engine) Close() error {
	if e.ring == nil {
		return nil
	}
	return e.ring.Close()
}

type dialAttempt struct {
	fd     int
	target *net.TCPAddr
}

// dialAttempts builds, for each target, an infinite round-robin
// iterator over its matching-family interfaces, then breadth-flattens
// them across targets so connection slots are balanced fairly, pulling
// at most limit non-failing attempts. A target whose every interface
// fails to produce a usable socket through a full cycle is dropped.
func (e *Engine) dialAttempts(limit int) []dialAttempt {
	var iters []func() (dialAttempt, bool)
	for _, target := range e.targets {
		target := target
		var matching []net.IP
		for _, iface := range e.ifaces {
			if familyMatches(target.IP, iface) {
				matching = append(matching, iface)
			}
		}
		if len(matching) == 0 {
			continue
		}
		i := 0
		consecutiveFailures := 0
		iters = append(iters, func() (dialAttempt, bool) {
			for consecutiveFailures < len(matching) {
				iface := matching[i%len(matching)]
				i++
				fd, err := newSocket(target, iface)
				if err != nil {
					e.warn.Printf("dial %s via %s: %v", target, iface, err)
					consecutiveFailures++
					continue
				}
				consecutiveFailures = 0
				return dialAttempt{fd: fd, target: target}, true
			}
			return dialAttempt{}, false
		})
	}
	if len(iters) == 0 {
		return nil
	}
	return breadthflatten.Collect(breadthflatten.Flatten(iters), limit)
}

func familyMatches(target, iface net.IP) bool {
	return (target.To4() != nil) == (iface.To4() != nil)
}
