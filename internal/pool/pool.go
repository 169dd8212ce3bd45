// Package pool keeps a target number of supervised workers alive and hands
// actions to idle ones.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/symphoner/internal/bus"
	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/metrics"
	"github.com/torosent/symphoner/internal/tracing"
)

var (
	// ErrNoClientsAvailable is returned by ExecuteAction when no member is
	// idle. Callers should wait for a pool Ready event.
	ErrNoClientsAvailable = errors.New("no clients available to execute the action")
	ErrClosed             = errors.New("pool closed")
)

// Member is one supervised worker.
type Member interface {
	Source() message.Source
	Send(cmd message.Command) error
	// Abort blocks until the member is gone.
	Abort()
}

// Spawner creates a new member whose source id is id.
type Spawner func(ctx context.Context, id string) (Member, error)

type Options struct {
	Bus   *bus.Bus
	Spawn Spawner
	// Settings are passed with every ExecuteAction.
	Settings map[string]interface{}
	Metrics  metrics.Sink
	Logger   *slog.Logger
}

type Pool struct {
	ctx      context.Context
	src      message.Source
	bus      *bus.Bus
	spawn    Spawner
	settings map[string]interface{}
	trace    map[string]string
	sink     metrics.Sink
	logger   *slog.Logger

	mu      sync.Mutex
	size    int
	running map[string]Member
	// pending holds ids reserved for members still being spawned.
	pending map[string]*arrival
	idle    []string
	subs    []bus.SubscriptionID
	closed  bool
}

// arrival records what a member reported before its spawn returned.
type arrival struct {
	ready bool
	lost  bool
}

// New creates an empty pool. ctx bounds member spawning, and its span, if
// any, becomes the parent of every action the members run.
func New(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Bus == nil {
		return nil, errors.New("pool: bus is required")
	}
	if opts.Spawn == nil {
		return nil, errors.New("pool: spawner is required")
	}
	sink := opts.Metrics
	if sink == nil {
		sink = metrics.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()

	p := &Pool{
		ctx:      ctx,
		src:      message.Source{ID: id, Type: message.SourcePool},
		bus:      opts.Bus,
		spawn:    opts.Spawn,
		settings: opts.Settings,
		trace:    tracing.Carrier(ctx),
		sink:     sink,
		logger:   logger.With("pool", id),
		running:  make(map[string]Member),
		pending:  make(map[string]*arrival),
	}

	member := message.FromSource(p.isMember)
	p.subs = []bus.SubscriptionID{
		p.bus.Subscribe([]message.Predicate{member, message.IsEvent(message.EventDisconnected, message.EventExited)}, p.onLost),
		p.bus.Subscribe([]message.Predicate{member, message.IsEvent(message.EventWorking)}, p.onWorking),
		p.bus.Subscribe([]message.Predicate{member, message.IsEvent(message.EventReady)}, p.onReady),
	}
	return p, nil
}

func (p *Pool) Source() message.Source { return p.src }

// Grow raises the target size by n and spawns members up to it.
func (p *Pool) Grow(n int) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.size += n
	p.mu.Unlock()

	if changed, count := p.topUp(); changed {
		p.sink.Gauge("clients", float64(count))
	}
}

// Shrink lowers the target size by n. Running members are not removed; the
// pool simply stops replacing them.
func (p *Pool) Shrink(n int) {
	p.mu.Lock()
	p.size -= n
	if p.size < 0 {
		p.size = 0
	}
	p.mu.Unlock()
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *Pool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// WorkingCount is the number of running members that are not idle.
func (p *Pool) WorkingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running) - len(p.idle)
}

// ExecuteAction hands action to the longest-idle member.
func (p *Pool) ExecuteAction(action string) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if len(p.idle) == 0 {
		p.mu.Unlock()
		return ErrNoClientsAvailable
	}
	id := p.idle[0]
	p.idle = p.idle[1:]
	m := p.running[id]
	p.mu.Unlock()

	if err := m.Send(message.ExecuteAction{Action: action, Settings: p.settings, Trace: p.trace}); err != nil {
		return fmt.Errorf("execute %s on %s: %w", action, m.Source(), err)
	}
	return nil
}

// Close sets the target size to zero, aborts every member concurrently and
// waits for all of them before releasing the pool's subscriptions.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.size = 0
	p.idle = nil
	members := make([]Member, 0, len(p.running))
	for _, m := range p.running {
		members = append(members, m)
	}
	p.mu.Unlock()

	var g errgroup.Group
	for _, m := range members {
		g.Go(func() error {
			m.Abort()
			return nil
		})
	}
	err := g.Wait()

	for _, id := range p.subs {
		p.bus.Unsubscribe(id)
	}
	return err
}

func (p *Pool) isMember(src message.Source) bool {
	if src.Type != message.SourceSupervisor {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.running[src.ID]; ok {
		return true
	}
	_, ok := p.pending[src.ID]
	return ok
}

func (p *Pool) onLost(m message.Message) {
	id := m.Head().Source.ID

	p.mu.Lock()
	if a, ok := p.pending[id]; ok {
		a.lost = true
		p.mu.Unlock()
		return
	}
	if _, ok := p.running[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.running, id)
	p.removeIdleLocked(id)
	p.mu.Unlock()

	p.logger.Debug("client lost", "client", id, "event", m.(message.EventMessage).Event)
	_, count := p.topUp()
	p.sink.Gauge("clients", float64(count))
}

func (p *Pool) onWorking(m message.Message) {
	id := m.Head().Source.ID

	p.mu.Lock()
	if a, ok := p.pending[id]; ok {
		a.ready = false
	}
	p.removeIdleLocked(id)
	p.mu.Unlock()
}

func (p *Pool) onReady(m message.Message) {
	id := m.Head().Source.ID

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if a, ok := p.pending[id]; ok {
		a.ready = true
		p.mu.Unlock()
		return
	}
	// The member may have been lost since the bus matched it.
	if _, ok := p.running[id]; !ok {
		p.mu.Unlock()
		return
	}
	if !p.isIdleLocked(id) {
		p.idle = append(p.idle, id)
	}
	announce := p.shouldAnnounceLocked()
	p.mu.Unlock()

	if announce {
		p.bus.Publish(message.NewEvent(p.src, message.EventReady))
	}
}

func (p *Pool) shouldAnnounceLocked() bool {
	return len(p.running)-len(p.idle) < p.size
}

// topUp spawns members until the running count reaches the target size. It
// stops at the first spawn failure. Spawning happens without holding p.mu,
// so the bus keeps delivering member events meanwhile; each id is reserved
// first so those events are not dropped.
func (p *Pool) topUp() (changed bool, count int) {
	for {
		id, ok := p.reserve()
		if !ok {
			break
		}
		m, err := p.spawn(p.ctx, id)
		if err != nil {
			p.mu.Lock()
			delete(p.pending, id)
			p.mu.Unlock()
			p.logger.Error("spawn client", "error", err)
			break
		}
		if p.admit(id, m) {
			changed = true
		}
	}
	return changed, p.RunningCount()
}

func (p *Pool) reserve() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.running)+len(p.pending) >= p.size {
		return "", false
	}
	id := uuid.NewString()
	p.pending[id] = &arrival{}
	return id, true
}

// admit moves a spawned member from pending to running, replaying a Ready it
// reported while being spawned.
func (p *Pool) admit(id string, m Member) bool {
	p.mu.Lock()
	a := p.pending[id]
	delete(p.pending, id)
	if p.closed {
		p.mu.Unlock()
		m.Abort()
		return false
	}
	if a.lost {
		p.mu.Unlock()
		p.logger.Debug("client lost while spawning", "client", id)
		return false
	}
	p.running[id] = m
	announce := false
	if a.ready {
		p.idle = append(p.idle, id)
		announce = p.shouldAnnounceLocked()
	}
	p.mu.Unlock()

	if announce {
		p.bus.Publish(message.NewEvent(p.src, message.EventReady))
	}
	return true
}

func (p *Pool) isIdleLocked(id string) bool {
	for _, v := range p.idle {
		if v == id {
			return true
		}
	}
	return false
}

func (p *Pool) removeIdleLocked(id string) {
	for i, v := range p.idle {
		if v == id {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}
