// Package fanout provides named, bounded channels between the polling loops
// and their sinks. All names are declared when the Registry is built;
// asking for any other name fails immediately.
//
// Back-pressure is bounded-blocking: Send waits up to the configured send
// timeout for queue space, then drops the message and returns a channel
// error. Producers log that error and carry on.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/samber/lo"
)

type Message any

type Config struct {
	Buffer      int
	SendTimeout time.Duration
}

type Registry struct {
	cfg    Config
	chans  map[string]chan Message
	mu     sync.RWMutex
	closed bool
}

// New builds one channel per name. Empty or duplicate names are rejected.
func New(cfg Config, names ...string) (*Registry, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = constant.DefaultFanoutBuffer
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = constant.DefaultSendTimeout
	}
	if lo.Contains(names, "") {
		return nil, fmt.Errorf("fanout: empty channel name")
	}
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, fmt.Errorf("fanout: duplicate channel names %v", dups)
	}

	r := &Registry{cfg: cfg, chans: make(map[string]chan Message, len(names))}
	for _, n := range names {
		r.chans[n] = make(chan Message, cfg.Buffer)
	}
	return r, nil
}

// Names returns the registered channel names.
func (r *Registry) Names() []string {
	return lo.Keys(r.chans)
}

// Has reports whether name was registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.chans[name]
	return ok
}

// Sender returns a view over the named channels, failing if any name was
// never registered.
func (r *Registry) Sender(names ...string) (*MultiSender, error) {
	if missing := lo.Reject(names, func(n string, _ int) bool { return r.Has(n) }); len(missing) > 0 {
		return nil, fmt.Errorf("fanout: unknown channel names %v", missing)
	}
	senders := make(map[string]Sender, len(names))
	for _, n := range names {
		senders[n] = Sender{name: n, reg: r}
	}
	return &MultiSender{senders: senders}, nil
}

// Receiver returns the receiving end of a registered channel.
func (r *Registry) Receiver(name string) (<-chan Message, error) {
	ch, ok := r.chans[name]
	if !ok {
		return nil, fmt.Errorf("fanout: unknown channel name %q", name)
	}
	return ch, nil
}

// Len reports how many messages are queued on name.
func (r *Registry) Len(name string) int {
	return len(r.chans[name])
}

// Close closes every channel. Later sends fail with a channel error and
// receivers drain what is left.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, ch := range r.chans {
		close(ch)
	}
}

func (r *Registry) send(ctx context.Context, name string, msg Message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return types.Errorf(types.KindChannel, "channel %s is closed", name)
	}
	ch := r.chans[name]

	select {
	case ch <- msg:
		return nil
	default:
	}

	timer := time.NewTimer(r.cfg.SendTimeout)
	defer timer.Stop()
	select {
	case ch <- msg:
		return nil
	case <-timer.C:
		return types.Errorf(types.KindChannel, "channel %s full, message dropped after %s", name, r.cfg.SendTimeout)
	case <-ctx.Done():
		return types.Errorf(types.KindChannel, "send to %s aborted: %w", name, ctx.Err())
	}
}

// Sender sends to one registered channel. The zero value is not usable.
type Sender struct {
	name string
	reg  *Registry
}

func (s Sender) Name() string { return s.name }

func (s Sender) Send(ctx context.Context, msg Message) error {
	return s.reg.send(ctx, s.name, msg)
}

// MultiSender is a cloneable set of senders; copies share the channels.
type MultiSender struct {
	senders map[string]Sender
}

// Get returns the sender for name. It panics for a name that was not part
// of the view, which is a wiring bug caught at startup.
func (m *MultiSender) Get(name string) Sender {
	s, ok := m.senders[name]
	if !ok {
		panic(fmt.Sprintf("fanout: sender %q not in view", name))
	}
	return s
}

// Has reports whether name is part of this view.
func (m *MultiSender) Has(name string) bool {
	_, ok := m.senders[name]
	return ok
}

// Send is shorthand for Get(name).Send.
func (m *MultiSender) Send(ctx context.Context, name string, msg Message) error {
	return m.Get(name).Send(ctx, msg)
}

// Clone returns an independent copy of the view.
func (m *MultiSender) Clone() *MultiSender {
	return &MultiSender{senders: lo.Assign(m.senders)}
}
