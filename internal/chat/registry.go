package chat

import (
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Peer is the routing-side view of a connected participant.
type Peer interface {
	// Send writes one message to the peer's connection.
	Send(Message) error
	Close() error
	Closed() bool
	// RequestShutdown runs the password exchange for a privileged shutdown.
	RequestShutdown()
	String() string
}

// Registry maps display names to live peers. All methods are safe for
// concurrent use; name listings are sorted snapshots.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]Peer)}
}

// Add registers p under name. The returned error wraps ErrNameRejected.
func (r *Registry) Add(name string, p Peer) error {
	if !IsAcceptableName(name) {
		return fmt.Errorf("%w: %q is not a valid name", ErrNameRejected, name)
	}
	if p == nil || p.Closed() {
		return fmt.Errorf("%w: connection is closed", ErrNameRejected)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(name, p)
}

func (r *Registry) addLocked(name string, p Peer) error {
	if r.sealed {
		return fmt.Errorf("%w: server is shutting down", ErrNameRejected)
	}
	if _, taken := r.peers[name]; taken {
		return fmt.Errorf("%w: %q is taken", ErrNameRejected, name)
	}
	r.peers[name] = p
	return nil
}

// Rename moves p from its current name to newName in one step. The old name
// is returned even when the rename is rejected, so the caller can notify it.
func (r *Registry) Rename(p Peer, newName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldName, ok := r.nameForLocked(p)
	if !ok {
		return "", ErrNotRegistered
	}
	if !IsAcceptableName(newName) {
		return oldName, fmt.Errorf("%w: %q is not a valid name", ErrNameRejected, newName)
	}
	if err := r.addLocked(newName, p); err != nil {
		return oldName, err
	}
	delete(r.peers, oldName)
	return oldName, nil
}

func (r *Registry) Get(name string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[name]
	return p, ok
}

// NameFor is the reverse lookup of the name p is registered under.
func (r *Registry) NameFor(p Peer) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nameForLocked(p)
}

func (r *Registry) nameForLocked(p Peer) (string, bool) {
	for name, candidate := range r.peers {
		if candidate == p {
			return name, true
		}
	}
	return "", false
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := lo.Keys(r.peers)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (r *Registry) NamesExcept(name string) []string {
	return lo.Without(r.Names(), name)
}

// Remove deletes name and returns the peer it referred to.
func (r *Registry) Remove(name string) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[name]
	if ok {
		delete(r.peers, name)
	}
	return p, ok
}

// RemoveIf deletes name only while it still refers to p.
func (r *Registry) RemoveIf(name string, p Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.peers[name]; !ok || current != p {
		return false
	}
	delete(r.peers, name)
	return true
}

// RemovePeer deletes whatever name p is registered under.
func (r *Registry) RemovePeer(p Peer) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.nameForLocked(p)
	if ok {
		delete(r.peers, name)
	}
	return name, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Seal refuses all further registrations and returns the names present at
// that moment.
func (r *Registry) Seal() []string {
	r.mu.Lock()
	r.sealed = true
	names := lo.Keys(r.peers)
	r.mu.Unlock()
	slices.Sort(names)
	return names
}
