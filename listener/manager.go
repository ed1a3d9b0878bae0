// File: listener/manager.go
// Manager tracks the set of open listeners across a config reload,
// reusing sockets whose address and options are unchanged (so in-flight
// accepts on them are never disturbed) and opening/closing only the
// delta (spec.md §4.7 "graceful listener reconciliation"). Mirrors the
// reuse-by-identity pattern shm.Registry.Reconcile uses for shared zones.
//
// Author: reactorcore contributors
// License: Apache-2.0
package listener

// openFunc is a seam for tests to avoid binding real sockets.
var openFunc = Open

type Manager struct {
	byAddr map[string]*Listener
}

func NewManager() *Manager {
	return &Manager{byAddr: make(map[string]*Listener)}
}

// Listeners returns the live listener set, keyed by address.
func (m *Manager) Listeners() map[string]*Listener {
	return m.byAddr
}

// Reconcile brings the managed set to exactly `wanted`: listeners whose
// Options are unchanged from the current generation are kept untouched;
// new addresses are opened; addresses no longer wanted are closed. It
// returns the new Manager (the caller should swap it in once the
// reconfiguration "cycle" commits) and any open error.
func (m *Manager) Reconcile(wanted []Options) (*Manager, error) {
	next := NewManager()
	for _, opts := range wanted {
		if existing, ok := m.byAddr[opts.Address]; ok && existing.Opts == opts {
			next.byAddr[opts.Address] = existing
			continue
		}
		l, err := openFunc(opts)
		if err != nil {
			for _, opened := range next.byAddr {
				if m.byAddr[opened.Opts.Address] != opened {
					opened.Close()
				}
			}
			return nil, err
		}
		next.byAddr[opts.Address] = l
	}

	for addr, old := range m.byAddr {
		if next.byAddr[addr] != old {
			old.Close()
		}
	}
	return next, nil
}

// CloseExceptIn closes every listener in m that is not present, by
// identity, in keep. Used to unwind a successful Reconcile when a later
// step in the same cycle build fails: the listeners this Reconcile opened
// for the new cycle must be closed, but listeners carried forward from
// keep are still owned by the generation still running and must not be.
func (m *Manager) CloseExceptIn(keep *Manager) {
	for addr, l := range m.byAddr {
		if keep.byAddr[addr] != l {
			l.Close()
		}
	}
}
