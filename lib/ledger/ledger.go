// Package ledger defines the interface required for all ledger network connections and keeps the registry of
// configured networks.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tarancss/rentguard/lib/config"
	"github.com/tarancss/rentguard/lib/ledger/stellar"
	"github.com/tarancss/rentguard/lib/ledger/types"
	"github.com/tarancss/rentguard/lib/logging"
)

// Ledger is a client bound to a single network. Values are immutable once created so a request keeps using the
// network it resolved when it started.
type Ledger interface {
	Info() types.NetworkInfo
	Close()
	Keypair() (types.Keypair, error)
	ValidPublicKey(pk string) bool
	AssetFor(currency string) (string, error)
	Account(ctx context.Context, pk string) error
	Balances(ctx context.Context, pk string) ([]types.Balance, error)
	History(ctx context.Context, pk string, limit int) ([]types.Trans, error)
	Fund(ctx context.Context, pk string) (map[string]interface{}, error)
	CreatePayment(ctx context.Context, p types.Payment) (types.Envelope, error)
	Decode(xdr string) (types.Payment, error)
	Submit(ctx context.Context, xdr string) (types.Result, error)
}

// Networks holds a ledger client per configured network and the name of the active one.
type Networks struct {
	mu     sync.RWMutex
	active string
	m      map[string]Ledger
}

// Init loads all the networks read from the config and sets the active one.
func Init(nets []config.NetworkConfig, active string) (*Networks, error) {
	n := &Networks{m: make(map[string]Ledger)}

	for _, net := range nets {
		if net.Name != config.Testnet && net.Name != config.Mainnet {
			logging.Warnf("Ledger interface not defined for %s. Ignoring...", net.Name)

			continue
		}

		l, err := stellar.Init(net)
		if err != nil {
			n.End()

			return nil, err
		}

		n.m[net.Name] = l
	}

	if _, ok := n.m[active]; !ok {
		n.End()

		return nil, fmt.Errorf("%w: %s", types.ErrUnknownNetwork, active)
	}

	n.active = active

	return n, nil
}

// NewNetworks builds a registry from already initialised ledgers. It is used to inject other implementations.
func NewNetworks(m map[string]Ledger, active string) (*Networks, error) {
	if _, ok := m[active]; !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownNetwork, active)
	}

	return &Networks{m: m, active: active}, nil
}

// Active returns the ledger of the active network.
func (n *Networks) Active() Ledger {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.m[n.active]
}

// Get returns the ledger of the named network.
func (n *Networks) Get(name string) (Ledger, error) {
	l, ok := n.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownNetwork, name)
	}

	return l, nil
}

// Switch changes the active network. Requests already running keep the ledger they resolved. An unknown name is
// rejected and leaves the active network unchanged.
func (n *Networks) Switch(name string) (Ledger, error) {
	l, err := n.Get(name)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.active = name
	n.mu.Unlock()

	logging.Infof("[%s] active network switched", name)

	return l, nil
}

// Names returns the sorted names of the configured networks.
func (n *Networks) Names() []string {
	names := make([]string, 0, len(n.m))
	for name := range n.m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// End closes gracefully all the ledger clients opened.
func (n *Networks) End() {
	for _, l := range n.m {
		l.Close()
	}
}
