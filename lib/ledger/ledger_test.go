package ledger

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stellar/go/network"

	"github.com/tarancss/rentguard/lib/config"
	"github.com/tarancss/rentguard/lib/ledger/stellar/stellartest"
	"github.com/tarancss/rentguard/lib/ledger/types"
)

func TestInit(t *testing.T) {
	n, err := Init(config.NetworksDefault, config.Testnet)
	if err != nil {
		t.Fatalf("Error initialising networks:%v", err)
	}
	defer n.End()

	if !reflect.DeepEqual(n.Names(), []string{config.Mainnet, config.Testnet}) {
		t.Errorf("unexpected networks %v", n.Names())
	}

	if info := n.Active().Info(); info.Network != config.Testnet || info.Passphrase != network.TestNetworkPassphrase {
		t.Errorf("unexpected active network %+v", info)
	}

	if _, err = Init(config.NetworksDefault, "futurenet"); !errors.Is(err, types.ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}

	// unsupported names are ignored
	nets := append([]config.NetworkConfig{{Name: "futurenet", Horizon: "http://localhost", Passphrase: "x"}},
		config.NetworksDefault...)
	if n2, err := Init(nets, config.Mainnet); err != nil || len(n2.Names()) != 2 {
		t.Errorf("futurenet should be ignored: %v", err)
	}
}

func TestSwitch(t *testing.T) {
	srv := stellartest.NewServer(network.TestNetworkPassphrase)
	defer srv.Close()

	n, err := Init([]config.NetworkConfig{srv.Network(config.Testnet, true), config.NetworksDefault[1]}, config.Testnet)
	if err != nil {
		t.Fatalf("Error initialising networks:%v", err)
	}
	defer n.End()

	// a ledger resolved before the switch stays bound to its network
	before := n.Active()

	l, err := n.Switch(config.Mainnet)
	if err != nil {
		t.Fatalf("Error switching network:%v", err)
	}

	if l.Info().Network != config.Mainnet || n.Active().Info().Network != config.Mainnet {
		t.Errorf("switch not applied, active %s", n.Active().Info().Network)
	}

	if before.Info().Network != config.Testnet || before.Info().HorizonURL != srv.URL {
		t.Errorf("resolved ledger changed network %+v", before.Info())
	}

	if _, err = n.Switch("devnet"); !errors.Is(err, types.ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}

	if n.Active().Info().Network != config.Mainnet {
		t.Errorf("failed switch changed the active network to %s", n.Active().Info().Network)
	}

	if _, err = n.Get(config.Testnet); err != nil {
		t.Errorf("Error getting testnet:%v", err)
	}
}
