// config_test.go tests config files
package config

import (
	"errors"
	"testing"
	"time"
)

// fileToTest is a relative path to the configuration file to test (ie. rentguard/cmd/conf.json)
var fileToTest string = "../../cmd/conf.json"

// TestConfig extracts config from a file and checks values loaded
func TestConfig(t *testing.T) {
	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Fatalf("Error reading config file:%v", err)
	}

	if conf.Port != "3001" {
		t.Errorf("config port is not the expected %s", conf.Port)
	}

	if len(conf.Networks) != 2 || conf.Networks[0].Name != Testnet || conf.Networks[1].Name != Mainnet {
		t.Errorf("networks do not match the expected %+v", conf.Networks)
	}

	if n, ok := conf.NetworkByName(Testnet); !ok || n.Friendbot == "" || n.UsdAsset == "" {
		t.Errorf("testnet config is incomplete %+v", n)
	}

	if conf.RateWindow != 15*time.Minute || conf.RateLimit != 100 {
		t.Errorf("rate limit is not the expected %d/%s", conf.RateLimit, conf.RateWindow)
	}
}

func TestDefaults(t *testing.T) {
	conf, err := ExtractConfiguration("")
	if err != nil {
		t.Fatalf("Error extracting defaults:%v", err)
	}

	if conf.Network != Testnet || conf.DBType != "memory" || conf.FrontendURL != FrontendURLDefault {
		t.Errorf("defaults not applied: %+v", conf)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RENTGUARD_PORT", "4040")
	t.Setenv("RENTGUARD_NETWORK", Mainnet)
	t.Setenv("RENTGUARD_HORIZON_MAINNET", "http://localhost:8000")
	t.Setenv("RENTGUARD_RATEWINDOW", "1m")

	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Fatalf("Error extracting config:%v", err)
	}

	if conf.Port != "4040" || conf.Network != Mainnet {
		t.Errorf("env not applied: port %s network %s", conf.Port, conf.Network)
	}

	if n, _ := conf.NetworkByName(Mainnet); n.Horizon != "http://localhost:8000" {
		t.Errorf("horizon override not applied: %s", n.Horizon)
	}

	if conf.RateWindow != time.Minute {
		t.Errorf("rate window override not applied: %s", conf.RateWindow)
	}
}

func TestUnknownNetwork(t *testing.T) {
	t.Setenv("RENTGUARD_NETWORK", "futurenet")

	if _, err := ExtractConfiguration(""); !errors.Is(err, ErrUnknownNetwork) {
		t.Errorf("expected ErrUnknownNetwork, got %v", err)
	}
}

func TestNetworksFromEnv(t *testing.T) {
	t.Setenv("RENTGUARD_NETWORKS", `[{"name":"testnet","horizon":"http://127.0.0.1:8000","passphrase":"Standalone Network ; February 2017"}]`)

	conf, err := ExtractConfiguration("")
	if err != nil {
		t.Fatalf("Error extracting config:%v", err)
	}

	if len(conf.Networks) != 1 || conf.Networks[0].Horizon != "http://127.0.0.1:8000" {
		t.Errorf("networks from env not applied: %+v", conf.Networks)
	}
}

func TestNetworksFromEnvOverFile(t *testing.T) {
	t.Setenv("RENTGUARD_NETWORKS", `[{"name":"mainnet","horizon":"http://127.0.0.1:8001","passphrase":"Public Global Stellar Network ; September 2015"},{"name":"testnet","horizon":"http://127.0.0.1:8000","passphrase":"Test SDF Network ; September 2015","usdAsset":"USDC:GBBD47IF6LWK7P7MDEVSCWR7DPUWV3NY3DTQEVFL4NAT4AQH3ZLLFLA5"}]`)
	t.Setenv("RENTGUARD_HORIZON_TESTNET", "http://127.0.0.1:9000")

	conf, err := ExtractConfiguration(fileToTest)
	if err != nil {
		t.Fatalf("Error extracting config:%v", err)
	}

	if len(conf.Networks) != 2 || conf.Networks[0].Name != Mainnet {
		t.Fatalf("networks from env did not replace the file ones: %+v", conf.Networks)
	}

	if n, _ := conf.NetworkByName(Testnet); n.Horizon != "http://127.0.0.1:9000" || n.UsdAsset == "" {
		t.Errorf("testnet not decoded with its overrides: %+v", n)
	}
}

func TestNetworksFromEnvInvalid(t *testing.T) {
	t.Setenv("RENTGUARD_NETWORKS", `{"name":"testnet"`)

	if _, err := ExtractConfiguration(""); err == nil {
		t.Errorf("invalid RENTGUARD_NETWORKS accepted")
	}
}
