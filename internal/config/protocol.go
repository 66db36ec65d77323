package config

import (
	"errors"
	"os"
	"slices"

	"github.com/hxuan190/steamm-router/internal/services/builder"
)

// ProtocolConfig locates the on-chain packages and shared singletons. There
// are no defaults; deployments differ per network.
type ProtocolConfig struct {
	SteammPackage  string
	ScriptsPackage string
	OraclesPackage string
	OracleRegistry string
	PythPackage    string
	PythState      string
	WormholeState  string
}

func (p *ProtocolConfig) Key() string {
	return PROTOCOL_CONFIG_KEY
}

func (p *ProtocolConfig) Load() error {
	p.SteammPackage = os.Getenv("STEAMM_PACKAGE")
	p.ScriptsPackage = os.Getenv("STEAMM_SCRIPTS_PACKAGE")
	p.OraclesPackage = os.Getenv("ORACLES_PACKAGE")
	p.OracleRegistry = os.Getenv("ORACLE_REGISTRY_ID")
	p.PythPackage = os.Getenv("PYTH_PACKAGE")
	p.PythState = os.Getenv("PYTH_STATE_ID")
	p.WormholeState = os.Getenv("WORMHOLE_STATE_ID")
	return nil
}

func (p *ProtocolConfig) Validate() error {
	if slices.Contains([]string{p.SteammPackage, p.ScriptsPackage, p.OraclesPackage, p.OracleRegistry}, "") {
		return errors.New("invalid protocol config")
	}
	return nil
}

func (p *ProtocolConfig) Packages() builder.Packages {
	return builder.Packages{
		Steamm:         p.SteammPackage,
		Scripts:        p.ScriptsPackage,
		Oracles:        p.OraclesPackage,
		OracleRegistry: p.OracleRegistry,
		Pyth:           p.PythPackage,
		PythState:      p.PythState,
		WormholeState:  p.WormholeState,
	}
}
