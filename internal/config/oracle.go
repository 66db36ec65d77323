package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type OracleConfig struct {
	HermesURL      string
	RequestTimeout time.Duration
	// UpdateFee is paid per posted attestation, in MIST split from gas.
	UpdateFee uint64
}

func (c *OracleConfig) Key() string {
	return ORACLE_CONFIG_KEY
}

func (c *OracleConfig) Load() error {
	c.HermesURL = common.GetEnvOrDefault("HERMES_URL", "https://hermes.pyth.network")
	c.RequestTimeout = time.Duration(common.GetEnvOrDefaultInt("HERMES_TIMEOUT_MS", 3000)) * time.Millisecond
	c.UpdateFee = uint64(common.GetEnvOrDefaultInt("PYTH_UPDATE_FEE", 1))
	return c.Validate()
}

func (c *OracleConfig) Validate() error {
	if c.HermesURL == "" {
		return errors.New("invalid oracle config: HERMES_URL is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("invalid oracle config: timeout must be positive")
	}
	return nil
}
