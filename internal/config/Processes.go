package config

import (
	"github.com/rs/zerolog/log"
)

// Per-process configuration loaded from environment variables.
var (
	// AddressesFile is the tracked user universe, one hex address per line.
	AddressesFile string
	// ChainlinkAddressesFile is the CSV mapping reserves to aggregators and forwarders.
	ChainlinkAddressesFile string
	// FoxdieAddress is the deployed liquidation executor contract.
	FoxdieAddress string
	// FoxdieOwnerPK is the hex private key of the EOA allowed to trigger liquidations.
	FoxdieOwnerPK string
	// BuilderRegistrationFile lists the builders bundles are shared with.
	BuilderRegistrationFile string
	// DatabaseURL is the optional trace stats sink. Empty disables the sink.
	DatabaseURL string
)

// LoadScoutConfig loads everything the mempool scout needs.
func LoadScoutConfig() error {
	if err := loadCommonConfig(); err != nil {
		return err
	}

	var err error
	ChainlinkAddressesFile, err = getEnv("VEGA_CHAINLINK_ADDRESSES_FILE")
	if err != nil {
		return err
	}
	if err := requireFile("VEGA_CHAINLINK_ADDRESSES_FILE", ChainlinkAddressesFile); err != nil {
		return err
	}

	DatabaseURL = getEnvWithDefault("DATABASE_URL", "")

	log.Debug().Str("ChainlinkAddressesFile", ChainlinkAddressesFile).Msg("Scout configuration loaded successfully.")
	return nil
}

// LoadListenerConfig loads everything the event listener needs.
func LoadListenerConfig() error {
	if err := loadCommonConfig(); err != nil {
		return err
	}

	log.Debug().Msg("Listener configuration loaded successfully.")
	return nil
}

// LoadBrainConfig loads everything the position engine needs.
func LoadBrainConfig() error {
	if err := loadCommonConfig(); err != nil {
		return err
	}

	var err error
	AddressesFile, err = getEnv("VEGA_ADDRESSES_FILE")
	if err != nil {
		return err
	}
	if err := requireFile("VEGA_ADDRESSES_FILE", AddressesFile); err != nil {
		return err
	}

	ChainlinkAddressesFile, err = getEnv("VEGA_CHAINLINK_ADDRESSES_FILE")
	if err != nil {
		return err
	}
	if err := requireFile("VEGA_CHAINLINK_ADDRESSES_FILE", ChainlinkAddressesFile); err != nil {
		return err
	}

	DatabaseURL = getEnvWithDefault("DATABASE_URL", "")

	log.Debug().
		Str("AddressesFile", AddressesFile).
		Str("ChainlinkAddressesFile", ChainlinkAddressesFile).
		Msg("Brain configuration loaded successfully.")
	return nil
}

// LoadLiquidatorConfig loads everything the liquidation planner needs.
func LoadLiquidatorConfig() error {
	if err := loadCommonConfig(); err != nil {
		return err
	}

	var err error
	FoxdieAddress, err = getEnv("FOXDIE_ADDRESS")
	if err != nil {
		return err
	}

	FoxdieOwnerPK, err = getEnv("FOXDIE_OWNER_PK")
	if err != nil {
		return err
	}

	BuilderRegistrationFile, err = getEnv("BUILDER_REGISTRATION_FILE_PATH")
	if err != nil {
		return err
	}
	if err := requireFile("BUILDER_REGISTRATION_FILE_PATH", BuilderRegistrationFile); err != nil {
		return err
	}

	DatabaseURL = getEnvWithDefault("DATABASE_URL", "")

	log.Debug().
		Str("FoxdieAddress", FoxdieAddress).
		Str("BuilderRegistrationFile", BuilderRegistrationFile).
		Msg("Liquidator configuration loaded successfully.")
	return nil
}
