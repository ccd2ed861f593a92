package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-chain-core/types"
)

func TestDefaultAggregationStrategyConfigValid(t *testing.T) {
	require.NoError(t, DefaultAggregationStrategyConfig().Validate())
}

func TestAggregationStrategyConfigRejectsOutOfRangeRatio(t *testing.T) {
	cfg := DefaultAggregationStrategyConfig()
	bad := float32(1.5)
	cfg.UnrealizedBalanceRatio = &bad
	require.Error(t, cfg.Validate())
}

func TestAggregationStrategyConfigRequiresAtLeastOnePredicate(t *testing.T) {
	cfg := DefaultAggregationStrategyConfig()
	cfg.AggregationThreshold = nil
	cfg.UnrealizedBalanceRatio = nil
	require.Error(t, cfg.Validate())
}

func TestDefaultActionQueueConfigValid(t *testing.T) {
	require.NoError(t, DefaultActionQueueConfig().Validate())
}

func TestActionQueueConfigRejectsNegativeDepth(t *testing.T) {
	cfg := DefaultActionQueueConfig()
	cfg.MaxQueueDepth = -1
	require.Error(t, cfg.Validate())
}

func TestDefaultAggregationProtocolConfigValid(t *testing.T) {
	require.NoError(t, DefaultAggregationProtocolConfig().Validate())
}

func TestAggregationProtocolConfigRejectsZeroHeartbeat(t *testing.T) {
	cfg := DefaultAggregationProtocolConfig()
	cfg.Heartbeat = 0
	require.Error(t, cfg.Validate())
}

func TestPayloadGeneratorConfigRequiresModuleAddressInSafeMode(t *testing.T) {
	cfg := PayloadGeneratorConfig{
		ContractAddresses: ContractAddresses{
			Token:    types.Address{1},
			Channels: types.Address{2},
		},
		ChainID:         100,
		UseSafe:         true,
		DefaultGasLimit: DefaultGasLimit,
	}
	require.Error(t, cfg.Validate())

	cfg.ModuleAddress = types.Address{3}
	require.NoError(t, cfg.Validate())
}

func TestPayloadGeneratorConfigRequiresContractAddresses(t *testing.T) {
	cfg := PayloadGeneratorConfig{ChainID: 100, DefaultGasLimit: DefaultGasLimit}
	require.Error(t, cfg.Validate())
}
