package payload

import (
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-chain-core/config"
	"github.com/hoprnet/hopr-chain-core/types"
)

func testBalance(t *testing.T, amount int64) types.Balance {
	t.Helper()
	bal, err := types.NewBalance(big.NewInt(amount), types.WxHOPR)
	require.NoError(t, err)
	return bal
}

func testAddress(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

func testHash(b byte) types.Hash {
	var h types.Hash
	h[len(h)-1] = b
	return h
}

func basicConfig() config.PayloadGeneratorConfig {
	return config.PayloadGeneratorConfig{
		ContractAddresses: config.ContractAddresses{
			Token:            testAddress(1),
			Channels:         testAddress(2),
			Announcements:    testAddress(3),
			NodeSafeRegistry: testAddress(4),
		},
		ChainID:       100,
		UseSafe:       false,
		DefaultGasLimit: config.DefaultGasLimit,
	}
}

func safeConfig() config.PayloadGeneratorConfig {
	cfg := basicConfig()
	cfg.UseSafe = true
	cfg.ModuleAddress = testAddress(9)
	return cfg
}

func TestGeneratorBuildFundChannelBasic(t *testing.T) {
	gen, err := NewGenerator(basicConfig())
	require.NoError(t, err)

	intent := FundChannel{Destination: testAddress(5), Amount: testBalance(t, 1000)}
	tx, err := gen.Build(intent, 0, FeeParameters{GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2)})
	require.NoError(t, err)
	require.Equal(t, testAddress(2), types.Address(*tx.To()))

	require.True(t, len(tx.Data()) >= 4)
	require.Equal(t, methods.fundChannel.ID, tx.Data()[:4])

	args, err := methods.fundChannel.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, args, 2)
}

func TestGeneratorBuildFundChannelSafe(t *testing.T) {
	cfg := safeConfig()
	gen, err := NewGenerator(cfg)
	require.NoError(t, err)

	intent := FundChannel{Destination: testAddress(5), Amount: testBalance(t, 1000)}
	tx, err := gen.Build(intent, 3, FeeParameters{GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2)})
	require.NoError(t, err)

	require.Equal(t, cfg.ModuleAddress, types.Address(*tx.To()))
	require.Equal(t, methods.execTransactionFromModule.ID, tx.Data()[:4])

	outerArgs, err := methods.execTransactionFromModule.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Len(t, outerArgs, 4)

	innerData, ok := outerArgs[2].([]byte)
	require.True(t, ok)
	require.Equal(t, methods.fundChannelSafe.ID, innerData[:4])
}

func TestGeneratorDeregisterRequiresSafeMode(t *testing.T) {
	gen, err := NewGenerator(basicConfig())
	require.NoError(t, err)

	_, err = gen.Build(DeregisterNodeBySafe{}, 0, FeeParameters{GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2)})
	require.Error(t, err)
}

func TestPackRedeemTicketRoundTrips(t *testing.T) {
	rt := RedeemableTicket{
		ChannelID:      testHash(7),
		Amount:         testBalance(t, 42),
		Index:          1,
		IndexOffset:    1,
		ChannelEpoch:   2,
		EncodedWinProb: [7]byte{1, 2, 3, 4, 5, 6, 7},
		SignatureR:     [32]byte{1},
		SignatureVS:    [32]byte{2},
		PorSecret:      [32]byte{3},
		VRF: OnChainVRFParameters{
			Vx: [32]byte{1}, Vy: [32]byte{2}, S: [32]byte{3}, H: [32]byte{4},
			SBx: [32]byte{5}, SBy: [32]byte{6}, HVx: [32]byte{7}, HVy: [32]byte{8},
		},
	}

	data, err := packRedeemTicket(rt, false, types.Address{})
	require.NoError(t, err)
	require.Equal(t, methods.redeemTicket.ID, data[:4])

	_, err = methods.redeemTicket.Inputs.Unpack(data[4:])
	require.NoError(t, err)
}

func TestTransformVRFParametersRejectsZeroContext(t *testing.T) {
	proof := OffChainVRFOutput{
		V: &secp256k1.JacobianPoint{},
		H: &secp256k1.ModNScalar{},
		S: &secp256k1.ModNScalar{},
	}
	_, err := TransformVRFParameters(proof, types.Address{}, testHash(1), testHash(2))
	require.Error(t, err)
}

func TestTransformVRFParametersComputesWitnessPoints(t *testing.T) {
	var h, s secp256k1.ModNScalar
	h.SetInt(3)
	s.SetInt(5)

	var v secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&s, &v)

	proof := OffChainVRFOutput{V: &v, H: &h, S: &s}
	params, err := TransformVRFParameters(proof, testAddress(1), testHash(1), testHash(2))
	require.NoError(t, err)
	require.NotEqual(t, [32]byte{}, params.SBx)
	require.NotEqual(t, [32]byte{}, params.HVx)
}
