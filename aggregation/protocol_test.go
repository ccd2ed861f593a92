package aggregation

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-chain-core/payload"
	"github.com/hoprnet/hopr-chain-core/store/boltstore"
	"github.com/hoprnet/hopr-chain-core/types"
)

func openDomainSeparatorStore(t *testing.T) *boltstore.Store {
	t.Helper()
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.SetDomainSeparator(types.Hash{9}))
	return st
}

func addressOf(t *testing.T, key *ecdsa.PrivateKey) types.Address {
	t.Helper()
	var addr types.Address
	copy(addr[:], crypto.PubkeyToAddress(key.PublicKey).Bytes())
	return addr
}

func signedTicket(t *testing.T, key *ecdsa.PrivateKey, channelID types.Hash, epoch uint32, index uint64, amount int64, domainSeparator types.Hash) types.Ticket {
	t.Helper()
	bal, err := types.NewBalance(big.NewInt(amount), types.WxHOPR)
	require.NoError(t, err)
	ticket := types.Ticket{
		ChannelID:      channelID,
		Amount:         bal,
		Index:          index,
		IndexOffset:    1,
		ChannelEpoch:   epoch,
		EncodedWinProb: [7]byte{1, 2, 3, 4, 5, 6, 7},
	}
	require.NoError(t, payload.SignTicket(&ticket, domainSeparator, key))
	return ticket
}

func TestResponderHandleAggregatesValidBatch(t *testing.T) {
	st := openDomainSeparatorStore(t)
	domainSeparator, err := st.GetChannelsDomainSeparator(context.Background())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	self := addressOf(t, key)
	channelID := types.Hash{1}

	req := AggregationRequest{
		ChannelID: channelID,
		Epoch:     1,
		Tickets: []types.Ticket{
			signedTicket(t, key, channelID, 1, 5, 10, *domainSeparator),
			signedTicket(t, key, channelID, 1, 6, 10, *domainSeparator),
			signedTicket(t, key, channelID, 1, 7, 10, *domainSeparator),
		},
	}

	responder := NewResponder(self, key, st)
	resp, err := responder.Handle(context.Background(), req)
	require.NoError(t, err)
	require.False(t, resp.Rejected)
	require.NotNil(t, resp.Aggregated)

	agg := resp.Aggregated
	require.Equal(t, uint64(5), agg.Index)
	require.Equal(t, uint32(3), agg.IndexOffset)
	require.Equal(t, big.NewInt(30), agg.Amount.Amount())

	verified, err := payload.VerifyTicketSignature(agg, *domainSeparator, self)
	require.NoError(t, err)
	require.True(t, verified)
}

func TestResponderHandleRejectsWrongSigner(t *testing.T) {
	st := openDomainSeparatorStore(t)
	domainSeparator, err := st.GetChannelsDomainSeparator(context.Background())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	self := addressOf(t, key)
	channelID := types.Hash{1}

	req := AggregationRequest{
		ChannelID: channelID,
		Epoch:     1,
		Tickets: []types.Ticket{
			signedTicket(t, other, channelID, 1, 5, 10, *domainSeparator),
			signedTicket(t, other, channelID, 1, 6, 10, *domainSeparator),
		},
	}

	responder := NewResponder(self, key, st)
	resp, err := responder.Handle(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Rejected)
	require.Nil(t, resp.Aggregated)
}

func TestResponderHandleRejectsGapInIndices(t *testing.T) {
	st := openDomainSeparatorStore(t)
	domainSeparator, err := st.GetChannelsDomainSeparator(context.Background())
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	self := addressOf(t, key)
	channelID := types.Hash{1}

	req := AggregationRequest{
		ChannelID: channelID,
		Epoch:     1,
		Tickets: []types.Ticket{
			signedTicket(t, key, channelID, 1, 5, 10, *domainSeparator),
			signedTicket(t, key, channelID, 1, 9, 10, *domainSeparator),
		},
	}

	responder := NewResponder(self, key, st)
	resp, err := responder.Handle(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.Rejected)
}

type fakeTransport struct {
	resp AggregationResponse
	err  error
}

func (f *fakeTransport) SendAggregationRequest(context.Context, types.Address, AggregationRequest) error {
	return nil
}

func (f *fakeTransport) ReceiveAggregationResponse(context.Context, types.Address) (AggregationResponse, error) {
	if f.err != nil {
		return AggregationResponse{}, f.err
	}
	return f.resp, nil
}

func TestTwoPartyProtocolValidatesCounterpartySignature(t *testing.T) {
	st := openDomainSeparatorStore(t)
	domainSeparator, err := st.GetChannelsDomainSeparator(context.Background())
	require.NoError(t, err)

	counterpartyKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	wrongKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	counterparty := addressOf(t, counterpartyKey)
	self := types.Address{1}
	channelID := types.ChannelID(self, counterparty)

	channel := &types.ChannelEntry{Source: self, Destination: counterparty, ChannelEpoch: 1}
	bal, err := types.NewBalance(big.NewInt(20), types.WxHOPR)
	require.NoError(t, err)
	requested := []types.AcknowledgedTicket{
		{Ticket: types.Ticket{ChannelID: channelID, ChannelEpoch: 1, Index: 1, Amount: bal}},
		{Ticket: types.Ticket{ChannelID: channelID, ChannelEpoch: 1, Index: 2, Amount: bal}},
	}

	// Signed by the wrong key: must be rejected even though every other
	// field is well-formed.
	badAgg := &types.Ticket{
		ChannelID: channelID, ChannelEpoch: 1, Index: 1, IndexOffset: 2,
		Amount: func() types.Balance { b, _ := types.NewBalance(big.NewInt(40), types.WxHOPR); return b }(),
	}
	require.NoError(t, payload.SignTicket(badAgg, *domainSeparator, wrongKey))

	p := &twoPartyProtocol{
		transport:        &fakeTransport{resp: AggregationResponse{Aggregated: badAgg}},
		domainSeparators: st,
		heartbeat:        10 * time.Millisecond,
		maxHeartbeats:    2,
	}

	_, err = p.Aggregate(context.Background(), channel, requested)
	require.Error(t, err)
}

func TestTwoPartyProtocolValidatesAmountSum(t *testing.T) {
	st := openDomainSeparatorStore(t)
	domainSeparator, err := st.GetChannelsDomainSeparator(context.Background())
	require.NoError(t, err)

	counterpartyKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	counterparty := addressOf(t, counterpartyKey)
	self := types.Address{1}
	channelID := types.ChannelID(self, counterparty)

	channel := &types.ChannelEntry{Source: self, Destination: counterparty, ChannelEpoch: 1}
	bal, err := types.NewBalance(big.NewInt(20), types.WxHOPR)
	require.NoError(t, err)
	requested := []types.AcknowledgedTicket{
		{Ticket: types.Ticket{ChannelID: channelID, ChannelEpoch: 1, Index: 1, Amount: bal}},
		{Ticket: types.Ticket{ChannelID: channelID, ChannelEpoch: 1, Index: 2, Amount: bal}},
	}

	// Amount is short: 30 instead of the requested sum of 40.
	shortAmount, err := types.NewBalance(big.NewInt(30), types.WxHOPR)
	require.NoError(t, err)
	shortAgg := &types.Ticket{
		ChannelID: channelID, ChannelEpoch: 1, Index: 1, IndexOffset: 2,
		Amount: shortAmount,
	}
	require.NoError(t, payload.SignTicket(shortAgg, *domainSeparator, counterpartyKey))

	p := &twoPartyProtocol{
		transport:        &fakeTransport{resp: AggregationResponse{Aggregated: shortAgg}},
		domainSeparators: st,
		heartbeat:        10 * time.Millisecond,
		maxHeartbeats:    2,
	}

	_, err = p.Aggregate(context.Background(), channel, requested)
	require.Error(t, err)
}

func TestTwoPartyProtocolAcceptsValidCounterpartyReply(t *testing.T) {
	st := openDomainSeparatorStore(t)
	domainSeparator, err := st.GetChannelsDomainSeparator(context.Background())
	require.NoError(t, err)

	counterpartyKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	counterparty := addressOf(t, counterpartyKey)
	self := types.Address{1}
	channelID := types.ChannelID(self, counterparty)

	channel := &types.ChannelEntry{Source: self, Destination: counterparty, ChannelEpoch: 1}
	bal, err := types.NewBalance(big.NewInt(20), types.WxHOPR)
	require.NoError(t, err)
	requested := []types.AcknowledgedTicket{
		{Ticket: types.Ticket{ChannelID: channelID, ChannelEpoch: 1, Index: 1, Amount: bal}},
		{Ticket: types.Ticket{ChannelID: channelID, ChannelEpoch: 1, Index: 2, Amount: bal}},
	}

	wantAmount, err := types.NewBalance(big.NewInt(40), types.WxHOPR)
	require.NoError(t, err)
	agg := &types.Ticket{
		ChannelID: channelID, ChannelEpoch: 1, Index: 1, IndexOffset: 2,
		Amount: wantAmount,
	}
	require.NoError(t, payload.SignTicket(agg, *domainSeparator, counterpartyKey))

	p := &twoPartyProtocol{
		transport:        &fakeTransport{resp: AggregationResponse{Aggregated: agg}},
		domainSeparators: st,
		heartbeat:        10 * time.Millisecond,
		maxHeartbeats:    2,
	}

	result, err := p.Aggregate(context.Background(), channel, requested)
	require.NoError(t, err)
	require.Equal(t, types.Untouched, result.Status)
	require.Equal(t, agg.Index, result.Ticket.Index)
}
