package channelactions

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoprnet/hopr-chain-core/actionqueue"
	"github.com/hoprnet/hopr-chain-core/redemption"
	"github.com/hoprnet/hopr-chain-core/store"
	"github.com/hoprnet/hopr-chain-core/store/boltstore"
	"github.com/hoprnet/hopr-chain-core/types"
)

type mockSender struct {
	sent []actionqueue.Action
}

func (m *mockSender) Send(action actionqueue.Action) (<-chan actionqueue.Confirmation, <-chan error) {
	m.sent = append(m.sent, action)
	confirmCh := make(chan actionqueue.Confirmation, 1)
	confirmCh <- actionqueue.Confirmation{Action: action}
	return confirmCh, make(chan error, 1)
}

type mockRedeemer struct {
	redeemed []types.Hash
	err      error
}

func (m *mockRedeemer) RedeemTicketsInChannel(_ context.Context, channelID types.Hash) ([]*redemption.PendingRedemption, error) {
	m.redeemed = append(m.redeemed, channelID)
	return nil, m.err
}

func openTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	st, err := boltstore.Open(filepath.Join(t.TempDir(), "chain.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testBalance(t *testing.T, amount int64) types.Balance {
	t.Helper()
	bal, err := types.NewBalance(big.NewInt(amount), types.WxHOPR)
	require.NoError(t, err)
	return bal
}

func TestOpenChannelRejectsSelf(t *testing.T) {
	self := types.Address{1}
	f := New(self, openTestStore(t), &mockSender{}, &mockRedeemer{})

	_, errCh := f.OpenChannel(context.Background(), self, testBalance(t, 10))
	require.Error(t, <-errCh)
}

func TestOpenChannelRejectsExistingOpenChannel(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest, Status: types.ChannelStatus{Kind: types.Open},
	}, store.Snapshot{}))

	f := New(self, st, &mockSender{}, &mockRedeemer{})
	_, errCh := f.OpenChannel(context.Background(), dest, testBalance(t, 10))
	require.Error(t, <-errCh)
}

func TestOpenChannelEmitsOpenChannelAction(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	sender := &mockSender{}
	f := New(self, openTestStore(t), sender, &mockRedeemer{})

	confirmCh, _ := f.OpenChannel(context.Background(), dest, testBalance(t, 10))
	<-confirmCh
	require.Len(t, sender.sent, 1)
	require.IsType(t, actionqueue.OpenChannelAction{}, sender.sent[0])
}

func TestFundChannelRefusesNonexistentChannel(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	f := New(self, openTestStore(t), &mockSender{}, &mockRedeemer{})

	_, errCh := f.FundChannel(context.Background(), dest, testBalance(t, 10))
	require.Error(t, <-errCh)
}

func TestFundChannelRefusesClosedChannel(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest, Status: types.ChannelStatus{Kind: types.Closed},
	}, store.Snapshot{}))

	f := New(self, st, &mockSender{}, &mockRedeemer{})
	_, errCh := f.FundChannel(context.Background(), dest, testBalance(t, 10))
	require.Error(t, <-errCh)
}

func TestCloseChannelOutgoingOpenInitiatesClosure(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest, Status: types.ChannelStatus{Kind: types.Open},
	}, store.Snapshot{}))

	sender := &mockSender{}
	f := New(self, st, sender, &mockRedeemer{})
	confirmCh, _ := f.CloseChannel(context.Background(), dest, types.Outgoing, false)
	<-confirmCh
	require.Len(t, sender.sent, 1)
	action := sender.sent[0].(actionqueue.CloseChannelAction)
	require.False(t, action.Finalize)
}

func TestCloseChannelOutgoingPendingBeforeGraceExpiresFails(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest,
		Status: types.ChannelStatus{Kind: types.PendingToClose, ClosureDeadline: time.Now().Add(time.Hour)},
	}, store.Snapshot{}))

	f := New(self, st, &mockSender{}, &mockRedeemer{})
	_, errCh := f.CloseChannel(context.Background(), dest, types.Outgoing, false)
	require.Error(t, <-errCh)
}

func TestCloseChannelOutgoingPendingAfterGraceFinalizes(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest,
		Status: types.ChannelStatus{Kind: types.PendingToClose, ClosureDeadline: time.Now().Add(-time.Hour)},
	}, store.Snapshot{}))

	sender := &mockSender{}
	f := New(self, st, sender, &mockRedeemer{})
	confirmCh, _ := f.CloseChannel(context.Background(), dest, types.Outgoing, false)
	<-confirmCh
	action := sender.sent[0].(actionqueue.CloseChannelAction)
	require.True(t, action.Finalize)
}

func TestCloseChannelIncomingUsesGetChannelFrom(t *testing.T) {
	self, source := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(source, self)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: source, Destination: self, Status: types.ChannelStatus{Kind: types.Open},
	}, store.Snapshot{}))

	sender := &mockSender{}
	f := New(self, st, sender, &mockRedeemer{})
	confirmCh, _ := f.CloseChannel(context.Background(), source, types.Incoming, false)
	<-confirmCh
	action := sender.sent[0].(actionqueue.CloseChannelAction)
	require.Equal(t, types.Incoming, action.Direction)
}

func TestCloseChannelRedeemBeforeCloseInvokesRedeemer(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest, Status: types.ChannelStatus{Kind: types.Open},
	}, store.Snapshot{}))

	redeemer := &mockRedeemer{}
	sender := &mockSender{}
	f := New(self, st, sender, redeemer)
	confirmCh, _ := f.CloseChannel(context.Background(), dest, types.Outgoing, true)
	<-confirmCh
	require.Len(t, redeemer.redeemed, 1)
	require.Equal(t, channelID, redeemer.redeemed[0])
}

func TestCloseChannelRedeemBeforeCloseAbortsOnFailure(t *testing.T) {
	self, dest := types.Address{1}, types.Address{2}
	st := openTestStore(t)
	channelID := types.ChannelID(self, dest)
	require.NoError(t, st.UpdateChannelAndSnapshot(context.Background(), channelID, &types.ChannelEntry{
		Source: self, Destination: dest, Status: types.ChannelStatus{Kind: types.Open},
	}, store.Snapshot{}))

	redeemer := &mockRedeemer{err: errRedeem}
	sender := &mockSender{}
	f := New(self, st, sender, redeemer)
	_, errCh := f.CloseChannel(context.Background(), dest, types.Outgoing, true)
	require.Error(t, <-errCh)
	require.Empty(t, sender.sent)
}

var errRedeem = &redeemErr{}

type redeemErr struct{}

func (*redeemErr) Error() string { return "redeem failed" }
