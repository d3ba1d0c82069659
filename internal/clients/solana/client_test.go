package solana

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/warden/internal/domain"
	"github.com/blocto/solana-go-sdk/client"
	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// MockRPC is a mock implementation of the rpc interface
type MockRPC struct {
	mock.Mock
}

func (m *MockRPC) GetBalance(ctx context.Context, addr string) (uint64, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRPC) GetTokenAccountsByOwnerByProgram(ctx context.Context, owner, program string) ([]client.TokenAccount, error) {
	args := m.Called(ctx, owner, program)
	accounts, _ := args.Get(0).([]client.TokenAccount)
	return accounts, args.Error(1)
}

func (m *MockRPC) GetAccountInfo(ctx context.Context, addr string) (client.AccountInfo, error) {
	args := m.Called(ctx, addr)
	info, _ := args.Get(0).(client.AccountInfo)
	return info, args.Error(1)
}

// mintData builds a minimal initialized SPL mint account
func mintData(decimals uint8) []byte {
	data := make([]byte, token.MintAccountSize)
	data[44] = decimals
	data[45] = 1
	return data
}

func tokenAccount(mint string, amount uint64) client.TokenAccount {
	return client.TokenAccount{
		TokenAccount: token.TokenAccount{
			Mint:   common.PublicKeyFromString(mint),
			Owner:  common.PublicKeyFromString(testWallet),
			Amount: amount,
		},
	}
}

func TestFetchHoldings(t *testing.T) {
	rpc := &MockRPC{}
	rpc.On("GetBalance", mock.Anything, testWallet).Return(uint64(2_000_000_000), nil)
	rpc.On("GetTokenAccountsByOwnerByProgram", mock.Anything, testWallet, common.TokenProgramID.ToBase58()).
		Return([]client.TokenAccount{
			tokenAccount(domain.USDCMint, 5_000_000),
			tokenAccount(domain.JLPMint, 0),
			tokenAccount(domain.USDCMint, 1_000_000),
		}, nil)
	rpc.On("GetAccountInfo", mock.Anything, domain.USDCMint).
		Return(client.AccountInfo{Data: mintData(6)}, nil).Once()

	c := newClient(rpc, nil, zerolog.Nop())

	raw, err := c.FetchHoldings(context.Background(), testWallet)
	require.NoError(t, err)

	assert.Equal(t, uint64(2_000_000_000), raw.NativeLamports)
	require.Len(t, raw.TokenAccounts, 2)
	assert.Equal(t, domain.USDCMint, raw.TokenAccounts[0].Mint)
	assert.Equal(t, "USDC", raw.TokenAccounts[0].Symbol)
	assert.Equal(t, uint8(6), raw.TokenAccounts[0].Decimals)
	assert.Equal(t, uint64(5_000_000), raw.TokenAccounts[0].Amount)

	// decimals looked up once for the repeated mint, never for the empty account
	rpc.AssertNumberOfCalls(t, "GetAccountInfo", 1)
}

func TestFetchHoldings_RPCFailure(t *testing.T) {
	rpc := &MockRPC{}
	rpc.On("GetBalance", mock.Anything, testWallet).Return(uint64(0), errors.New("connection refused"))

	c := newClient(rpc, nil, zerolog.Nop())

	_, err := c.FetchHoldings(context.Background(), testWallet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
}

func TestFetchHoldings_BadMintAccount(t *testing.T) {
	rpc := &MockRPC{}
	rpc.On("GetBalance", mock.Anything, testWallet).Return(uint64(1), nil)
	rpc.On("GetTokenAccountsByOwnerByProgram", mock.Anything, testWallet, mock.Anything).
		Return([]client.TokenAccount{tokenAccount(domain.JLPMint, 10)}, nil)
	rpc.On("GetAccountInfo", mock.Anything, domain.JLPMint).
		Return(client.AccountInfo{Data: []byte{1, 2, 3}}, nil)

	c := newClient(rpc, nil, zerolog.Nop())

	_, err := c.FetchHoldings(context.Background(), testWallet)
	assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))
}
