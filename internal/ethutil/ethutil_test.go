package ethutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecoverRoundtrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	msg := []byte("nonce-abc-123")
	sig, err := SignPersonal(msg, key)
	require.NoError(t, err)

	got, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// A different message recovers a different address.
	other, err := RecoverPersonal([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, want, other)
}

func TestRecoverPersonalAcceptsRawRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	msg := []byte("hello")
	raw, err := crypto.Sign(PersonalSignHash(msg).Bytes(), key)
	require.NoError(t, err)
	require.True(t, raw[64] < 27)

	got, err := RecoverPersonal(msg, hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecoverPersonalRejectsGarbage(t *testing.T) {
	_, err := RecoverPersonal([]byte("m"), "not-hex")
	assert.Error(t, err)

	_, err = RecoverPersonal([]byte("m"), "0x1234")
	assert.Error(t, err)
}

func TestSignatureUsesEthereumVRange(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := SignPersonal([]byte("m"), key)
	require.NoError(t, err)

	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	require.Len(t, raw, 65)
	assert.True(t, raw[64] == 27 || raw[64] == 28)
}

func TestErc20TransferData(t *testing.T) {
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := Erc20TransferData(to, big.NewInt(1000))
	require.NoError(t, err)
	// transfer(address,uint256)
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, data[:4])
	assert.Len(t, data, 4+32+32)
}

func TestErc721TransferData(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := Erc721TransferData(from, to, big.NewInt(7))
	require.NoError(t, err)
	// safeTransferFrom(address,address,uint256)
	assert.Equal(t, []byte{0x42, 0x84, 0x2e, 0x0e}, data[:4])
	assert.Len(t, data, 4+32*3)
}

func TestRegisterEmailData(t *testing.T) {
	data, err := RegisterEmailData("alice@dexmail.app")
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("registerEmailWithEmbeddedWallet(string)"))[:4]
	assert.Equal(t, selector, data[:4])
}

func TestToWei(t *testing.T) {
	assert.Equal(t, "1000000000000000000", ToWei(decimal.RequireFromString("1"), 18).String())
	assert.Equal(t, "1500000000000000000", ToWei(decimal.RequireFromString("1.5"), 18).String())
	assert.Equal(t, "2500000", ToWei(decimal.RequireFromString("2.5"), 6).String())
	assert.Equal(t, "0", ToWei(decimal.Zero, 18).String())
}
