// Package ethutil holds the small amount of Ethereum plumbing the
// client needs: EIP-191 personal_sign hashing, signing and recovery,
// and calldata packing for transfer payloads.
package ethutil

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const transferABI = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},
	{"name":"safeTransferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}]},
	{"name":"registerEmailWithEmbeddedWallet","type":"function","inputs":[{"name":"email","type":"string"}]}
]`

var callABI abi.ABI

func init() {
	var err error
	callABI, err = abi.JSON(strings.NewReader(transferABI))
	if err != nil {
		panic(err)
	}
}

// PersonalSignHash returns the EIP-191 digest of msg:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func PersonalSignHash(msg []byte) common.Hash {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256Hash(append([]byte(prefix), msg...))
}

// SignPersonal signs msg with key using the personal_sign scheme and
// returns the 65-byte hex signature with the recovery id shifted to
// 27/28 for Ethereum compatibility.
func SignPersonal(msg []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(PersonalSignHash(msg).Bytes(), key)
	if err != nil {
		return "", err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}

// RecoverPersonal recovers the signer address of a personal_sign
// signature over msg. Accepts recovery ids of both 0/1 and 27/28.
func RecoverPersonal(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	// crypto.SigToPub wants the recovery id in its raw 0/1 form.
	cp := make([]byte, 65)
	copy(cp, sig)
	if cp[64] >= 27 {
		cp[64] -= 27
	}
	pub, err := crypto.SigToPub(PersonalSignHash(msg).Bytes(), cp)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Erc20TransferData packs transfer(to, amount) calldata.
func Erc20TransferData(to common.Address, amount *big.Int) ([]byte, error) {
	return callABI.Pack("transfer", to, amount)
}

// Erc721TransferData packs safeTransferFrom(from, to, tokenId) calldata.
func Erc721TransferData(from, to common.Address, tokenID *big.Int) ([]byte, error) {
	return callABI.Pack("safeTransferFrom", from, to, tokenID)
}

// RegisterEmailData packs registerEmailWithEmbeddedWallet(email)
// calldata for the on-chain registry call made during embedded
// registration.
func RegisterEmailData(email string) ([]byte, error) {
	return callABI.Pack("registerEmailWithEmbeddedWallet", email)
}

// ToWei converts a human-readable amount to base units with the given
// number of decimals (18 for the native asset and most ERC-20s).
func ToWei(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).BigInt()
}
