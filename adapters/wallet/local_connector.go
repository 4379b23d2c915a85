// Package wallet provides WalletConnector implementations. The local
// connector holds its own key and stands in for a browser wallet in
// the dev binary and in tests.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"sync"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/internal/ethutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalConnector signs personal_sign messages with an in-process
// secp256k1 key.
type LocalConnector struct {
	key *ecdsa.PrivateKey

	mu     sync.RWMutex
	status core.WalletStatus
}

// NewLocalConnector creates a connector for key.
func NewLocalConnector(key *ecdsa.PrivateKey) *LocalConnector {
	return &LocalConnector{
		key: key,
		status: core.WalletStatus{
			Address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		},
	}
}

// Connect marks the wallet connected.
func (c *LocalConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Connected = true
	c.status.Connecting = false
	c.status.Reconnecting = false
	return nil
}

// Disconnect marks the wallet disconnected.
func (c *LocalConnector) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Connected = false
	c.status.Connecting = false
	c.status.Reconnecting = false
	return nil
}

// SetReconnecting flags a reconnection in progress, as a browser
// wallet does while a page reload re-establishes its transport.
func (c *LocalConnector) SetReconnecting(reconnecting bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Reconnecting = reconnecting
}

// SignMessage signs msg with the personal_sign scheme.
func (c *LocalConnector) SignMessage(ctx context.Context, msg string) (string, error) {
	c.mu.RLock()
	connected := c.status.Connected
	c.mu.RUnlock()
	if !connected {
		return "", core.Authf(nil, "wallet not connected")
	}
	return ethutil.SignPersonal([]byte(msg), c.key)
}

// Status returns a snapshot of the connection state.
func (c *LocalConnector) Status() core.WalletStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
