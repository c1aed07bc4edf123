package domain

import "github.com/shopspring/decimal"

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

type WalletState struct {
	Connected bool             `json:"connected"`
	Address   string           `json:"address"`
	Balance   decimal.Decimal  `json:"balance"`
	Status    ConnectionStatus `json:"status"`
}

// DisconnectedWallet is the initial session state.
func DisconnectedWallet() WalletState {
	return WalletState{Balance: decimal.Zero, Status: StatusDisconnected}
}
