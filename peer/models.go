package peer

import "time"

// Peer is a wallet-identified trading participant. It mirrors the peers
// table and carries no JSON annotations so it can be reused by different
// presentation layers.
type Peer struct {
	ID         string
	WalletHash string
	PublicKey  string
	Address    string
	SecretHash string
	IsArbiter  bool
	CreatedAt  time.Time
}

// PaymentMethod is a fiat payment channel owned by a peer.
type PaymentMethod struct {
	ID        string
	OwnerID   string
	Label     string
	CreatedAt time.Time
}

// RegisterRequest contains the data a peer supplies when enrolling.
type RegisterRequest struct {
	WalletHash string `json:"wallet_hash"`
	PublicKey  string `json:"public_key"`
	Address    string `json:"address"`
	Secret     string `json:"secret"`
	IsArbiter  bool   `json:"is_arbiter"`
}

// LoginRequest contains a peer's credentials.
type LoginRequest struct {
	WalletHash string `json:"wallet_hash"`
	Secret     string `json:"secret"`
}
