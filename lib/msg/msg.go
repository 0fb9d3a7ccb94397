// Package msg defines the interface for different message brokers.
package msg

import (
	"sync"
	"time"
)

// PaymentEvent is published every time a rent payment accepted by the ledger is recorded against a rental.
type PaymentEvent struct {
	Net        string    `json:"net"`
	RentalID   string    `json:"rentalId"`
	PropertyID string    `json:"propertyId"`
	PaymentID  string    `json:"paymentId"`
	Tenant     string    `json:"tenantPublicKey"`
	Landlord   string    `json:"landlordPublicKey"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Hash       string    `json:"transactionHash"`
	Memo       string    `json:"memo"`
	Timestamp  time.Time `json:"timestamp"`
}

// MsgBroker publishes and consumes payment events per network.
type MsgBroker interface {
	Setup() error
	Close() error

	SendPayment(net string, e PaymentEvent) error
	// GetPayments consumes the payment events of the network. Each event is acknowledged once the receiver unlocks
	// mut, which must be handed in locked.
	GetPayments(net string, mut *sync.Mutex) (<-chan PaymentEvent, <-chan error, error)
}
