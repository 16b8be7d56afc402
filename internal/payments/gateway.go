package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrPaymentDeclined is a terminal gateway rejection; the hold is released
var ErrPaymentDeclined = errors.New("payment declined by gateway")

// ErrPaymentTimeout means the gateway did not answer in time; treated as failure
var ErrPaymentTimeout = errors.New("payment gateway timed out")

// Receipt is the gateway's proof of a successful charge
type Receipt struct {
	PaymentRef string    `json:"payment_ref"`
	ChargedAt  time.Time `json:"charged_at"`
}

// Gateway is the opaque external payment service. The engine only ever sees a
// terminal outcome or a timeout; protocol details live on the other side.
type Gateway interface {
	Charge(ctx context.Context, amount float64, method string) (*Receipt, error)
}

// SimulatedGateway is the development/test double. Outcomes are deterministic
// from the payment method string so tests can force each path:
//
//	"declined-..." -> ErrPaymentDeclined
//	"slow-..."     -> blocks until the context deadline (ErrPaymentTimeout)
//	anything else  -> success with a generated payment ref
type SimulatedGateway struct {
	// Latency is added to every call before the outcome resolves
	Latency time.Duration
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Charge(ctx context.Context, amount float64, method string) (*Receipt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid charge amount %.2f", amount)
	}

	if strings.HasPrefix(method, "slow-") {
		<-ctx.Done()
		return nil, ErrPaymentTimeout
	}

	if g.Latency > 0 {
		select {
		case <-time.After(g.Latency):
		case <-ctx.Done():
			return nil, ErrPaymentTimeout
		}
	}

	if strings.HasPrefix(method, "declined-") {
		return nil, ErrPaymentDeclined
	}

	return &Receipt{
		PaymentRef: "pay_" + uuid.NewString(),
		ChargedAt:  time.Now().UTC(),
	}, nil
}
