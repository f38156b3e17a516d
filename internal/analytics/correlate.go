package analytics

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/curve"
	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// CorrelateInput is everything Correlate needs for one token and window.
type CorrelateInput struct {
	TokenTransfers   []model.TransferEvent
	PaymentTransfers []model.TransferEvent
	BondingCurve     common.Address
	// FeeAddress is ignored when zero.
	FeeAddress      common.Address
	TokenDecimals   uint8
	PaymentDecimals uint8
	Timestamps      map[uint64]time.Time
}

// paymentFlow is the per-transaction payment aggregate relative to the curve.
type paymentFlow struct {
	buyAmount  *big.Int
	sellAmount *big.Int
}

func newPaymentFlow() *paymentFlow {
	return &paymentFlow{buyAmount: big.NewInt(0), sellAmount: big.NewInt(0)}
}

// Correlate joins payment transfers to token transfers by transaction hash.
//
// Payment into the curve counts as buyAmount and payment out of it as sellAmount;
// transfers touching the fee address never count. A token transfer from the curve
// is a sell, one into the curve is a buy. Tokens and payment settle in opposite
// directions, so tokens leaving the curve are priced by buyAmount and tokens
// entering it by sellAmount. Trades without a positive price are dropped.
func Correlate(in CorrelateInput) []model.CorrelatedTrade {
	flows := aggregatePayments(in)

	trades := make([]model.CorrelatedTrade, 0)
	for _, transfer := range in.TokenTransfers {
		var (
			direction model.Direction
			trader    common.Address
		)
		switch {
		case transfer.From == in.BondingCurve && transfer.To == in.BondingCurve:
			continue
		case transfer.From == in.BondingCurve:
			direction = model.DirectionSell
			trader = transfer.To
		case transfer.To == in.BondingCurve:
			direction = model.DirectionBuy
			trader = transfer.From
		default:
			continue
		}

		tokenAmount := curve.ToFloat(transfer.Amount, in.TokenDecimals)
		if tokenAmount <= 0 {
			continue
		}

		var payment *big.Int
		if flow, ok := flows[transfer.TxHash]; ok {
			if direction == model.DirectionSell {
				payment = flow.buyAmount
			} else {
				payment = flow.sellAmount
			}
		}
		paymentAmount := curve.ToFloat(payment, in.PaymentDecimals)

		price := paymentAmount / tokenAmount
		if price <= 0 {
			continue
		}

		trades = append(trades, model.CorrelatedTrade{
			TxHash:        transfer.TxHash,
			Timestamp:     in.Timestamps[transfer.BlockNumber],
			Direction:     direction,
			Trader:        trader,
			TokenAmount:   tokenAmount,
			PaymentAmount: paymentAmount,
			PricePerToken: price,
		})
	}
	return trades
}

func aggregatePayments(in CorrelateInput) map[common.Hash]*paymentFlow {
	flows := make(map[common.Hash]*paymentFlow)
	hasFee := in.FeeAddress != (common.Address{})

	for _, transfer := range in.PaymentTransfers {
		if transfer.Amount == nil {
			continue
		}
		if hasFee && (transfer.From == in.FeeAddress || transfer.To == in.FeeAddress) {
			continue
		}
		into := transfer.To == in.BondingCurve
		outOf := transfer.From == in.BondingCurve
		if into == outOf {
			continue
		}

		flow, ok := flows[transfer.TxHash]
		if !ok {
			flow = newPaymentFlow()
			flows[transfer.TxHash] = flow
		}
		if into {
			flow.buyAmount.Add(flow.buyAmount, transfer.Amount)
		} else {
			flow.sellAmount.Add(flow.sellAmount, transfer.Amount)
		}
	}
	return flows
}
