package analytics

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

var (
	songToken    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	paymentToken = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	bondingCurve = common.HexToAddress("0x1111111111111111111111111111111111111111")
	feeAddress   = common.HexToAddress("0xfeefeefeefeefeefeefeefeefeefeefeefeefee0")
	alice        = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bob          = common.HexToAddress("0x3333333333333333333333333333333333333333")

	t0 = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(30 * time.Minute)
)

func transfer(contract, from, to common.Address, amount int64, tx string, block uint64) model.TransferEvent {
	return model.TransferEvent{
		Contract:    contract,
		From:        from,
		To:          to,
		Amount:      big.NewInt(amount),
		TxHash:      common.HexToHash(tx),
		BlockNumber: block,
	}
}

// twoTrades is alice receiving 100 tokens for 1000 payment units at t0 and bob
// returning 50 tokens for 600 at t1. Tokens and payment move in opposite directions.
func twoTrades() CorrelateInput {
	return CorrelateInput{
		TokenTransfers: []model.TransferEvent{
			transfer(songToken, bondingCurve, alice, 100, "0x01", 10),
			transfer(songToken, bob, bondingCurve, 50, "0x02", 20),
		},
		PaymentTransfers: []model.TransferEvent{
			transfer(paymentToken, alice, bondingCurve, 1000, "0x01", 10),
			transfer(paymentToken, bondingCurve, bob, 600, "0x02", 20),
		},
		BondingCurve: bondingCurve,
		FeeAddress:   feeAddress,
		Timestamps:   map[uint64]time.Time{10: t0, 20: t1},
	}
}

func TestCorrelateOppositeFlows(t *testing.T) {
	trades := Correlate(twoTrades())
	require.Len(t, trades, 2)

	assert.Equal(t, model.DirectionSell, trades[0].Direction, "curve sends the token")
	assert.Equal(t, alice, trades[0].Trader)
	assert.Equal(t, 100.0, trades[0].TokenAmount)
	assert.Equal(t, 1000.0, trades[0].PaymentAmount, "priced by payment into the curve")
	assert.Equal(t, 10.0, trades[0].PricePerToken)
	assert.Equal(t, t0, trades[0].Timestamp)

	assert.Equal(t, model.DirectionBuy, trades[1].Direction, "curve receives the token")
	assert.Equal(t, bob, trades[1].Trader)
	assert.Equal(t, 600.0, trades[1].PaymentAmount, "priced by payment out of the curve")
	assert.Equal(t, 12.0, trades[1].PricePerToken)
	assert.Equal(t, t1, trades[1].Timestamp)
}

func TestCorrelateTwoTradeSeries(t *testing.T) {
	series := BuildSeries(Correlate(twoTrades()), nil, DefaultMaxPoints)

	require.Len(t, series.Points, 2)
	assert.Equal(t, 10.0, series.Points[0].Price)
	assert.Equal(t, 12.0, series.Points[1].Price)
	assert.InDelta(t, 20.0, series.PercentChange, 1e-9)
	assert.Equal(t, 1600.0, series.Volume)
}

func TestCorrelateIgnoresSameDirectionPayment(t *testing.T) {
	in := CorrelateInput{
		TokenTransfers: []model.TransferEvent{
			transfer(songToken, bondingCurve, alice, 100, "0x01", 10),
			transfer(songToken, bob, bondingCurve, 50, "0x02", 20),
		},
		PaymentTransfers: []model.TransferEvent{
			transfer(paymentToken, bondingCurve, alice, 1000, "0x01", 10),
			transfer(paymentToken, bob, bondingCurve, 600, "0x02", 20),
		},
		BondingCurve: bondingCurve,
		Timestamps:   map[uint64]time.Time{10: t0, 20: t1},
	}

	assert.Empty(t, Correlate(in))
}

func TestCorrelateExcludesFeeTransfers(t *testing.T) {
	in := twoTrades()
	in.PaymentTransfers = append(in.PaymentTransfers,
		transfer(paymentToken, alice, feeAddress, 50, "0x01", 10),
		transfer(paymentToken, feeAddress, bondingCurve, 30, "0x01", 10),
		transfer(paymentToken, bondingCurve, feeAddress, 25, "0x02", 20),
	)

	trades := Correlate(in)
	require.Len(t, trades, 2)
	assert.Equal(t, 1000.0, trades[0].PaymentAmount)
	assert.Equal(t, 600.0, trades[1].PaymentAmount)
	assert.Equal(t, 1600.0, BuildSeries(trades, nil, DefaultMaxPoints).Volume)
}

func TestCorrelateSumsPaymentsPerTransaction(t *testing.T) {
	in := twoTrades()
	in.PaymentTransfers = append(in.PaymentTransfers,
		transfer(paymentToken, alice, bondingCurve, 500, "0x01", 10),
	)

	trades := Correlate(in)
	require.Len(t, trades, 2)
	assert.Equal(t, 1500.0, trades[0].PaymentAmount)
	assert.Equal(t, 15.0, trades[0].PricePerToken)
}

func TestCorrelateDropsUnpricedAndUnrelatedTransfers(t *testing.T) {
	in := twoTrades()
	in.TokenTransfers = append(in.TokenTransfers,
		// no payment in this tx
		transfer(songToken, bob, bondingCurve, 10, "0x03", 30),
		// curve not involved
		transfer(songToken, alice, bob, 10, "0x01", 10),
		// zero tokens
		transfer(songToken, bob, bondingCurve, 0, "0x02", 20),
	)
	// payment leaving the curve alongside tokens leaving it in tx 0x04
	in.TokenTransfers = append(in.TokenTransfers, transfer(songToken, bondingCurve, alice, 10, "0x04", 40))
	in.PaymentTransfers = append(in.PaymentTransfers, transfer(paymentToken, bondingCurve, alice, 10, "0x04", 40))

	trades := Correlate(in)
	require.Len(t, trades, 2)
	for _, trade := range trades {
		assert.Greater(t, trade.PricePerToken, 0.0)
	}
}

func TestCorrelateNormalizesDecimals(t *testing.T) {
	tokens, _ := new(big.Int).SetString("2000000000000000000", 10)
	in := CorrelateInput{
		TokenTransfers: []model.TransferEvent{{
			From: bondingCurve, To: alice, Amount: tokens, TxHash: common.HexToHash("0x01"), BlockNumber: 1,
		}},
		PaymentTransfers: []model.TransferEvent{{
			From: alice, To: bondingCurve, Amount: big.NewInt(3_000_000), TxHash: common.HexToHash("0x01"), BlockNumber: 1,
		}},
		BondingCurve:    bondingCurve,
		TokenDecimals:   18,
		PaymentDecimals: 6,
	}

	trades := Correlate(in)
	require.Len(t, trades, 1)
	assert.Equal(t, 2.0, trades[0].TokenAmount)
	assert.Equal(t, 3.0, trades[0].PaymentAmount)
	assert.Equal(t, 1.5, trades[0].PricePerToken)
}

func TestCorrelateWithoutFeeAddress(t *testing.T) {
	in := twoTrades()
	in.FeeAddress = common.Address{}
	// a mint of the payment token from the zero address is not a fee transfer
	in.PaymentTransfers = append(in.PaymentTransfers, transfer(paymentToken, common.Address{}, bondingCurve, 100, "0x01", 10))

	trades := Correlate(in)
	require.Len(t, trades, 2)
	assert.Equal(t, 1100.0, trades[0].PaymentAmount)
}
