package curve

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/cyberdreadx/rougee-play-beats-sub002/internal/model"
)

// DecodeError reports a log that does not match the expected event shape.
// It is scoped to a single log; callers skip the log and keep scanning.
type DecodeError struct {
	Address  common.Address
	TxHash   common.Hash
	LogIndex uint
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s#%d from %s: %v", e.TxHash.Hex(), e.LogIndex, e.Address.Hex(), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(log types.Log, format string, args ...interface{}) *DecodeError {
	return &DecodeError{
		Address:  log.Address,
		TxHash:   log.TxHash,
		LogIndex: log.Index,
		Err:      fmt.Errorf(format, args...),
	}
}

// TradeEvent is one of the closed set of bonding-curve trade events: *Bought or *Sold.
type TradeEvent interface {
	TokenAddress() common.Address
	TraderAddress() common.Address
	// Amounts returns the raw token and payment amounts moved by the trade.
	Amounts() (tokenAmount, paymentAmount *big.Int)
	isTradeEvent()
}

// Bought is emitted when a trader buys tokens from the curve.
type Bought struct {
	Trader         common.Address
	Token          common.Address
	PaymentSpent   *big.Int
	TokensReceived *big.Int
}

func (b *Bought) TokenAddress() common.Address  { return b.Token }
func (b *Bought) TraderAddress() common.Address { return b.Trader }
func (b *Bought) Amounts() (*big.Int, *big.Int) { return b.TokensReceived, b.PaymentSpent }
func (*Bought) isTradeEvent()                   {}

// Sold is emitted when a trader sells tokens back to the curve.
type Sold struct {
	Trader          common.Address
	Token           common.Address
	TokensSpent     *big.Int
	PaymentReceived *big.Int
}

func (s *Sold) TokenAddress() common.Address  { return s.Token }
func (s *Sold) TraderAddress() common.Address { return s.Trader }
func (s *Sold) Amounts() (*big.Int, *big.Int) { return s.TokensSpent, s.PaymentReceived }
func (*Sold) isTradeEvent()                   {}

// TransferTopic returns the ERC20 Transfer event id.
func TransferTopic() (common.Hash, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return common.Hash{}, err
	}
	return parsed.Events["Transfer"].ID, nil
}

// DecodeTransfer decodes an ERC20 Transfer log.
func DecodeTransfer(log types.Log) (model.TransferEvent, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return model.TransferEvent{}, err
	}
	event := parsed.Events["Transfer"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.TransferEvent{}, decodeError(log, "not a Transfer log")
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := parseIndexed(&indexed, event, log); err != nil {
		return model.TransferEvent{}, err
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return model.TransferEvent{}, decodeError(log, "unpack Transfer data: %w", err)
	}
	if len(values) != 1 {
		return model.TransferEvent{}, decodeError(log, "unexpected Transfer values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.TransferEvent{}, decodeError(log, "Transfer value: %w", err)
	}

	return model.TransferEvent{
		Contract:    log.Address,
		From:        indexed.From,
		To:          indexed.To,
		Amount:      amount,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

// DecodeTrade attempts a log against the Bought and Sold shapes.
// Logs matching neither return a *DecodeError.
func DecodeTrade(log types.Log) (TradeEvent, error) {
	parsed, err := BondingCurveABI()
	if err != nil {
		return nil, err
	}
	if len(log.Topics) == 0 {
		return nil, decodeError(log, "missing topics")
	}

	var indexed struct {
		Trader common.Address
		Token  common.Address
	}

	switch log.Topics[0] {
	case parsed.Events["Bought"].ID:
		event := parsed.Events["Bought"]
		if err := parseIndexed(&indexed, event, log); err != nil {
			return nil, err
		}
		payment, tokens, err := unpackAmounts(event, log)
		if err != nil {
			return nil, err
		}
		return &Bought{
			Trader:         indexed.Trader,
			Token:          indexed.Token,
			PaymentSpent:   payment,
			TokensReceived: tokens,
		}, nil
	case parsed.Events["Sold"].ID:
		event := parsed.Events["Sold"]
		if err := parseIndexed(&indexed, event, log); err != nil {
			return nil, err
		}
		tokens, payment, err := unpackAmounts(event, log)
		if err != nil {
			return nil, err
		}
		return &Sold{
			Trader:          indexed.Trader,
			Token:           indexed.Token,
			TokensSpent:     tokens,
			PaymentReceived: payment,
		}, nil
	default:
		return nil, decodeError(log, "unsupported topic0: %s", log.Topics[0].Hex())
	}
}

func parseIndexed(out interface{}, event abi.Event, log types.Log) error {
	var fields abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			fields = append(fields, input)
		}
	}
	if len(log.Topics) != len(fields)+1 {
		return decodeError(log, "%s: expected %d topics, got %d", event.Name, len(fields)+1, len(log.Topics))
	}
	if err := abi.ParseTopics(out, fields, log.Topics[1:]); err != nil {
		return decodeError(log, "%s: parse topics: %w", event.Name, err)
	}
	return nil
}

func unpackAmounts(event abi.Event, log types.Log) (*big.Int, *big.Int, error) {
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, nil, decodeError(log, "%s: unpack data: %w", event.Name, err)
	}
	if len(values) != 2 {
		return nil, nil, decodeError(log, "%s: unexpected values: %d", event.Name, len(values))
	}
	first, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, decodeError(log, "%s: %w", event.Name, err)
	}
	second, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, decodeError(log, "%s: %w", event.Name, err)
	}
	return first, second, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
