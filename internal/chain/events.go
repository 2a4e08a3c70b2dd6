package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	errForeignLog = errors.New("log emitted by another contract")
	errNoTopics   = errors.New("log has no topics")
)

// Event is a decoded contract log. The concrete type is one of *OrderCreated,
// *PaymentReceived, *OrderStatusUpdated, *FundsWithdrawn or *Unrecognized.
type Event interface {
	EventName() string
	Log() types.Log
}

// OrderCreated field names follow the ABI argument names so topics and data
// unpack into them directly.
type OrderCreated struct {
	OrderId      *big.Int
	Buyer        common.Address
	Total        *big.Int
	Timestamp    *big.Int
	DeliveryInfo string
	ProductIds   []string
	ProductNames []string
	Prices       []*big.Int
	Quantities   []*big.Int
	Raw          types.Log
}

func (e *OrderCreated) EventName() string { return EventOrderCreated }
func (e *OrderCreated) Log() types.Log    { return e.Raw }

type PaymentReceived struct {
	OrderId *big.Int
	Buyer   common.Address
	Amount  *big.Int
	Raw     types.Log
}

func (e *PaymentReceived) EventName() string { return EventPaymentReceived }
func (e *PaymentReceived) Log() types.Log    { return e.Raw }

type OrderStatusUpdated struct {
	OrderId   *big.Int
	NewStatus uint8
	Timestamp *big.Int
	Raw       types.Log
}

func (e *OrderStatusUpdated) EventName() string { return EventOrderStatusUpdated }
func (e *OrderStatusUpdated) Log() types.Log    { return e.Raw }

type FundsWithdrawn struct {
	Owner  common.Address
	Amount *big.Int
	Raw    types.Log
}

func (e *FundsWithdrawn) EventName() string { return EventFundsWithdrawn }
func (e *FundsWithdrawn) Log() types.Log    { return e.Raw }

// Unrecognized is any log this contract binding cannot decode.
type Unrecognized struct {
	Raw types.Log
	Err error
}

func (e *Unrecognized) EventName() string { return "" }
func (e *Unrecognized) Log() types.Log    { return e.Raw }

// DecodeLog decodes one receipt log. It never fails: logs from other
// addresses, unknown topics and malformed payloads come back as *Unrecognized.
func (c *Contract) DecodeLog(l types.Log) Event {
	if l.Address != c.address {
		return &Unrecognized{Raw: l, Err: errForeignLog}
	}
	if len(l.Topics) == 0 {
		return &Unrecognized{Raw: l, Err: errNoTopics}
	}
	ev, err := contractABI.EventByID(l.Topics[0])
	if err != nil {
		return &Unrecognized{Raw: l, Err: err}
	}

	var out Event
	switch ev.Name {
	case EventOrderCreated:
		e := &OrderCreated{Raw: l}
		err = c.bound.UnpackLog(e, ev.Name, l)
		if err == nil {
			err = checkOrderCreated(e)
		}
		out = e
	case EventPaymentReceived:
		e := &PaymentReceived{Raw: l}
		err = c.bound.UnpackLog(e, ev.Name, l)
		out = e
	case EventOrderStatusUpdated:
		e := &OrderStatusUpdated{Raw: l}
		err = c.bound.UnpackLog(e, ev.Name, l)
		out = e
	case EventFundsWithdrawn:
		e := &FundsWithdrawn{Raw: l}
		err = c.bound.UnpackLog(e, ev.Name, l)
		out = e
	default:
		return &Unrecognized{Raw: l, Err: errors.New("unhandled event " + ev.Name)}
	}
	if err != nil {
		return &Unrecognized{Raw: l, Err: err}
	}
	return out
}

// DecodeLogs decodes every log in order.
func (c *Contract) DecodeLogs(logs []*types.Log) []Event {
	out := make([]Event, 0, len(logs))
	for _, l := range logs {
		if l == nil {
			continue
		}
		out = append(out, c.DecodeLog(*l))
	}
	return out
}

func checkOrderCreated(e *OrderCreated) error {
	n := len(e.ProductIds)
	if len(e.ProductNames) != n || len(e.Prices) != n || len(e.Quantities) != n {
		return errors.New("OrderCreated item arrays differ in length")
	}
	if e.OrderId == nil || e.Total == nil || e.Timestamp == nil {
		return errors.New("OrderCreated missing scalar fields")
	}
	return nil
}
