// Package chaintest provides an in-memory ChowFastOrder deployment for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
	"unicode/utf8"

	"chowfast/internal/chain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// CancelWindow matches the contract's five minute cancellation window.
const CancelWindow = 5 * time.Minute

var (
	// ChainID is the chain the fake reports, Arbitrum Sepolia.
	ChainID = big.NewInt(421614)
	// ContractAddress is where the fake contract lives.
	ContractAddress = common.HexToAddress("0x00000000000000000000000000000000c0ffee01")
	// DefaultFee is the contract's fixed transaction fee, 0.00001 ether.
	DefaultFee = big.NewInt(10_000_000_000_000)

	gasPrice = big.NewInt(100_000_000)
)

type order struct {
	buyer     common.Address
	subtotal  *big.Int
	fee       *big.Int
	total     *big.Int
	timestamp uint64
	status    uint8
	delivery  string
	itemCount uint64
}

// Backend emulates an RPC node with ChowFastOrder deployed at ContractAddress.
// It satisfies chain.Backend. Transactions are mined as soon as they are sent.
type Backend struct {
	mu sync.Mutex

	now      func() time.Time
	block    uint64
	nonces   map[common.Address]uint64
	orders   map[uint64]*order
	counter  uint64
	receipts map[common.Hash]*types.Receipt
	held     map[common.Hash]*types.Receipt
	logs     []types.Log

	hold         bool
	failNext     bool
	offline      error
	sendErr      error
	receiptCalls int
	receiptGate  chan struct{}
}

func New() *Backend {
	return &Backend{
		now:      time.Now,
		block:    1,
		nonces:   make(map[common.Address]uint64),
		orders:   make(map[uint64]*order),
		receipts: make(map[common.Hash]*types.Receipt),
		held:     make(map[common.Hash]*types.Receipt),
	}
}

// Contract binds the fake deployment.
func (b *Backend) Contract() *chain.Contract {
	return chain.NewContract(ContractAddress, b)
}

// SetNow replaces the block clock.
func (b *Backend) SetNow(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// SetOffline makes every call fail with err. A nil err restores the node.
func (b *Backend) SetOffline(err error) {
	b.mu.Lock()
	b.offline = err
	b.mu.Unlock()
}

// FailSend makes SendTransaction return err.
func (b *Backend) FailSend(err error) {
	b.mu.Lock()
	b.sendErr = err
	b.mu.Unlock()
}

// FailNextReceipt mines the next transaction with a failed status and no logs.
func (b *Backend) FailNextReceipt() {
	b.mu.Lock()
	b.failNext = true
	b.mu.Unlock()
}

// Hold keeps receipts of newly mined transactions hidden until Release.
func (b *Backend) Hold() {
	b.mu.Lock()
	b.hold = true
	b.mu.Unlock()
}

// Release publishes held receipts and stops holding.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = false
	for h, r := range b.held {
		b.receipts[h] = r
		delete(b.held, h)
	}
}

// GateReceipts blocks TransactionReceipt until the returned func is called.
func (b *Backend) GateReceipts() (open func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.receiptGate = gate
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.receiptGate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// ReceiptCalls counts TransactionReceipt invocations.
func (b *Backend) ReceiptCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receiptCalls
}

// InjectReceipt stores r as if it had been mined.
func (b *Backend) InjectReceipt(r *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[r.TxHash] = r
	for _, l := range r.Logs {
		b.logs = append(b.logs, *l)
	}
}

// Order reports the stored status of an order.
func (b *Backend) Order(id uint64) (status uint8, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return 0, false
	}
	return o.status, true
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return b.PendingCodeAt(ctx, account)
}

func (b *Backend) PendingCodeAt(_ context.Context, account common.Address) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return nil, b.offline
	}
	if account == ContractAddress {
		return []byte{0xef, 0xf0, 0x00}, nil
	}
	return nil, nil
}

func (b *Backend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return nil, b.offline
	}
	return &types.Header{
		Number: new(big.Int).SetUint64(b.block),
		Time:   uint64(b.now().Unix()),
	}, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	if err := b.offlineErr(); err != nil {
		return nil, err
	}
	return new(big.Int).Set(gasPrice), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if err := b.offlineErr(); err != nil {
		return nil, err
	}
	return big.NewInt(1), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return 0, b.offline
	}
	return b.nonces[account], nil
}

func (b *Backend) EstimateGas(_ context.Context, call ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return 0, b.offline
	}
	if call.To == nil || *call.To != ContractAddress {
		return 21_000, nil
	}
	if _, err := b.execute(call.From, call.Value, call.Data, true); err != nil {
		return 0, err
	}
	return 500_000, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return b.offline
	}
	if b.sendErr != nil {
		return b.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(ChainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), b.nonces[from])
	}
	b.nonces[from]++
	b.block++

	status := types.ReceiptStatusSuccessful
	var logs []*types.Log
	if b.failNext {
		b.failNext = false
		status = types.ReceiptStatusFailed
	} else if tx.To() != nil && *tx.To() == ContractAddress {
		logs, err = b.execute(from, tx.Value(), tx.Data(), false)
		if err != nil {
			status = types.ReceiptStatusFailed
			logs = nil
		}
	}

	blockHash := crypto.Keccak256Hash(new(big.Int).SetUint64(b.block).Bytes())
	for i, l := range logs {
		l.BlockNumber = b.block
		l.BlockHash = blockHash
		l.TxHash = tx.Hash()
		l.Index = uint(i)
	}
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		CumulativeGasUsed: 100_000,
		Logs:              logs,
		TxHash:            tx.Hash(),
		GasUsed:           100_000,
		EffectiveGasPrice: tx.GasPrice(),
		BlockHash:         blockHash,
		BlockNumber:       new(big.Int).SetUint64(b.block),
	}
	for _, l := range logs {
		b.logs = append(b.logs, *l)
	}
	if b.hold {
		b.held[tx.Hash()] = receipt
	} else {
		b.receipts[tx.Hash()] = receipt
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	b.receiptCalls++
	gate := b.receiptGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return nil, b.offline
	}
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return nil, b.offline
	}
	if call.To == nil || *call.To != ContractAddress {
		return nil, nil
	}
	method, args, err := unpackCall(call.Data)
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case chain.MethodGetOrder:
		id := args[0].(*big.Int)
		o, ok := b.orders[id.Uint64()]
		if !ok || !id.IsUint64() {
			return nil, revert("Order not found")
		}
		return method.Outputs.Pack(o.buyer, o.subtotal, o.fee, o.total,
			new(big.Int).SetUint64(o.timestamp), o.status, o.delivery, new(big.Int).SetUint64(o.itemCount))
	case chain.MethodGetTotalOrders:
		return method.Outputs.Pack(new(big.Int).SetUint64(b.counter))
	default:
		return nil, revert("Unsupported call")
	}
}

func (b *Backend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline != nil {
		return nil, b.offline
	}
	var out []types.Log
	for _, l := range b.logs {
		if matches(q, l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (b *Backend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions are not supported")
}

func (b *Backend) offlineErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offline
}

// execute runs a contract call. With dryRun set no state changes and no logs are built.
// Callers hold b.mu.
func (b *Backend) execute(from common.Address, value *big.Int, data []byte, dryRun bool) ([]*types.Log, error) {
	method, args, err := unpackCall(data)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	switch method.Name {
	case chain.MethodCreateOrder:
		return b.createOrder(from, value, args, dryRun)
	case chain.MethodCancelOrder:
		return b.cancelOrder(from, args[0].(*big.Int), dryRun)
	default:
		return nil, revert("Unsupported call")
	}
}

func (b *Backend) createOrder(from common.Address, value *big.Int, args []interface{}, dryRun bool) ([]*types.Log, error) {
	ids := args[0].([]string)
	names := args[1].([]string)
	prices := args[2].([]*big.Int)
	quantities := args[3].([]*big.Int)
	subtotal := args[4].(*big.Int)
	delivery := args[5].(string)

	if len(ids) == 0 {
		return nil, revert("No items")
	}
	if len(ids) != len(names) || len(ids) != len(prices) || len(ids) != len(quantities) {
		return nil, revert("Array length mismatch")
	}
	if subtotal.Sign() == 0 {
		return nil, revert("Zero subtotal")
	}
	if delivery == "" {
		return nil, revert("No delivery info")
	}
	total := new(big.Int).Add(subtotal, DefaultFee)
	if value.Cmp(total) < 0 {
		return nil, revert("Insufficient payment")
	}
	if dryRun {
		return nil, nil
	}

	b.counter++
	id := new(big.Int).SetUint64(b.counter)
	ts := uint64(b.now().Unix())
	b.orders[b.counter] = &order{
		buyer:     from,
		subtotal:  new(big.Int).Set(subtotal),
		fee:       new(big.Int).Set(DefaultFee),
		total:     total,
		timestamp: ts,
		status:    1,
		delivery:  delivery,
		itemCount: uint64(len(ids)),
	}

	created, err := OrderCreatedLog(id, from, total, ts, delivery, ids, names, prices, quantities)
	if err != nil {
		return nil, err
	}
	paid, err := PaymentReceivedLog(id, from, value)
	if err != nil {
		return nil, err
	}
	return []*types.Log{created, paid}, nil
}

func (b *Backend) cancelOrder(from common.Address, id *big.Int, dryRun bool) ([]*types.Log, error) {
	if id.Sign() == 0 || !id.IsUint64() || id.Uint64() > b.counter {
		return nil, revert("Order not found")
	}
	o := b.orders[id.Uint64()]
	if o.buyer != from {
		return nil, revert("Only buyer")
	}
	if o.status != 1 {
		return nil, revert("Can only cancel paid")
	}
	now := uint64(b.now().Unix())
	if now > o.timestamp && now-o.timestamp > uint64(CancelWindow/time.Second) {
		return nil, revert("Time expired")
	}
	if dryRun {
		return nil, nil
	}
	o.status = 4

	event := chain.ABI().Events[chain.EventOrderStatusUpdated]
	data, err := event.Inputs.NonIndexed().Pack(uint8(4), new(big.Int).SetUint64(now))
	if err != nil {
		return nil, err
	}
	return []*types.Log{{
		Address: ContractAddress,
		Topics:  []common.Hash{event.ID, common.BigToHash(id)},
		Data:    data,
	}}, nil
}

// OrderCreatedLog builds an OrderCreated log emitted by ContractAddress.
func OrderCreatedLog(id *big.Int, buyer common.Address, total *big.Int, ts uint64, delivery string,
	ids, names []string, prices, quantities []*big.Int) (*types.Log, error) {
	event := chain.ABI().Events[chain.EventOrderCreated]
	data, err := event.Inputs.NonIndexed().Pack(total, new(big.Int).SetUint64(ts), delivery, ids, names, prices, quantities)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: ContractAddress,
		Topics:  []common.Hash{event.ID, common.BigToHash(id), common.BytesToHash(buyer.Bytes())},
		Data:    data,
	}, nil
}

// PaymentReceivedLog builds a PaymentReceived log emitted by ContractAddress.
func PaymentReceivedLog(id *big.Int, buyer common.Address, amount *big.Int) (*types.Log, error) {
	event := chain.ABI().Events[chain.EventPaymentReceived]
	data, err := event.Inputs.NonIndexed().Pack(amount)
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: ContractAddress,
		Topics:  []common.Hash{event.ID, common.BigToHash(id), common.BytesToHash(buyer.Bytes())},
		Data:    data,
	}, nil
}

func unpackCall(data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, revert("Missing selector")
	}
	contractABI := chain.ABI()
	method, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, revert("Unknown selector")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", method.Name, err)
	}
	return method, args, nil
}

func matches(q ethereum.FilterQuery, l types.Log) bool {
	if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && q.ToBlock.Sign() >= 0 && l.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, set := range q.Topics {
		if len(set) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range set {
			if t == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RevertError is what the node returns when execution reverts: the
// contract's raw revert bytes as hex-encoded error data.
type RevertError struct {
	Data []byte
}

func revert(reason string) error {
	return &RevertError{Data: []byte(reason)}
}

func (e *RevertError) Error() string {
	if utf8.Valid(e.Data) && len(e.Data) > 0 && e.Data[0] >= 0x20 {
		return "execution reverted: " + string(e.Data)
	}
	return "execution reverted"
}

func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return hexutil.Encode(e.Data) }

// RPCError is a JSON-RPC error response.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// UserRejected is the error a wallet returns when its user declines to sign.
func UserRejected() error {
	return &RPCError{Code: 4001, Message: "User rejected the request."}
}
