// Package settle consumes transaction verification results and drives orders
// to their settled statuses.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"escrowflow/contract"
	"escrowflow/order"
	"escrowflow/pipeline"
	"escrowflow/verify"
)

// Contracts is the contract persistence surface Service needs.
type Contracts interface {
	Get(ctx context.Context, id string) (contract.Contract, error)
	GetByOrder(ctx context.Context, orderID string) (contract.Contract, error)
	CreatePending(ctx context.Context, contractID string, action verify.Action) (contract.Transaction, error)
	LatestForAction(ctx context.Context, contractID string, action verify.Action) (contract.Transaction, error)
	MarkVerified(ctx context.Context, transactionID, txid string, outputs []verify.Recipient) error
	MarkInvalid(ctx context.Context, transactionID, txid string) error
}

// Orders resolves the order a contract settles.
type Orders interface {
	Get(ctx context.Context, id string) (order.Order, error)
	Roles(ctx context.Context, orderID string) (order.TradeRoles, error)
}

// StatusRecorder performs order status transitions.
type StatusRecorder interface {
	Transition(ctx context.Context, orderID string, next order.StatusType) (order.Status, error)
}

// Appeals stamps the open appeal when an appealed order settles.
type Appeals interface {
	ResolveOpen(ctx context.Context, orderID string, now time.Time) (bool, error)
}

// Notifier delivers best-effort push and order-channel updates.
type Notifier interface {
	Send(ctx context.Context, recipients []string, message string, extra map[string]any)
	PublishOrderUpdate(ctx context.Context, orderID string, payload map[string]any)
}

// Subscriptions untracks contract addresses the chain watcher follows.
type Subscriptions interface {
	Remove(ctx context.Context, contractAddress, subscriberID string) error
}

// FeeSource supplies the current fee schedule and the servicer's payout
// address. Read per verification call, never cached on an order.
type FeeSource interface {
	Fees() verify.Fees
	ServicerAddress() string
}

// Runner executes a script command and returns its parsed output.
// *pipeline.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (pipeline.Result, error)
}

// Outcome reports what a verification run concluded. Err is the protocol
// reason when Valid is false.
type Outcome struct {
	Valid  bool
	Err    string
	Status *order.Status
}

type Service struct {
	contracts Contracts
	orders    Orders
	statuses  StatusRecorder
	appeals   Appeals
	notifier  Notifier
	subs      Subscriptions
	fees      FeeSource

	queue     *pipeline.Queue
	exec      Runner
	scriptDir string

	now func() time.Time
}

func NewService(contracts Contracts, orders Orders, statuses StatusRecorder, appeals Appeals,
	notifier Notifier, subs Subscriptions, fees FeeSource,
	queue *pipeline.Queue, exec Runner, scriptDir string) *Service {
	return &Service{
		contracts: contracts,
		orders:    orders,
		statuses:  statuses,
		appeals:   appeals,
		notifier:  notifier,
		subs:      subs,
		fees:      fees,
		queue:     queue,
		exec:      exec,
		scriptDir: scriptDir,
		now:       time.Now,
	}
}

// statusFor maps a verified action to the status it settles the order into.
func statusFor(action verify.Action) (order.StatusType, bool) {
	switch action {
	case verify.ActionEscrow:
		return order.StatusConfirmed, true
	case verify.ActionRelease:
		return order.StatusReleased, true
	case verify.ActionRefund:
		return order.StatusRefunded, true
	}
	return "", false
}

// RequestSettlement registers a pending transaction for the order's contract
// and schedules its on-chain verification. The pending row is what
// HandleTransaction later marks verified or invalid, so the record exists
// before the runner ever fires.
func (s *Service) RequestSettlement(ctx context.Context, orderID string, action verify.Action, txid string) (contract.Transaction, error) {
	if _, ok := statusFor(action); !ok {
		return contract.Transaction{}, fmt.Errorf("settle: unsupported action %q", action)
	}
	if txid == "" {
		return contract.Transaction{}, order.Invalid("txid is required")
	}

	c, err := s.contracts.GetByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, contract.ErrNotFound) {
			return contract.Transaction{}, order.Invalid("order contract does not exist")
		}
		return contract.Transaction{}, err
	}
	if c.Address == nil {
		return contract.Transaction{}, order.Invalid("order contract does not exist")
	}

	txn, err := s.contracts.CreatePending(ctx, c.ID, action)
	if err != nil {
		return contract.Transaction{}, err
	}

	s.EnqueueValidation(ctx, c.ID, action, txid)
	return txn, nil
}

// HandleTransaction consumes one runner payload for a contract/action pair.
// An invalid transaction is recorded and reported through the Outcome, not as
// a Go error; errors are reserved for infrastructure failures. Late results
// for orders that already settled are rejected by the status progression
// check and leave the transaction record untouched.
func (s *Service) HandleTransaction(ctx context.Context, action verify.Action, contractID string, payload json.RawMessage) (Outcome, error) {
	next, ok := statusFor(action)
	if !ok {
		return Outcome{}, fmt.Errorf("settle: unsupported action %q", action)
	}

	var tx verify.TxPayload
	if err := json.Unmarshal(payload, &tx); err != nil {
		tx = verify.TxPayload{Valid: false, Error: "malformed runner payload"}
	}

	c, err := s.contracts.Get(ctx, contractID)
	if err != nil {
		return Outcome{}, err
	}
	txn, err := s.contracts.LatestForAction(ctx, contractID, action)
	if err != nil {
		return Outcome{}, err
	}

	if c.Address == nil {
		return s.invalid(ctx, c, txn, tx.Details.TxID, "contract address has not been derived")
	}

	o, err := s.orders.Get(ctx, c.OrderID)
	if err != nil {
		return Outcome{}, err
	}
	roles, err := s.orders.Roles(ctx, c.OrderID)
	if err != nil {
		return Outcome{}, err
	}

	params := verify.Params{
		ContractAddress: *c.Address,
		CryptoAmount:    o.CryptoAmount,
		Arbiter:         roles.ArbiterAddress,
		Servicer:        s.fees.ServicerAddress(),
		Buyer:           roles.BuyerAddress,
		Seller:          roles.SellerAddress,
	}

	verdict := verify.Transaction(action, params, s.fees.Fees(), tx)
	if !verdict.Valid {
		return s.invalid(ctx, c, txn, tx.Details.TxID, verdict.Err)
	}

	status, err := s.statuses.Transition(ctx, c.OrderID, next)
	if err != nil {
		return Outcome{}, err
	}

	if err := s.contracts.MarkVerified(ctx, txn.ID, tx.Details.TxID, verdict.Outputs); err != nil {
		return Outcome{}, err
	}

	if order.Terminal(next) {
		s.settleTerminal(ctx, c, roles, status)
	}
	s.notifier.PublishOrderUpdate(ctx, c.OrderID, map[string]any{
		"status": string(status.Status),
		"txid":   tx.Details.TxID,
	})

	return Outcome{Valid: true, Status: &status}, nil
}

func (s *Service) invalid(ctx context.Context, c contract.Contract, txn contract.Transaction, txid, reason string) (Outcome, error) {
	if err := s.contracts.MarkInvalid(ctx, txn.ID, txid); err != nil {
		return Outcome{}, err
	}
	s.notifier.PublishOrderUpdate(ctx, c.OrderID, map[string]any{
		"status": "verification_failed",
		"error":  reason,
	})
	return Outcome{Valid: false, Err: reason}, nil
}

// settleTerminal runs the side effects of RELEASED and REFUNDED. All of them
// are best-effort: the status row is already committed, and a lost
// notification must not undo a settlement.
func (s *Service) settleTerminal(ctx context.Context, c contract.Contract, roles order.TradeRoles, status order.Status) {
	resolved, err := s.appeals.ResolveOpen(ctx, c.OrderID, s.now())
	if err != nil {
		log.Printf("settle: resolve appeal for order %s: %v", c.OrderID, err)
	}

	if err := s.subs.Remove(ctx, *c.Address, c.OrderID); err != nil {
		log.Printf("settle: remove subscription %s: %v", *c.Address, err)
	}

	recipients := []string{roles.BuyerWallet, roles.SellerWallet}
	if resolved && roles.ArbiterWallet != "" {
		recipients = append(recipients, roles.ArbiterWallet)
	}
	s.notifier.Send(ctx, recipients,
		fmt.Sprintf("order %s is %s", c.OrderID, status.Status),
		map[string]any{"order_id": c.OrderID, "status": string(status.Status)})
}

// EnqueueValidation schedules an async lookup of txid and feeds the runner's
// payload back into HandleTransaction. A runner failure still flows through
// as an invalid payload so the transaction record never stays verifying.
func (s *Service) EnqueueValidation(ctx context.Context, contractID string, action verify.Action, txid string) {
	script := filepath.Join(s.scriptDir, "transaction.js")
	jobCtx := context.WithoutCancel(ctx)

	s.queue.Go(jobCtx,
		func(ctx context.Context) (json.RawMessage, error) {
			res, err := s.exec.Run(ctx, "node", script, txid)
			if err != nil {
				return nil, err
			}
			return res.Payload, nil
		},
		func(ctx context.Context, payload json.RawMessage, stageErr error) {
			if stageErr != nil {
				fallback := verify.TxPayload{Valid: false, Error: stageErr.Error()}
				fallback.Details.TxID = txid
				payload, _ = json.Marshal(fallback)
			}
			if _, err := s.HandleTransaction(ctx, action, contractID, payload); err != nil {
				log.Printf("settle: handle %s for contract %s: %v", action, contractID, err)
			}
		})
}
