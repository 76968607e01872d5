package settle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"escrowflow/contract"
	"escrowflow/order"
	"escrowflow/pipeline"
	"escrowflow/verify"
)

type fakeContracts struct {
	contract   contract.Contract
	txn        contract.Transaction
	byOrderErr error

	pending         []contract.Transaction
	verifiedTxid    string
	verifiedOutputs []verify.Recipient
	invalidTxid     string
	invalidCalls    int
	verifiedCalls   int
}

func (f *fakeContracts) Get(ctx context.Context, id string) (contract.Contract, error) {
	return f.contract, nil
}

func (f *fakeContracts) GetByOrder(ctx context.Context, orderID string) (contract.Contract, error) {
	if f.byOrderErr != nil {
		return contract.Contract{}, f.byOrderErr
	}
	return f.contract, nil
}

func (f *fakeContracts) CreatePending(ctx context.Context, contractID string, action verify.Action) (contract.Transaction, error) {
	txn := contract.Transaction{ID: "txn-pending", ContractID: contractID, Action: action, Verifying: true}
	f.pending = append(f.pending, txn)
	f.txn = txn
	return txn, nil
}

func (f *fakeContracts) LatestForAction(ctx context.Context, contractID string, action verify.Action) (contract.Transaction, error) {
	return f.txn, nil
}

func (f *fakeContracts) MarkVerified(ctx context.Context, transactionID, txid string, outputs []verify.Recipient) error {
	f.verifiedCalls++
	f.verifiedTxid = txid
	f.verifiedOutputs = outputs
	return nil
}

func (f *fakeContracts) MarkInvalid(ctx context.Context, transactionID, txid string) error {
	f.invalidCalls++
	f.invalidTxid = txid
	return nil
}

type fakeOrders struct {
	order order.Order
	roles order.TradeRoles
}

func (f *fakeOrders) Get(ctx context.Context, id string) (order.Order, error) {
	return f.order, nil
}

func (f *fakeOrders) Roles(ctx context.Context, orderID string) (order.TradeRoles, error) {
	return f.roles, nil
}

type fakeStatuses struct {
	current     order.StatusType
	transitions []order.StatusType
}

func (s *fakeStatuses) Transition(ctx context.Context, orderID string, next order.StatusType) (order.Status, error) {
	if !order.CanTransition(s.current, next) {
		return order.Status{}, order.Invalid("order %s cannot move from %s to %s", orderID, s.current, next)
	}
	s.current = next
	s.transitions = append(s.transitions, next)
	return order.Status{OrderID: orderID, Status: next}, nil
}

type fakeAppeals struct {
	open     bool
	resolved []time.Time
}

func (f *fakeAppeals) ResolveOpen(ctx context.Context, orderID string, now time.Time) (bool, error) {
	if !f.open {
		return false, nil
	}
	f.open = false
	f.resolved = append(f.resolved, now)
	return true, nil
}

type fakeNotifier struct {
	sends   [][]string
	updates []map[string]any
}

func (f *fakeNotifier) Send(ctx context.Context, recipients []string, message string, extra map[string]any) {
	f.sends = append(f.sends, recipients)
}

func (f *fakeNotifier) PublishOrderUpdate(ctx context.Context, orderID string, payload map[string]any) {
	f.updates = append(f.updates, payload)
}

type fakeSubs struct {
	removed []string
}

func (f *fakeSubs) Remove(ctx context.Context, contractAddress, subscriberID string) error {
	f.removed = append(f.removed, contractAddress)
	return nil
}

type fakeFees struct{}

func (fakeFees) Fees() verify.Fees {
	return verify.Fees{TradingFeeSats: 2000, ArbitrationFeeSats: 1000, ServiceFeeSats: 1000}
}

func (fakeFees) ServicerAddress() string { return "addr-servicer" }

type fakeRunner struct {
	payload json.RawMessage
	err     error
	calls   int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (pipeline.Result, error) {
	f.calls++
	if f.err != nil {
		return pipeline.Result{}, f.err
	}
	return pipeline.Result{Payload: f.payload}, nil
}

type settleFixture struct {
	svc       *Service
	contracts *fakeContracts
	statuses  *fakeStatuses
	appeals   *fakeAppeals
	notifier  *fakeNotifier
	subs      *fakeSubs
	queue     *pipeline.Queue
	runner    *fakeRunner
}

func newFixture(current order.StatusType, openAppeal bool) *settleFixture {
	addr := "addr-contract"
	contracts := &fakeContracts{
		contract: contract.Contract{ID: "contract-1", OrderID: "order-1", Address: &addr},
		txn:      contract.Transaction{ID: "txn-1", ContractID: "contract-1", Verifying: true},
	}
	orders := &fakeOrders{
		order: order.Order{ID: "order-1", CryptoAmount: decimal.RequireFromString("0.01")},
		roles: order.TradeRoles{
			BuyerWallet:    "wallet-buyer",
			SellerWallet:   "wallet-seller",
			ArbiterWallet:  "wallet-arb",
			BuyerAddress:   "addr-buyer",
			SellerAddress:  "addr-seller",
			ArbiterAddress: "addr-arb",
		},
	}
	statuses := &fakeStatuses{current: current}
	appeals := &fakeAppeals{open: openAppeal}
	notifier := &fakeNotifier{}
	subs := &fakeSubs{}
	queue := pipeline.NewQueue(1)
	runner := &fakeRunner{}

	svc := NewService(contracts, orders, statuses, appeals, notifier, subs, fakeFees{}, queue, runner, "scripts")
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }

	return &settleFixture{svc: svc, contracts: contracts, statuses: statuses, appeals: appeals, notifier: notifier, subs: subs, queue: queue, runner: runner}
}

func payload(t *testing.T, p verify.TxPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func escrowPayload(t *testing.T, value string) json.RawMessage {
	return payload(t, verify.TxPayload{
		Valid: true,
		Details: verify.TxDetails{
			TxID:    "tx-escrow",
			Inputs:  []verify.TxPoint{{Address: "addr-seller", Value: "1010000"}},
			Outputs: []verify.TxPoint{{Address: "addr-contract", Value: value}},
		},
	})
}

func releasePayload(t *testing.T) json.RawMessage {
	return payload(t, verify.TxPayload{
		Valid: true,
		Details: verify.TxDetails{
			TxID:   "tx-release",
			Inputs: []verify.TxPoint{{Address: "addr-contract", Value: "1002000"}},
			Outputs: []verify.TxPoint{
				{Address: "addr-arb", Value: "1000"},
				{Address: "addr-servicer", Value: "1000"},
				{Address: "addr-buyer", Value: "1000000"},
			},
		},
	})
}

func TestHandleEscrowConfirmsOrder(t *testing.T) {
	fx := newFixture(order.StatusSubmitted, false)

	out, err := fx.svc.HandleTransaction(context.Background(), verify.ActionEscrow, "contract-1", escrowPayload(t, "1002000"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !out.Valid {
		t.Fatalf("expected valid outcome, got %q", out.Err)
	}
	if out.Status == nil || out.Status.Status != order.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %+v", out.Status)
	}
	if fx.contracts.verifiedTxid != "tx-escrow" {
		t.Fatalf("expected txid recorded, got %q", fx.contracts.verifiedTxid)
	}
	if len(fx.contracts.verifiedOutputs) != 1 || fx.contracts.verifiedOutputs[0].Value != "0.01002" {
		t.Fatalf("unexpected verified outputs: %+v", fx.contracts.verifiedOutputs)
	}
	if len(fx.notifier.updates) != 1 {
		t.Fatalf("expected 1 order update, got %d", len(fx.notifier.updates))
	}
}

func TestHandleEscrowWrongValue(t *testing.T) {
	fx := newFixture(order.StatusSubmitted, false)

	out, err := fx.svc.HandleTransaction(context.Background(), verify.ActionEscrow, "contract-1", escrowPayload(t, "1000000"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Valid {
		t.Fatal("expected invalid outcome")
	}
	if fx.contracts.invalidCalls != 1 || fx.contracts.verifiedCalls != 0 {
		t.Fatalf("expected invalid recorded once, got invalid=%d verified=%d", fx.contracts.invalidCalls, fx.contracts.verifiedCalls)
	}
	if len(fx.statuses.transitions) != 0 {
		t.Fatalf("invalid result must not transition, got %v", fx.statuses.transitions)
	}
}

func TestHandleReleaseSettlesAppealedOrder(t *testing.T) {
	fx := newFixture(order.StatusReleaseAppealed, true)

	out, err := fx.svc.HandleTransaction(context.Background(), verify.ActionRelease, "contract-1", releasePayload(t))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !out.Valid || out.Status.Status != order.StatusReleased {
		t.Fatalf("expected RELEASED, got %+v", out)
	}
	if len(fx.appeals.resolved) != 1 {
		t.Fatalf("expected appeal resolved once, got %d", len(fx.appeals.resolved))
	}
	if len(fx.subs.removed) != 1 || fx.subs.removed[0] != "addr-contract" {
		t.Fatalf("expected subscription removed, got %v", fx.subs.removed)
	}
	if len(fx.notifier.sends) != 1 || len(fx.notifier.sends[0]) != 3 {
		t.Fatalf("expected push to buyer, seller and arbiter, got %v", fx.notifier.sends)
	}
}

func TestHandleReleaseWithoutAppealSkipsArbiter(t *testing.T) {
	fx := newFixture(order.StatusPaid, false)

	out, err := fx.svc.HandleTransaction(context.Background(), verify.ActionRelease, "contract-1", releasePayload(t))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !out.Valid {
		t.Fatalf("expected valid outcome, got %q", out.Err)
	}
	if len(fx.notifier.sends) != 1 || len(fx.notifier.sends[0]) != 2 {
		t.Fatalf("expected push to trade parties only, got %v", fx.notifier.sends)
	}
}

func TestHandleLateResultForSettledOrder(t *testing.T) {
	fx := newFixture(order.StatusReleased, false)

	_, err := fx.svc.HandleTransaction(context.Background(), verify.ActionRelease, "contract-1", releasePayload(t))
	var verr *order.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fx.contracts.verifiedCalls != 0 && fx.contracts.invalidCalls != 0 {
		t.Fatal("late result must leave the transaction record untouched")
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	fx := newFixture(order.StatusSubmitted, false)

	out, err := fx.svc.HandleTransaction(context.Background(), verify.ActionEscrow, "contract-1", json.RawMessage("not json"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Valid || out.Err != "malformed runner payload" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if fx.contracts.invalidCalls != 1 {
		t.Fatalf("expected invalid recorded, got %d calls", fx.contracts.invalidCalls)
	}
}

func TestRequestSettlementVerifiesAndSettles(t *testing.T) {
	fx := newFixture(order.StatusPaid, false)
	fx.runner.payload = releasePayload(t)

	txn, err := fx.svc.RequestSettlement(context.Background(), "order-1", verify.ActionRelease, "tx-release")
	if err != nil {
		t.Fatalf("request settlement: %v", err)
	}
	if txn.Action != verify.ActionRelease || !txn.Verifying {
		t.Fatalf("expected a verifying RELEASE record, got %+v", txn)
	}
	fx.queue.Wait()

	if len(fx.contracts.pending) != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", len(fx.contracts.pending))
	}
	if fx.runner.calls != 1 {
		t.Fatalf("expected the runner invoked once, got %d", fx.runner.calls)
	}
	if fx.statuses.current != order.StatusReleased {
		t.Fatalf("expected RELEASED after verification, got %s", fx.statuses.current)
	}
	if fx.contracts.verifiedCalls != 1 || fx.contracts.verifiedTxid != "tx-release" {
		t.Fatalf("expected tx-release verified, got calls=%d txid=%q", fx.contracts.verifiedCalls, fx.contracts.verifiedTxid)
	}
}

func TestRequestSettlementRunnerFailureMarksInvalid(t *testing.T) {
	fx := newFixture(order.StatusPaid, false)
	fx.runner.err = errors.New("pipeline: run node: exit status 1")

	if _, err := fx.svc.RequestSettlement(context.Background(), "order-1", verify.ActionRelease, "tx-broken"); err != nil {
		t.Fatalf("request settlement: %v", err)
	}
	fx.queue.Wait()

	if fx.contracts.invalidCalls != 1 || fx.contracts.invalidTxid != "tx-broken" {
		t.Fatalf("expected the pending record marked invalid, got calls=%d txid=%q", fx.contracts.invalidCalls, fx.contracts.invalidTxid)
	}
	if fx.contracts.verifiedCalls != 0 || len(fx.statuses.transitions) != 0 {
		t.Fatal("a runner failure must neither verify nor transition")
	}
}

func TestRequestSettlementWithoutContract(t *testing.T) {
	fx := newFixture(order.StatusPaid, false)
	fx.contracts.byOrderErr = contract.ErrNotFound

	_, err := fx.svc.RequestSettlement(context.Background(), "order-1", verify.ActionRelease, "tx-release")
	var verr *order.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fx.contracts.pending) != 0 || fx.runner.calls != 0 {
		t.Fatal("no contract means no pending record and no runner invocation")
	}
}

func TestRequestSettlementWithoutDerivedAddress(t *testing.T) {
	fx := newFixture(order.StatusPaid, false)
	fx.contracts.contract.Address = nil

	_, err := fx.svc.RequestSettlement(context.Background(), "order-1", verify.ActionRelease, "tx-release")
	var verr *order.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(fx.contracts.pending) != 0 {
		t.Fatal("an underived contract must not gain a pending record")
	}
}

func TestRequestSettlementRejectsFundAction(t *testing.T) {
	fx := newFixture(order.StatusSubmitted, false)

	if _, err := fx.svc.RequestSettlement(context.Background(), "order-1", verify.ActionFund, "tx-fund"); err == nil {
		t.Fatal("expected error for FUND action")
	}

	var verr *order.ValidationError
	if _, err := fx.svc.RequestSettlement(context.Background(), "order-1", verify.ActionRelease, ""); !errors.As(err, &verr) {
		t.Fatal("expected validation error for missing txid")
	}
}

func TestHandleUnsupportedAction(t *testing.T) {
	fx := newFixture(order.StatusSubmitted, false)

	if _, err := fx.svc.HandleTransaction(context.Background(), verify.ActionFund, "contract-1", escrowPayload(t, "1002000")); err == nil {
		t.Fatal("expected error for FUND action")
	}
}
