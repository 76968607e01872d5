package contract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"escrowflow/pipeline"
)

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

type fakeAddressStore struct {
	contractID string
	address    string
	calls      int
}

func (f *fakeAddressStore) SetAddress(ctx context.Context, contractID, address string) error {
	f.calls++
	f.contractID = contractID
	f.address = address
	return nil
}

type fakeSubscriber struct {
	addresses []string
	owners    []string
}

func (f *fakeSubscriber) Add(ctx context.Context, contractAddress, subscriberID string) error {
	f.addresses = append(f.addresses, contractAddress)
	f.owners = append(f.owners, subscriberID)
	return nil
}

func deriveRequest() DeriveRequest {
	return DeriveRequest{
		OrderID:       "order-1",
		ContractID:    "contract-1",
		ArbiterPubkey: "pub-arbiter",
		BuyerPubkey:   "pub-buyer",
		SellerPubkey:  "pub-seller",
		Timestamp:     1700000000,
	}
}

func TestDeriverStoresAddressAndSubscribes(t *testing.T) {
	queue := pipeline.NewQueue(1)
	runner := &fakeRunner{payload: json.RawMessage(`{"address":"bitcoincash:qderived"}`)}
	store := &fakeAddressStore{}
	subs := &fakeSubscriber{}
	d := NewDeriver(queue, runner, store, subs, "scripts")

	d.Enqueue(context.Background(), deriveRequest())
	queue.Wait()

	if store.contractID != "contract-1" || store.address != "bitcoincash:qderived" {
		t.Fatalf("unexpected stored address: %s for %s", store.address, store.contractID)
	}
	if len(subs.addresses) != 1 || subs.addresses[0] != "bitcoincash:qderived" || subs.owners[0] != "order-1" {
		t.Fatalf("expected derived address subscribed for the order, got %v / %v", subs.addresses, subs.owners)
	}
}

func TestDeriverRunnerFailureWritesNothing(t *testing.T) {
	queue := pipeline.NewQueue(1)
	runner := &fakeRunner{err: errors.New("node exited 1")}
	store := &fakeAddressStore{}
	subs := &fakeSubscriber{}
	d := NewDeriver(queue, runner, store, subs, "scripts")

	d.Enqueue(context.Background(), deriveRequest())
	queue.Wait()

	if store.calls != 0 || len(subs.addresses) != 0 {
		t.Fatal("a failed derivation must store and subscribe nothing")
	}
}

func TestDeriverEmptyAddressSkipsSubscription(t *testing.T) {
	queue := pipeline.NewQueue(1)
	runner := &fakeRunner{payload: json.RawMessage(`{"address":""}`)}
	store := &fakeAddressStore{}
	subs := &fakeSubscriber{}
	d := NewDeriver(queue, runner, store, subs, "scripts")

	d.Enqueue(context.Background(), deriveRequest())
	queue.Wait()

	if store.calls != 0 || len(subs.addresses) != 0 {
		t.Fatal("an empty address must store and subscribe nothing")
	}
}
