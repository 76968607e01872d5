package contract

import (
	"context"
	"encoding/json"
	"log"
	"path/filepath"
	"strconv"

	"escrowflow/pipeline"
)

// AddressSetter persists a derived escrow address.
type AddressSetter interface {
	SetAddress(ctx context.Context, contractID, address string) error
}

// Subscriber registers a contract address with the chain watcher so funding
// and settlement transactions against it get picked up.
type Subscriber interface {
	Add(ctx context.Context, contractAddress, subscriberID string) error
}

// Runner executes a script command and returns its parsed output.
// *pipeline.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (pipeline.Result, error)
}

// Deriver runs the escrow script off the request path and stores the address
// it prints. The script receives the three pubkeys and the contract creation
// timestamp, so reruns with the same inputs produce the same address.
type Deriver struct {
	queue     *pipeline.Queue
	exec      Runner
	store     AddressSetter
	subs      Subscriber
	scriptDir string
}

func NewDeriver(queue *pipeline.Queue, exec Runner, store AddressSetter, subs Subscriber, scriptDir string) *Deriver {
	return &Deriver{queue: queue, exec: exec, store: store, subs: subs, scriptDir: scriptDir}
}

// Enqueue schedules a derivation. The job outlives the caller's request, so
// it runs under a context detached from cancellation.
func (d *Deriver) Enqueue(ctx context.Context, req DeriveRequest) {
	script := filepath.Join(d.scriptDir, "escrow.js")
	jobCtx := context.WithoutCancel(ctx)

	d.queue.Go(jobCtx,
		func(ctx context.Context) (json.RawMessage, error) {
			res, err := d.exec.Run(ctx, "node", script,
				req.ArbiterPubkey, req.BuyerPubkey, req.SellerPubkey,
				strconv.FormatInt(req.Timestamp, 10))
			if err != nil {
				return nil, err
			}
			return res.Payload, nil
		},
		func(ctx context.Context, payload json.RawMessage, stageErr error) {
			if stageErr != nil {
				return
			}
			var out struct {
				Address string `json:"address"`
			}
			if err := json.Unmarshal(payload, &out); err != nil || out.Address == "" {
				log.Printf("contract: derive for order %s returned no address", req.OrderID)
				return
			}
			if err := d.store.SetAddress(ctx, req.ContractID, out.Address); err != nil {
				log.Printf("contract: store address for order %s: %v", req.OrderID, err)
				return
			}
			// The watcher follows the address from the moment it exists.
			if err := d.subs.Add(ctx, out.Address, req.OrderID); err != nil {
				log.Printf("contract: subscribe address for order %s: %v", req.OrderID, err)
			}
		})
}
