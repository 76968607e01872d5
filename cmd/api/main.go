package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"escrowflow/ad"
	"escrowflow/appeal"
	"escrowflow/config"
	"escrowflow/contract"
	"escrowflow/db"
	"escrowflow/notify"
	"escrowflow/order"
	"escrowflow/peer"
	"escrowflow/pipeline"
	"escrowflow/settle"
	"escrowflow/verify"
)

// feeSource adapts the loaded config to the settlement fee surface.
type feeSource struct {
	cfg *config.Config
}

func (f feeSource) Fees() verify.Fees       { return f.cfg.Fees() }
func (f feeSource) ServicerAddress() string { return f.cfg.ServicerAddress }

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("ESCROWFLOW_CONFIG"))
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	rdb := notify.MustRedis(cfg.RedisURL)
	defer rdb.Close()

	sender := notify.NewSender(rdb)
	subs := notify.NewSubscriptions(rdb)

	queue := pipeline.NewQueue(cfg.QueueLimit)
	executor := pipeline.NewExecutor()

	peers := peer.NewRepository(pool)
	ads := ad.NewRepository(pool)
	orders := order.NewRepository(pool)
	statuses := order.NewStatusService(pool)
	contracts := contract.NewRepository(pool)
	appeals := appeal.NewRepository(pool, statuses)

	authService := peer.NewService(peers, cfg.JWTSecret)
	adService := ad.NewService(ads)
	orderService := order.NewService(orders, statuses, contracts, peers, ads)

	deriver := contract.NewDeriver(queue, executor, contracts, subs, cfg.EscrowScriptDir)
	generator := contract.NewGenerator(contracts, orders, deriver.Enqueue)

	appealService := appeal.NewService(appeals, orders, peers)
	settleService := settle.NewService(contracts, orders, statuses, appeals,
		sender, subs, feeSource{cfg: cfg}, queue, executor, cfg.EscrowScriptDir)

	log.Printf("escrowflow ready: auth=%t ads=%t orders=%t contracts=%t appeals=%t settle=%t",
		authService != nil, adService != nil, orderService != nil,
		generator != nil, appealService != nil, settleService != nil)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Print("escrowflow draining job queue")
	queue.Wait()
}
