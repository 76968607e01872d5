package infra

import (
	"context"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Postgres wraps the throwaway container a harness run owns. A zero value
// stands in when the run reuses an externally managed database; Terminate is
// then a no-op.
type Postgres struct {
	container *postgres.PostgresContainer
}

// StartPostgres provides a database for a harness run. An explicit reuseDSN,
// or one set through ESCROW_TEST_PG_DSN, short-circuits the container start
// and hands back that database instead.
func StartPostgres(ctx context.Context, reuseDSN string) (*Postgres, string, error) {
	if reuseDSN == "" {
		reuseDSN = os.Getenv("ESCROW_TEST_PG_DSN")
	}
	if reuseDSN != "" {
		return &Postgres{}, reuseDSN, nil
	}

	container, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("escrow_test"),
		postgres.WithUsername("escrow"),
		postgres.WithPassword("escrow"),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	return &Postgres{container: container}, dsn, nil
}

func (p *Postgres) Terminate(ctx context.Context) error {
	if p == nil || p.container == nil {
		return nil
	}
	return p.container.Terminate(ctx)
}
