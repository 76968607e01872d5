package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_status_single_instance",
			SQL: `SELECT order_id, status, COUNT(*) FROM statuses
                  GROUP BY order_id, status HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_no_illegal_edge",
			SQL: `WITH trail AS (
                      SELECT order_id, status,
                             LAG(status) OVER (PARTITION BY order_id ORDER BY created_at, id) AS prev
                      FROM statuses)
                  SELECT * FROM trail
                  WHERE prev IS NOT NULL
                    AND (prev, status) NOT IN (
                      ('SUBMITTED', 'CONFIRMED'), ('SUBMITTED', 'CANCELED'),
                      ('CONFIRMED', 'PAID_PENDING'), ('CONFIRMED', 'CANCEL_APPEALED'),
                      ('CONFIRMED', 'RELEASE_APPEALED'), ('CONFIRMED', 'REFUND_APPEALED'),
                      ('PAID_PENDING', 'PAID'), ('PAID_PENDING', 'CANCEL_APPEALED'),
                      ('PAID_PENDING', 'RELEASE_APPEALED'), ('PAID_PENDING', 'REFUND_APPEALED'),
                      ('PAID', 'RELEASED'), ('PAID', 'REFUNDED'), ('PAID', 'CANCELED'),
                      ('PAID', 'CANCEL_APPEALED'), ('PAID', 'RELEASE_APPEALED'), ('PAID', 'REFUND_APPEALED'),
                      ('CANCEL_APPEALED', 'RELEASED'), ('CANCEL_APPEALED', 'REFUNDED'), ('CANCEL_APPEALED', 'CANCELED'),
                      ('RELEASE_APPEALED', 'RELEASED'), ('RELEASE_APPEALED', 'REFUNDED'),
                      ('REFUND_APPEALED', 'RELEASED'), ('REFUND_APPEALED', 'REFUNDED'))`,
		},
		{
			Name: "O3_first_status_submitted",
			SQL: `WITH firsts AS (
                      SELECT DISTINCT ON (order_id) order_id, status
                      FROM statuses ORDER BY order_id, created_at, id)
                  SELECT * FROM firsts WHERE status <> 'SUBMITTED'`,
		},
		{
			Name: "O4_single_terminal",
			SQL: `SELECT order_id, COUNT(*) FROM statuses
                  WHERE status IN ('RELEASED', 'REFUNDED', 'CANCELED')
                  GROUP BY order_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_one_open_appeal",
			SQL: `SELECT order_id, COUNT(*) FROM appeals
                  WHERE resolved_at IS NULL
                  GROUP BY order_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_confirmed_has_expiry",
			SQL: `SELECT o.id FROM orders o
                  JOIN statuses s ON s.order_id = o.id AND s.status = 'CONFIRMED'
                  WHERE o.expires_at IS NULL`,
		},
		{
			Name: "O7_appeal_follows_status",
			SQL: `SELECT a.id FROM appeals a
                  WHERE NOT EXISTS (
                      SELECT 1 FROM statuses s
                      WHERE s.order_id = a.order_id
                        AND s.status = a.type || '_APPEALED')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
