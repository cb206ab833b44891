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

// All returns the invariant queries. Each query selects violating rows, so an
// empty result set means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_active_offer_per_rfq",
			SQL: `SELECT rfq_id, COUNT(*) FROM curated_offers
                  WHERE status = 'active'
                  GROUP BY rfq_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_one_order_per_offer",
			SQL: `SELECT curated_offer_id, COUNT(*) FROM orders
                  GROUP BY curated_offer_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_order_requires_accepted_offer",
			SQL: `SELECT o.id FROM orders o
                  JOIN curated_offers co ON co.id = o.curated_offer_id
                  WHERE co.status <> 'accepted'`,
		},
		{
			Name: "O4_unique_transaction_ref",
			SQL: `SELECT transaction_ref, COUNT(*) FROM payment_transactions
                  GROUP BY transaction_ref HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_net_amount_arithmetic",
			SQL: `SELECT id FROM payment_transactions
                  WHERE net_amount <> amount - fees`,
		},
		{
			Name: "O6_offer_split_sums_to_price",
			SQL: `SELECT id FROM curated_offers
                  WHERE advance_amount + final_amount <> price`,
		},
		{
			Name: "O7_no_overpayment_recorded",
			SQL: `SELECT o.id, SUM(pt.net_amount) FROM orders o
                  JOIN payment_transactions pt ON pt.order_id = o.id
                  WHERE pt.status = 'completed'
                  GROUP BY o.id, o.total_amount
                  HAVING SUM(pt.net_amount) > o.total_amount`,
		},
		{
			Name: "O8_unread_notification_dedup",
			SQL: `SELECT user_id, entity_id, entity_type, type, COUNT(*)
                  FROM notifications
                  WHERE entity_id IS NOT NULL AND NOT is_read
                  GROUP BY user_id, entity_id, entity_type, type
                  HAVING COUNT(*) > 1`,
		},
		{
			Name: "O9_accepted_rfq_has_accepted_offer",
			SQL: `SELECT r.id FROM rfqs r
                  WHERE r.status IN ('accepted','in_production','inspection','shipped','delivered','closed')
                  AND NOT EXISTS (
                      SELECT 1 FROM curated_offers co
                      WHERE co.rfq_id = r.id AND co.status = 'accepted')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if every invariant holds.
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
