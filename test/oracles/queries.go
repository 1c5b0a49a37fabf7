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

// All returns the cross-table invariants the stress run must never violate.
// Each query selects violating rows; an empty result means the oracle passes.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_declined_is_terminal_and_gateless",
			SQL: `SELECT listing_id, buyer_id, nda_status FROM ledger_entries
                  WHERE auth_status = 'declined' AND nda_status <> 'not_sent'`,
		},
		{
			Name: "O2_nda_requires_authorization",
			SQL: `SELECT listing_id, buyer_id, auth_status, nda_status FROM ledger_entries
                  WHERE nda_status <> 'not_sent' AND auth_status <> 'authorized'`,
		},
		{
			Name: "O3_entries_only_for_recipients",
			SQL: `SELECT e.listing_id, e.buyer_id FROM ledger_entries e
                  WHERE NOT EXISTS (
                      SELECT 1 FROM recipients r
                      JOIN distributions d ON d.id = r.distribution_id
                      WHERE d.listing_id = e.listing_id AND r.buyer_id = e.buyer_id)`,
		},
		{
			Name: "O4_response_has_timestamp",
			SQL: `SELECT listing_id, buyer_id, response FROM ledger_entries
                  WHERE response <> 'not_responded' AND responded_at IS NULL`,
		},
		{
			Name: "O5_declined_reason_immutable",
			SQL: `SELECT listing_id, buyer_id FROM ledger_entries
                  WHERE auth_status = 'declined' AND decline_reason IS NULL`,
		},
		{
			Name: "O6_at_most_one_deal_per_listing",
			SQL: `SELECT listing_id, COUNT(*) FROM deals
                  GROUP BY listing_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_deal_winner_was_eligible",
			SQL: `SELECT d.listing_id, d.winning_buyer_id FROM deals d
                  LEFT JOIN ledger_entries e
                    ON e.listing_id = d.listing_id AND e.buyer_id = d.winning_buyer_id
                  WHERE e.buyer_id IS NULL
                     OR e.auth_status <> 'authorized'
                     OR e.nda_status <> 'signed'`,
		},
		{
			Name: "O8_converted_listing_has_deal",
			SQL: `SELECT l.id FROM listings l
                  WHERE l.phase = 'converted'
                    AND NOT EXISTS (SELECT 1 FROM deals d WHERE d.listing_id = l.id)`,
		},
		{
			Name: "O9_recipient_unique_per_distribution",
			SQL: `SELECT distribution_id, email, COUNT(*) FROM recipients
                  GROUP BY distribution_id, email HAVING COUNT(*) > 1`,
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
