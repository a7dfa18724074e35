// ./internal/state/plans.go
package state

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/hernan-erasmo/overlord/internal/types"
)

// PlanStore persists evaluated liquidation plans, submitted or not.
// Satisfies the liquidator's plan sink.
type PlanStore struct{}

// NewPlanStore returns a store over the global pool.
func NewPlanStore() *PlanStore {
	return &PlanStore{}
}

// RecordPlan inserts one plan row. Failures are logged, never propagated.
func (s *PlanStore) RecordPlan(plan *types.LiquidationPlan, submitted bool) {
	if DB == nil {
		return
	}
	_, err := DB.Exec(`
		INSERT INTO liquidation_plans
			(trace_id, user_address, debt_asset, collateral_asset,
			 debt_to_cover, seized_amount, gross_profit_base, net_profit_base,
			 flash_source, submitted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		plan.TraceID, plan.User.Hex(), plan.DebtAsset.Hex(), plan.CollateralAsset.Hex(),
		decString(plan.DebtToCover), decString(plan.SeizedAmount),
		decString(plan.GrossProfitBase), decString(plan.NetProfitBase),
		plan.FlashSource.String(), submitted,
	)
	if err != nil {
		log.Error().Err(err).Str("trace_id", plan.TraceID).Msg("Failed to record liquidation plan")
	}
}

// PlanRow is one persisted plan, shaped for the ops API.
type PlanRow struct {
	TraceID         string `json:"trace_id"`
	UserAddress     string `json:"user_address"`
	DebtAsset       string `json:"debt_asset"`
	CollateralAsset string `json:"collateral_asset"`
	DebtToCover     string `json:"debt_to_cover"`
	SeizedAmount    string `json:"seized_amount"`
	GrossProfitBase string `json:"gross_profit_base"`
	NetProfitBase   string `json:"net_profit_base"`
	FlashSource     string `json:"flash_source"`
	Submitted       bool   `json:"submitted"`
	RecordedAt      string `json:"recorded_at"`
}

// GetRecentPlans retrieves recent plan rows with pagination.
func GetRecentPlans(limit int) ([]PlanRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	rows, err := DB.Query(`
		SELECT trace_id, user_address, debt_asset, collateral_asset,
		       debt_to_cover, seized_amount, gross_profit_base, net_profit_base,
		       flash_source, submitted, recorded_at
		FROM liquidation_plans
		ORDER BY recorded_at DESC
		LIMIT $1`, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent plans")
		return nil, fmt.Errorf("failed to query recent plans: %w", err)
	}
	defer rows.Close()

	var plans []PlanRow
	for rows.Next() {
		var row PlanRow
		if err := rows.Scan(
			&row.TraceID, &row.UserAddress, &row.DebtAsset, &row.CollateralAsset,
			&row.DebtToCover, &row.SeizedAmount, &row.GrossProfitBase, &row.NetProfitBase,
			&row.FlashSource, &row.Submitted, &row.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, row)
	}
	return plans, rows.Err()
}

func decString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
