package reporting

import (
	"fmt"
	"strings"
)

// RenderPoolsCSV renders pool rows as CSV string. Amounts are in base units.
func RenderPoolsCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("token,symbol,decimals,max_lockup_limit,total_lockup,effective_total_lockup,acc_total_lockup,")
	sb.WriteString("total_penalty_collected,total_platform_fee,total_bonus_claimed,undistributed_penalty,")
	sb.WriteString("utilization,total_positions,active_positions,exited_positions,holders,")
	sb.WriteString("reward_multiplier,reward_accrued,reward_claimed\n")

	// Rows
	for _, p := range r.Pools {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s,%d,%d,%d,%d,%d,%s,%s\n",
			p.Token,
			p.Symbol,
			p.Decimals,
			p.MaxLockUpLimit,
			p.TotalLockUp,
			p.EffectiveTotalLockUp,
			p.AccTotalLockUp,
			p.TotalPenaltyCollected,
			p.TotalPlatformFee,
			p.TotalBonusClaimed,
			p.UndistributedPenalty,
			p.Utilization.StringFixed(6),
			p.TotalPositions,
			p.ActivePositions,
			p.ExitedPositions,
			p.Holders,
			p.RewardMultiplier,
			p.RewardAccrued,
			p.RewardClaimed,
		))
	}

	return sb.String()
}

// RenderHoldersCSV renders holder rows as CSV string. Amounts are in base units.
func RenderHoldersCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("token,owner,total,effective_total,share,active_positions,exited_positions,bonus_claimed,reward_claimed\n")
	for _, h := range r.Holders {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%d,%d,%s,%s\n",
			h.Token,
			h.Owner,
			h.Total,
			h.EffectiveTotal,
			h.Share.StringFixed(6),
			h.ActivePositions,
			h.ExitedPositions,
			h.BonusClaimed,
			h.RewardClaimed,
		))
	}

	return sb.String()
}
