package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Lock-up Ledger Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Block: %d | Last event: %d | Pools: %d\n\n", r.Block, r.LastEventSeq, len(r.Pools)))

	// Ledger
	sb.WriteString("## Ledger\n\n")
	sb.WriteString("| Setting | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Owner | %s |\n", r.Owner))
	sb.WriteString(fmt.Sprintf("| Fund Address | %s |\n", r.FundAddress))
	emergency := "OFF"
	if r.EmergencyMode {
		emergency = "ON"
	}
	sb.WriteString(fmt.Sprintf("| Emergency Mode | %s |\n", emergency))
	if r.RewardToken != "" {
		sb.WriteString(fmt.Sprintf("| Reward Token | %s |\n", r.RewardSymbol))
		sb.WriteString(fmt.Sprintf("| Total Multiplier | %d |\n", r.TotalMultiplier))
	}
	sb.WriteString("\n")

	// Pools
	sb.WriteString("## Pools\n\n")
	if len(r.Pools) > 0 {
		sb.WriteString("| Token | Locked | Limit | Utilization | Effective | Avg Boost | Active | Exited | Holders |\n")
		sb.WriteString("|-------|--------|-------|-------------|-----------|-----------|--------|--------|---------|\n")
		for _, p := range r.Pools {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %d | %d | %d |\n",
				p.Symbol,
				FormatUnits(p.TotalLockUp, p.Decimals), FormatUnits(p.MaxLockUpLimit, p.Decimals),
				FormatPercent(p.Utilization),
				FormatUnits(p.EffectiveTotalLockUp, p.Decimals), p.AverageBoost.StringFixed(2),
				p.ActivePositions, p.ExitedPositions, p.Holders))
		}
		sb.WriteString("\n")

		sb.WriteString("### Penalties and Fees\n\n")
		sb.WriteString("| Token | Lifetime Deposits | Penalties | Bonus Claimed | Undistributed | Platform Fees |\n")
		sb.WriteString("|-------|-------------------|-----------|---------------|---------------|---------------|\n")
		for _, p := range r.Pools {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				p.Symbol,
				FormatUnits(p.AccTotalLockUp, p.Decimals),
				FormatUnits(p.TotalPenaltyCollected, p.Decimals),
				FormatUnits(p.TotalBonusClaimed, p.Decimals),
				FormatUnits(p.UndistributedPenalty, p.Decimals),
				FormatUnits(p.TotalPlatformFee, p.Decimals)))
		}
	} else {
		sb.WriteString("No pools registered.\n")
	}
	sb.WriteString("\n")

	// Rewards
	if r.RewardToken != "" {
		sb.WriteString("## Rewards\n\n")
		sb.WriteString("| Token | Multiplier | Share | Accrued | Claimed |\n")
		sb.WriteString("|-------|------------|-------|---------|---------|\n")
		for _, p := range r.Pools {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				p.Symbol, p.RewardMultiplier, FormatPercent(p.RewardShare),
				FormatUnits(p.RewardAccrued, r.RewardDecimals),
				FormatUnits(p.RewardClaimed, r.RewardDecimals)))
		}
		sb.WriteString("\n")
	}

	// Holders
	sb.WriteString("## Holders\n\n")
	if len(r.Holders) > 0 {
		sb.WriteString("| Token | Owner | Locked | Effective | Share | Active | Exited | Bonus Claimed | Reward Claimed |\n")
		sb.WriteString("|-------|-------|--------|-----------|-------|--------|--------|---------------|----------------|\n")
		for _, h := range r.Holders {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %d | %d | %s | %s |\n",
				h.Symbol, h.Owner,
				FormatUnits(h.Total, h.Decimals), FormatUnits(h.EffectiveTotal, h.Decimals),
				FormatPercent(h.Share), h.ActivePositions, h.ExitedPositions,
				FormatUnits(h.BonusClaimed, h.Decimals), FormatUnits(h.RewardClaimed, r.RewardDecimals)))
		}
	} else {
		sb.WriteString("No holders.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
