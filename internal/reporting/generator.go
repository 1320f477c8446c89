package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"lockup-ledger/internal/domain"
)

// Source provides the ledger state to report on.
type Source interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// AssetInfo resolves display metadata of a token.
type AssetInfo interface {
	Symbol(id domain.Address) (string, error)
	Decimals(id domain.Address) (uint8, error)
}

// Generator produces reports from a live ledger.
type Generator struct {
	source Source
	assets AssetInfo
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. assets may be nil, in which
// case amounts are shown in base units and tokens by address.
func NewGenerator(source Source, assets AssetInfo) *Generator {
	return &Generator{
		source: source,
		assets: assets,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate snapshots the source and builds a report from it.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	snap, err := g.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return Build(snap, g.assets, g.now()), nil
}

// Build produces a report from a snapshot.
func Build(snap domain.Snapshot, assets AssetInfo, generatedAt time.Time) *Report {
	r := &Report{
		GeneratedAt:   generatedAt,
		Block:         snap.Block,
		LastEventSeq:  snap.LastEventSeq,
		Owner:         snap.Owner,
		FundAddress:   snap.FundAddress,
		EmergencyMode: snap.EmergencyMode,
	}

	rewardPools := make(map[domain.Address]domain.RewardPoolState)
	rewardClaimed := make(map[[2]domain.Address]sdkmath.Int)
	if rs := snap.Rewards; rs != nil {
		r.RewardToken = rs.Config.RewardToken
		r.RewardSymbol, r.RewardDecimals = describeAsset(assets, rs.Config.RewardToken)
		for _, p := range rs.Pools {
			rewardPools[p.Token] = p
			r.TotalMultiplier += p.Multiplier
		}
		for _, a := range rs.Accounts {
			rewardClaimed[[2]domain.Address{a.Token, a.Owner}] = a.RewardClaimed
		}
	}

	holders := make(map[domain.Address]int)
	for _, a := range snap.Accounts {
		if a.Total.IsPositive() {
			holders[a.Token]++
		}
	}

	effective := make(map[domain.Address]sdkmath.Int)
	for _, p := range snap.Pools {
		symbol, decimals := describeAsset(assets, p.Token)
		row := PoolRow{
			Token:                 p.Token,
			Symbol:                symbol,
			Decimals:              decimals,
			MaxLockUpLimit:        p.MaxLockUpLimit,
			TotalLockUp:           p.TotalLockUp,
			EffectiveTotalLockUp:  p.EffectiveTotalLockUp,
			AccTotalLockUp:        p.AccTotalLockUp,
			TotalPenaltyCollected: p.TotalPenaltyCollected,
			TotalPlatformFee:      p.TotalPlatformFee,
			TotalBonusClaimed:     p.TotalBonusClaimed,
			UndistributedPenalty:  p.UndistributedPenalty,
			Utilization:           ratio(p.TotalLockUp, p.MaxLockUpLimit),
			AverageBoost:          ratio(p.EffectiveTotalLockUp, p.TotalLockUp),
			TotalPositions:        p.LockUpCount,
			ActivePositions:       p.ActiveLockUpCount,
			ExitedPositions:       p.ExitedLockUpCount,
			Holders:               holders[p.Token],
			RewardShare:           decimal.Zero,
			RewardAccrued:         sdkmath.ZeroInt(),
			RewardClaimed:         sdkmath.ZeroInt(),
		}
		if rp, ok := rewardPools[p.Token]; ok && r.TotalMultiplier > 0 {
			row.RewardMultiplier = rp.Multiplier
			row.RewardShare = decimal.NewFromInt(int64(rp.Multiplier)).
				DivRound(decimal.NewFromInt(int64(r.TotalMultiplier)), 8)
			row.RewardAccrued = rp.TotalRewardAccrued
			row.RewardClaimed = rp.TotalRewardClaimed
		}
		r.Pools = append(r.Pools, row)
		effective[p.Token] = p.EffectiveTotalLockUp
	}
	sort.Slice(r.Pools, func(i, j int) bool { return r.Pools[i].Token < r.Pools[j].Token })

	for _, a := range snap.Accounts {
		symbol, decimals := describeAsset(assets, a.Token)
		row := HolderRow{
			Token:          a.Token,
			Owner:          a.Owner,
			Symbol:         symbol,
			Decimals:       decimals,
			Total:          a.Total,
			EffectiveTotal: a.EffectiveTotal,
			Share:          ratio(a.EffectiveTotal, effective[a.Token]),
			BonusClaimed:   a.BonusClaimed,
			RewardClaimed:  sdkmath.ZeroInt(),
		}
		if v, ok := rewardClaimed[[2]domain.Address{a.Token, a.Owner}]; ok {
			row.RewardClaimed = v
		}
		for _, pos := range a.Positions {
			if pos.IsExited() {
				row.ExitedPositions++
			} else {
				row.ActivePositions++
			}
		}
		r.Holders = append(r.Holders, row)
	}
	sort.Slice(r.Holders, func(i, j int) bool {
		a, b := r.Holders[i], r.Holders[j]
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		if !a.EffectiveTotal.Equal(b.EffectiveTotal) {
			return a.EffectiveTotal.GT(b.EffectiveTotal)
		}
		return a.Owner < b.Owner
	})

	return r
}

func describeAsset(assets AssetInfo, id domain.Address) (string, uint8) {
	if assets == nil {
		return id.String(), 0
	}
	symbol, err := assets.Symbol(id)
	if err != nil || symbol == "" {
		symbol = id.String()
	}
	decimals, err := assets.Decimals(id)
	if err != nil {
		decimals = 0
	}
	return symbol, decimals
}
