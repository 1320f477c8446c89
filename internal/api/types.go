package api

import (
	sdkmath "cosmossdk.io/math"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/feed"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/storage"
)

// Amounts are sdkmath.Int, which encodes as a JSON string of base units.

type ledgerResponse struct {
	Owner           domain.Address `json:"owner"`
	FundAddress     domain.Address `json:"fund_address"`
	Custody         domain.Address `json:"custody"`
	EmergencyMode   bool           `json:"emergency_mode"`
	LastEventSeq    uint64         `json:"last_event_seq"`
	Block           uint64         `json:"block"`
	Timestamp       int64          `json:"timestamp"`
	TotalMultiplier uint64         `json:"total_multiplier"`
	Reward          rewardConfig   `json:"reward"`
}

type rewardConfig struct {
	Token           domain.Address `json:"token"`
	StartBlock      uint64         `json:"start_block"`
	RewardBlocks    uint64         `json:"reward_blocks"`
	BonusBlocks     uint64         `json:"bonus_blocks"`
	RatePerBlock    sdkmath.Int    `json:"rate_per_block"`
	BonusMultiplier uint64         `json:"bonus_multiplier"`
}

type poolResponse struct {
	Token                 domain.Address `json:"token"`
	MaxLockUpLimit        sdkmath.Int    `json:"max_lockup_limit"`
	TotalLockUp           sdkmath.Int    `json:"total_lockup"`
	EffectiveTotalLockUp  sdkmath.Int    `json:"effective_total_lockup"`
	AccBonusPerShare      sdkmath.Int    `json:"acc_bonus_per_share"`
	TotalPenaltyCollected sdkmath.Int    `json:"total_penalty_collected"`
	TotalPlatformFee      sdkmath.Int    `json:"total_platform_fee"`
	TotalBonusClaimed     sdkmath.Int    `json:"total_bonus_claimed"`
	UndistributedPenalty  sdkmath.Int    `json:"undistributed_penalty"`
	AccTotalLockUp        sdkmath.Int    `json:"acc_total_lockup"`
	LockUpCount           uint64         `json:"lockup_count"`
	ActiveLockUpCount     uint64         `json:"active_lockup_count"`
	ExitedLockUpCount     uint64         `json:"exited_lockup_count"`
	CreatedAt             int64          `json:"created_at"`
	Reward                *rewardPool    `json:"reward,omitempty"`
}

type rewardPool struct {
	Multiplier         uint64      `json:"multiplier"`
	AccRewardPerShare  sdkmath.Int `json:"acc_reward_per_share"`
	LastRewardBlock    uint64      `json:"last_reward_block"`
	TotalRewardAccrued sdkmath.Int `json:"total_reward_accrued"`
	TotalRewardClaimed sdkmath.Int `json:"total_reward_claimed"`
}

type positionResponse struct {
	Index            uint64      `json:"index"`
	DurationInMonths uint64      `json:"duration_in_months"`
	Amount           sdkmath.Int `json:"amount"`
	EffectiveAmount  sdkmath.Int `json:"effective_amount"`
	LockedUpAt       int64       `json:"locked_up_at"`
	UnlockedAt       int64       `json:"unlocked_at"`
	Exited           bool        `json:"exited"`
	ExitedAt         int64       `json:"exited_at,omitempty"`
	Penalty          sdkmath.Int `json:"penalty"`
	Fee              sdkmath.Int `json:"fee"`
	State            string      `json:"state"`
}

type accountResponse struct {
	Token          domain.Address     `json:"token"`
	Owner          domain.Address     `json:"owner"`
	Total          sdkmath.Int        `json:"total"`
	EffectiveTotal sdkmath.Int        `json:"effective_total"`
	BonusClaimed   sdkmath.Int        `json:"bonus_claimed"`
	BonusDebt      sdkmath.Int        `json:"bonus_debt"`
	EarnedBonus    sdkmath.Int        `json:"earned_bonus"`
	RewardDebt     sdkmath.Int        `json:"reward_debt"`
	RewardClaimed  sdkmath.Int        `json:"reward_claimed"`
	PendingReward  sdkmath.Int        `json:"pending_reward"`
	Positions      []positionResponse `json:"positions"`
}

type exitResponse struct {
	Index   uint64      `json:"index"`
	Forced  bool        `json:"forced"`
	Net     sdkmath.Int `json:"net"`
	Penalty sdkmath.Int `json:"penalty"`
	Fee     sdkmath.Int `json:"fee"`
	Bonus   sdkmath.Int `json:"bonus"`
}

type claimResponse struct {
	Bonus  sdkmath.Int `json:"bonus"`
	Reward sdkmath.Int `json:"reward"`
}

type checkpointResponse struct {
	ID            int64  `json:"id"`
	SchemaVersion int    `json:"schema_version"`
	LastEventSeq  uint64 `json:"last_event_seq"`
	Block         uint64 `json:"block"`
	TakenAt       int64  `json:"taken_at"`
	Pools         int    `json:"pools"`
	Accounts      int    `json:"accounts"`
}

type registerPoolRequest struct {
	Token          domain.Address `json:"token"`
	MaxLockUpLimit sdkmath.Int    `json:"max_lockup_limit"`
	Multiplier     uint64         `json:"multiplier"`
	SettleAll      bool           `json:"settle_all"`
}

type maxLimitRequest struct {
	MaxLockUpLimit sdkmath.Int `json:"max_lockup_limit"`
}

type multiplierRequest struct {
	Multiplier uint64 `json:"multiplier"`
	SettleAll  bool   `json:"settle_all"`
}

type depositRequest struct {
	Amount           sdkmath.Int `json:"amount"`
	DurationInMonths uint64      `json:"duration_in_months"`
}

type exitRequest struct {
	Force bool `json:"force"`
}

type emergencyRequest struct {
	On bool `json:"on"`
}

type addressRequest struct {
	Address domain.Address `json:"address"`
}

type approveRequest struct {
	Amount sdkmath.Int `json:"amount"`
}

func toPool(p domain.TokenPool, rp *domain.RewardPoolState) poolResponse {
	out := poolResponse{
		Token:                 p.Token,
		MaxLockUpLimit:        p.MaxLockUpLimit,
		TotalLockUp:           p.TotalLockUp,
		EffectiveTotalLockUp:  p.EffectiveTotalLockUp,
		AccBonusPerShare:      p.AccBonusPerShare,
		TotalPenaltyCollected: p.TotalPenaltyCollected,
		TotalPlatformFee:      p.TotalPlatformFee,
		TotalBonusClaimed:     p.TotalBonusClaimed,
		UndistributedPenalty:  p.UndistributedPenalty,
		AccTotalLockUp:        p.AccTotalLockUp,
		LockUpCount:           p.LockUpCount,
		ActiveLockUpCount:     p.ActiveLockUpCount,
		ExitedLockUpCount:     p.ExitedLockUpCount,
		CreatedAt:             p.CreatedAt,
	}
	if rp != nil {
		out.Reward = &rewardPool{
			Multiplier:         rp.Multiplier,
			AccRewardPerShare:  rp.AccRewardPerShare,
			LastRewardBlock:    rp.LastRewardBlock,
			TotalRewardAccrued: rp.TotalRewardAccrued,
			TotalRewardClaimed: rp.TotalRewardClaimed,
		}
	}
	return out
}

func toPosition(p domain.LockUpPosition, now int64) positionResponse {
	return positionResponse{
		Index:            p.Index,
		DurationInMonths: p.DurationInMonths,
		Amount:           p.Amount,
		EffectiveAmount:  p.EffectiveAmount,
		LockedUpAt:       p.LockedUpAt,
		UnlockedAt:       p.UnlockedAt,
		Exited:           p.Exited,
		ExitedAt:         p.ExitedAt,
		Penalty:          p.Penalty,
		Fee:              p.Fee,
		State:            p.State(now).String(),
	}
}

func toExit(r lockup.ExitResult) exitResponse {
	return exitResponse{
		Index:   r.Index,
		Forced:  r.Forced,
		Net:     r.Net,
		Penalty: r.Penalty,
		Fee:     r.Fee,
		Bonus:   r.Bonus,
	}
}

func toCheckpoint(info storage.SnapshotInfo) checkpointResponse {
	return checkpointResponse{
		ID:            info.ID,
		SchemaVersion: info.SchemaVersion,
		LastEventSeq:  info.LastEventSeq,
		Block:         info.Block,
		TakenAt:       info.TakenAt,
		Pools:         info.Pools,
		Accounts:      info.Accounts,
	}
}

func toMessages(events []*domain.Event) []feed.Message {
	out := make([]feed.Message, 0, len(events))
	for _, ev := range events {
		out = append(out, feed.FromEvent(*ev))
	}
	return out
}
