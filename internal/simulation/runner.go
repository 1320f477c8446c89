package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"go.uber.org/zap"

	"lockup-ledger/internal/clock"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/orchestrator"
	"lockup-ledger/internal/reporting"
	"lockup-ledger/internal/storage/memory"
	"lockup-ledger/internal/token"
)

// errorKinds maps the names usable in a step's error field.
var errorKinds = map[string]error{
	"PoolNotFound":                        domain.ErrPoolNotFound,
	"PoolAlreadyExists":                   domain.ErrPoolAlreadyExists,
	"InsufficientBalanceOrAllowance":      domain.ErrInsufficientBalanceOrAllowance,
	"InvalidDuration":                     domain.ErrInvalidDuration,
	"MaxLimitExceeded":                    domain.ErrMaxLimitExceeded,
	"AlreadyExited":                       domain.ErrAlreadyExited,
	"NotMaturedAndNotForced":              domain.ErrNotMaturedAndNotForced,
	"NotAllowedInEmergency":               domain.ErrNotAllowedInEmergency,
	"MultiplierDecreaseRequiresSettleAll": domain.ErrMultiplierDecreaseRequiresSettleAll,
	"Unauthorized":                        domain.ErrUnauthorized,
	"InvalidAmount":                       domain.ErrInvalidAmount,
	"PositionNotFound":                    domain.ErrPositionNotFound,
	"InvalidMultiplier":                   domain.ErrInvalidMultiplier,
	"InvalidAddress":                      domain.ErrInvalidAddress,
	"MintNotAllowed":                      domain.ErrMintNotAllowed,
}

// StepError reports the step at which a scenario diverged.
type StepError struct {
	Step   int
	Action string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Action, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepResult records one executed step.
type StepResult struct {
	Step   int
	Action string
	Block  uint64
	Detail string
}

// Result is the outcome of a scenario run.
type Result struct {
	Name     string
	Steps    []StepResult
	Events   []*domain.Event
	Snapshot domain.Snapshot
	Report   *reporting.Report
}

// Runner executes scenarios. Each run gets a fresh system.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a scenario runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger.Named("simulation")}
}

type run struct {
	sc      *Scenario
	clock   *clock.Manual
	tokens  *token.MemoryLedger
	events  *memory.EventStore
	sys     *orchestrator.Orchestrator
	owner   domain.Address
	custody domain.Address
}

// Run executes sc step by step. It stops at the first step whose outcome
// differs from the script and returns a *StepError with the partial result.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	rn, err := r.setup(sc)
	if err != nil {
		return nil, fmt.Errorf("setup %q: %w", sc.Name, err)
	}

	res := &Result{Name: sc.Name}
	for i, st := range sc.Steps {
		fail := func(err error) (*Result, error) {
			r.logger.Warn("step diverged", zap.Int("step", i+1), zap.String("action", st.Action), zap.Error(err))
			return res, &StepError{Step: i + 1, Action: st.Action, Err: err}
		}

		detail, err := actions[st.Action](ctx, rn, st)
		if err := outcome(st, err); err != nil {
			return fail(err)
		}
		if st.Error != "" {
			detail = "rejected: " + st.Error
		}
		for _, c := range st.Expect {
			if err := rn.check(ctx, c); err != nil {
				return fail(err)
			}
		}

		res.Steps = append(res.Steps, StepResult{
			Step:   i + 1,
			Action: st.Action,
			Block:  rn.clock.Block(),
			Detail: detail,
		})
		r.logger.Debug("step", zap.Int("step", i+1), zap.String("action", st.Action), zap.String("detail", detail))
	}

	if res.Events, err = rn.events.GetBySeqRange(ctx, 1, ^uint64(0)); err != nil {
		return res, fmt.Errorf("read events: %w", err)
	}
	if res.Snapshot, err = rn.sys.Ledger.Snapshot(ctx); err != nil {
		return res, fmt.Errorf("snapshot: %w", err)
	}
	res.Report = reporting.Build(res.Snapshot, rn.tokens, time.Unix(rn.clock.Now(), 0).UTC())

	r.logger.Info("scenario finished",
		zap.String("name", sc.Name),
		zap.Int("steps", len(res.Steps)),
		zap.Int("events", len(res.Events)),
	)
	return res, nil
}

func (r *Runner) setup(sc *Scenario) (*run, error) {
	rn := &run{
		sc:      sc,
		clock:   clock.NewManual(sc.Genesis.Block, sc.Genesis.Time),
		tokens:  token.NewMemoryLedger(),
		events:  memory.NewEventStore(),
		owner:   domain.Address(sc.Owner),
		custody: domain.Address(sc.Custody),
	}

	rewardToken := domain.Address(sc.Reward.Token)
	haveReward := false
	for _, a := range sc.Assets {
		id := domain.Address(a.ID)
		if err := rn.tokens.CreateAsset(id, a.Symbol, a.Decimals, domain.Address(a.Holder), a.Supply.Int); err != nil {
			return nil, err
		}
		haveReward = haveReward || id == rewardToken
	}
	if !haveReward {
		if err := rn.tokens.CreateAsset(rewardToken, sc.Reward.Token, 18, "", sdkmath.ZeroInt()); err != nil {
			return nil, err
		}
	}
	minter := domain.Address(sc.Minter)
	if err := rn.tokens.AddMinter(rewardToken, minter); err != nil {
		return nil, err
	}

	sys, err := orchestrator.New(orchestrator.Options{
		Tokens:  rn.tokens,
		Clock:   rn.clock,
		Owner:   rn.owner,
		Fund:    domain.Address(sc.Fund),
		Custody: rn.custody,
		Minter:  minter,
		Reward: domain.RewardConfig{
			RewardToken:     rewardToken,
			StartBlock:      sc.Reward.StartBlock,
			RewardBlocks:    sc.Reward.RewardBlocks,
			BonusBlocks:     sc.Reward.BonusBlocks,
			RatePerBlock:    sc.Reward.RatePerBlock.Int,
			BonusMultiplier: sc.Reward.BonusMultiplier,
		},
		Snapshots: memory.NewSnapshotStore(),
		Events:    rn.events,
		StoreName: "memory",
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}
	rn.sys = sys
	return rn, nil
}

// outcome compares a step's error with the scripted expectation.
func outcome(st Step, err error) error {
	if st.Error == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("expected %s, step succeeded", st.Error)
	}
	if !errors.Is(err, errorKinds[st.Error]) {
		return fmt.Errorf("expected %s, got: %w", st.Error, err)
	}
	return nil
}

func (rn *run) caller(st Step) domain.Address {
	if st.Caller == "" {
		return rn.owner
	}
	return domain.Address(st.Caller)
}

type action func(ctx context.Context, rn *run, st Step) (string, error)

var actions = map[string]action{
	"register_pool":      registerPool,
	"update_limit":       updateLimit,
	"set_multiplier":     setMultiplier,
	"transfer":           transfer,
	"approve":            approve,
	"deposit":            deposit,
	"exit":               exit,
	"claim_bonus":        claimBonus,
	"claim_reward":       claimReward,
	"claim_all":          claimAll,
	"update_pool":        updatePool,
	"update_all":         updateAll,
	"emergency":          emergency,
	"set_fund":           setFund,
	"transfer_ownership": transferOwnership,
	"advance":            advance,
	"checkpoint":         saveCheckpoint,
	"restore":            restoreCheckpoint,
}

func registerPool(ctx context.Context, rn *run, st Step) (string, error) {
	err := rn.sys.Emitter.RegisterRewardPool(ctx, rn.caller(st), domain.Address(st.Token), st.Multiplier, st.Amount.Int, st.SettleAll)
	return fmt.Sprintf("%s limit %s multiplier %d", st.Token, st.Amount, st.Multiplier), err
}

func updateLimit(ctx context.Context, rn *run, st Step) (string, error) {
	err := rn.sys.Ledger.UpdateMaxLimit(ctx, rn.caller(st), domain.Address(st.Token), st.Amount.Int)
	return fmt.Sprintf("%s limit %s", st.Token, st.Amount), err
}

func setMultiplier(ctx context.Context, rn *run, st Step) (string, error) {
	err := rn.sys.Emitter.UpdatePoolMultiplier(ctx, rn.caller(st), domain.Address(st.Token), st.Multiplier, st.SettleAll)
	return fmt.Sprintf("%s multiplier %d", st.Token, st.Multiplier), err
}

func transfer(ctx context.Context, rn *run, st Step) (string, error) {
	err := rn.tokens.Transfer(ctx, domain.Address(st.Token), rn.caller(st), domain.Address(st.To), st.Amount.Int)
	return fmt.Sprintf("%s %s to %s", st.Amount, st.Token, st.To), err
}

func approve(ctx context.Context, rn *run, st Step) (string, error) {
	err := rn.tokens.Approve(ctx, domain.Address(st.Token), rn.caller(st), rn.custody, st.Amount.Int)
	return fmt.Sprintf("%s %s", st.Amount, st.Token), err
}

func deposit(ctx context.Context, rn *run, st Step) (string, error) {
	caller, tok := rn.caller(st), domain.Address(st.Token)
	if !st.SkipApprove && !st.Amount.IsNil() && !st.Amount.IsNegative() {
		if err := rn.tokens.Approve(ctx, tok, caller, rn.custody, st.Amount.Int); err != nil {
			return "", err
		}
	}
	index, err := rn.sys.Ledger.Deposit(ctx, caller, tok, st.Amount.Int, st.Months)
	return fmt.Sprintf("%s %s for %d months, index %d", st.Amount, st.Token, st.Months, index), err
}

func exit(ctx context.Context, rn *run, st Step) (string, error) {
	res, err := rn.sys.Ledger.Exit(ctx, rn.caller(st), domain.Address(st.Token), st.Index, st.Force)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("index %d net %s penalty %s fee %s bonus %s", res.Index, res.Net, res.Penalty, res.Fee, res.Bonus), nil
}

func claimBonus(ctx context.Context, rn *run, st Step) (string, error) {
	bonus, err := rn.sys.Ledger.ClaimBonus(ctx, rn.caller(st), domain.Address(st.Token))
	return fmt.Sprintf("bonus %s", bonus), err
}

func claimReward(ctx context.Context, rn *run, st Step) (string, error) {
	amount, err := rn.sys.Emitter.ClaimReward(ctx, rn.caller(st), domain.Address(st.Token))
	return fmt.Sprintf("reward %s", amount), err
}

func claimAll(ctx context.Context, rn *run, st Step) (string, error) {
	rewardAmt, bonus, err := rn.sys.Emitter.ClaimRewardAndBonus(ctx, rn.caller(st), domain.Address(st.Token))
	return fmt.Sprintf("reward %s bonus %s", rewardAmt, bonus), err
}

func updatePool(ctx context.Context, rn *run, st Step) (string, error) {
	credited, err := rn.sys.Emitter.UpdatePool(ctx, domain.Address(st.Token))
	return fmt.Sprintf("credited %s", credited), err
}

func updateAll(ctx context.Context, rn *run, _ Step) (string, error) {
	return "", rn.sys.Emitter.UpdateAllPools(ctx)
}

func emergency(ctx context.Context, rn *run, st Step) (string, error) {
	return fmt.Sprintf("on=%t", st.On), rn.sys.Ledger.SetEmergencyMode(ctx, rn.caller(st), st.On)
}

func setFund(ctx context.Context, rn *run, st Step) (string, error) {
	return st.To, rn.sys.Ledger.SetFundAddress(ctx, rn.caller(st), domain.Address(st.To))
}

func transferOwnership(ctx context.Context, rn *run, st Step) (string, error) {
	return st.To, rn.sys.Ledger.TransferOwnership(ctx, rn.caller(st), domain.Address(st.To))
}

// advance mines blocks and moves time forward. months is counted in
// lock-up months.
func advance(_ context.Context, rn *run, st Step) (string, error) {
	if st.Seconds < 0 {
		return "", fmt.Errorf("cannot move time backwards")
	}
	rn.clock.AdvanceBlocks(st.Blocks)
	secs := st.Seconds + int64(st.Months)*lockup.SecondsPerMonth
	rn.clock.AdvanceTime(time.Duration(secs) * time.Second)
	return fmt.Sprintf("block %d time %d", rn.clock.Block(), rn.clock.Now()), nil
}

func saveCheckpoint(ctx context.Context, rn *run, _ Step) (string, error) {
	info, err := rn.sys.Checkpoints.Save(ctx)
	return fmt.Sprintf("checkpoint %d at seq %d", info.ID, info.LastEventSeq), err
}

func restoreCheckpoint(ctx context.Context, rn *run, _ Step) (string, error) {
	ok, err := rn.sys.Checkpoints.RestoreLatest(ctx)
	if err == nil && !ok {
		err = errors.New("no checkpoint to restore")
	}
	return fmt.Sprintf("seq %d", rn.sys.Ledger.LastEventSeq()), err
}

type checkFunc func(ctx context.Context, rn *run, c Check) (string, error)

var checks = map[string]checkFunc{
	"balance": func(ctx context.Context, rn *run, c Check) (string, error) {
		v, err := rn.tokens.BalanceOf(ctx, domain.Address(c.Token), domain.Address(c.Account))
		return v.String(), err
	},
	"pending_reward": func(ctx context.Context, rn *run, c Check) (string, error) {
		v, err := rn.sys.Emitter.PendingReward(ctx, domain.Address(c.Token), domain.Address(c.Account))
		return v.String(), err
	},
	"earned_bonus": func(ctx context.Context, rn *run, c Check) (string, error) {
		v, err := rn.sys.Ledger.EarnedBonus(ctx, domain.Address(c.Token), domain.Address(c.Account))
		return v.String(), err
	},
	"total_lockup": func(ctx context.Context, rn *run, c Check) (string, error) {
		p, err := rn.sys.Ledger.Pool(ctx, domain.Address(c.Token))
		return p.TotalLockUp.String(), err
	},
	"effective_total_lockup": func(ctx context.Context, rn *run, c Check) (string, error) {
		p, err := rn.sys.Ledger.Pool(ctx, domain.Address(c.Token))
		return p.EffectiveTotalLockUp.String(), err
	},
	"undistributed_penalty": func(ctx context.Context, rn *run, c Check) (string, error) {
		p, err := rn.sys.Ledger.Pool(ctx, domain.Address(c.Token))
		return p.UndistributedPenalty.String(), err
	},
	"position_state": func(ctx context.Context, rn *run, c Check) (string, error) {
		p, err := rn.sys.Ledger.Position(ctx, domain.Address(c.Token), domain.Address(c.Account), c.Index)
		return p.State(rn.clock.Now()).String(), err
	},
}

func (rn *run) check(ctx context.Context, c Check) error {
	got, err := checks[c.Kind](ctx, rn, c)
	if err != nil {
		return fmt.Errorf("check %s: %w", c.Kind, err)
	}
	want := c.State
	if c.Kind != "position_state" {
		want = c.Amount.String()
	}
	if got != want {
		return fmt.Errorf("check %s %s/%s: got %s, want %s", c.Kind, c.Token, c.Account, got, want)
	}
	return nil
}
