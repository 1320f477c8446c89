package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/reporting"
	"lockup-ledger/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime":         time.Since(s.started).Round(time.Second).String(),
		"last_event_seq": s.ledger.LastEventSeq(),
	})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg := s.emitter.Config(ctx)
	clk := s.ledger.Clock()
	writeJSON(w, http.StatusOK, ledgerResponse{
		Owner:           s.ledger.Owner(),
		FundAddress:     s.ledger.FundAddress(),
		Custody:         s.ledger.Custody(),
		EmergencyMode:   s.ledger.EmergencyMode(),
		LastEventSeq:    s.ledger.LastEventSeq(),
		Block:           clk.Block(),
		Timestamp:       clk.Now(),
		TotalMultiplier: s.emitter.TotalMultiplier(ctx),
		Reward: rewardConfig{
			Token:           cfg.RewardToken,
			StartBlock:      cfg.StartBlock,
			RewardBlocks:    cfg.RewardBlocks,
			BonusBlocks:     cfg.BonusBlocks,
			RatePerBlock:    cfg.RatePerBlock,
			BonusMultiplier: cfg.BonusMultiplier,
		},
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.ledger.Pools(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	rewardPools, err := s.emitter.RewardPools(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	byToken := make(map[domain.Address]*domain.RewardPoolState, len(rewardPools))
	for i := range rewardPools {
		byToken[rewardPools[i].Token] = &rewardPools[i]
	}

	out := make([]poolResponse, 0, len(pools))
	for _, p := range pools {
		out = append(out, toPool(p, byToken[p.Token]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.ledger.Pool(r.Context(), tok)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var rp *domain.RewardPoolState
	state, err := s.emitter.RewardPool(r.Context(), tok)
	switch {
	case err == nil:
		rp = &state
	case !errors.Is(err, domain.ErrPoolNotFound):
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPool(p, rp))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := s.pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}

	a, err := s.ledger.Account(ctx, tok, owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	earned, err := s.ledger.EarnedBonus(ctx, tok, owner)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := accountResponse{
		Token:          a.Token,
		Owner:          a.Owner,
		Total:          a.Total,
		EffectiveTotal: a.EffectiveTotal,
		BonusClaimed:   a.BonusClaimed,
		BonusDebt:      a.BonusDebt,
		EarnedBonus:    earned,
		RewardDebt:     sdkmath.ZeroInt(),
		RewardClaimed:  sdkmath.ZeroInt(),
		PendingReward:  sdkmath.ZeroInt(),
		Positions:      make([]positionResponse, 0, len(a.Positions)),
	}
	ra, err := s.emitter.RewardAccount(ctx, tok, owner)
	switch {
	case err == nil:
		resp.RewardDebt = ra.RewardDebt
		resp.RewardClaimed = ra.RewardClaimed
		if resp.PendingReward, err = s.emitter.PendingReward(ctx, tok, owner); err != nil {
			s.writeError(w, err)
			return
		}
	case !errors.Is(err, domain.ErrPoolNotFound):
		s.writeError(w, err)
		return
	}

	now := s.ledger.Clock().Now()
	for _, p := range a.Positions {
		resp.Positions = append(resp.Positions, toPosition(p, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := s.pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.ledger.Position(r.Context(), tok, owner, index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPosition(p, s.ledger.Clock().Now()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	var (
		events []*domain.Event
		err    error
	)
	switch {
	case q.Get("token") != "":
		events, err = s.events.GetByToken(ctx, domain.Address(q.Get("token")))
	case q.Get("account") != "":
		events, err = s.events.GetByAccount(ctx, domain.Address(q.Get("account")))
	default:
		from, to := uint64(1), ^uint64(0)
		if from, err = queryUint(q.Get("from"), from); err != nil {
			s.writeError(w, err)
			return
		}
		if to, err = queryUint(q.Get("to"), to); err != nil {
			s.writeError(w, err)
			return
		}
		events, err = s.events.GetBySeqRange(ctx, from, to)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessages(events))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	owner, err := s.pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	bal, err := s.tokens.BalanceOf(r.Context(), tok, owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	allowance, err := s.tokens.Allowance(r.Context(), tok, owner, s.ledger.Custody())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]sdkmath.Int{
		"balance":           bal,
		"custody_allowance": allowance,
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	approver, ok := s.tokens.(Approver)
	if !ok {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req approveRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Amount.IsNil() {
		s.writeError(w, domain.ErrInvalidAmount.Wrap("amount is required"))
		return
	}
	if err := approver.Approve(r.Context(), tok, caller, s.ledger.Custody(), req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	var index uint64
	err := operation("deposit", func() (err error) {
		index, err = s.ledger.Deposit(r.Context(), caller, tok, req.Amount, req.DurationInMonths)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"index": index})
}

func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req exitRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	var res lockup.ExitResult
	err = operation("exit", func() (err error) {
		res, err = s.ledger.Exit(r.Context(), caller, tok, index, req.Force)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExit(res))
}

func (s *Server) handleClaimBonus(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	var bonus sdkmath.Int
	err := operation("claim_bonus", func() (err error) {
		bonus, err = s.ledger.ClaimBonus(r.Context(), caller, tok)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Bonus: bonus, Reward: sdkmath.ZeroInt()})
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	var amount sdkmath.Int
	err := operation("claim_reward", func() (err error) {
		amount, err = s.emitter.ClaimReward(r.Context(), caller, tok)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{Bonus: sdkmath.ZeroInt(), Reward: amount})
}

func (s *Server) handleClaimAll(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	var resp claimResponse
	err := operation("claim_reward_and_bonus", func() (err error) {
		resp.Reward, resp.Bonus, err = s.emitter.ClaimRewardAndBonus(r.Context(), caller, tok)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettlePool(w http.ResponseWriter, r *http.Request) {
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var accrued sdkmath.Int
	err = operation("update_pool", func() (err error) {
		accrued, err = s.emitter.UpdatePool(r.Context(), tok)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]sdkmath.Int{"accrued": accrued})
}

func (s *Server) handleSettleAll(w http.ResponseWriter, r *http.Request) {
	err := operation("update_all_pools", func() error {
		return s.emitter.UpdateAllPools(r.Context())
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterPool(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req registerPoolRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	tok, err := s.parseAddress(req.Token.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.MaxLockUpLimit.IsNil() {
		s.writeError(w, domain.ErrInvalidAmount.Wrap("max_lockup_limit is required"))
		return
	}

	err = operation("register_reward_pool", func() error {
		return s.emitter.RegisterRewardPool(r.Context(), caller, tok, req.Multiplier, req.MaxLockUpLimit, req.SettleAll)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.ledger.Pool(r.Context(), tok)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rp, err := s.emitter.RewardPool(r.Context(), tok)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPool(p, &rp))
}

func (s *Server) handleUpdateMaxLimit(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	var req maxLimitRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.MaxLockUpLimit.IsNil() {
		s.writeError(w, domain.ErrInvalidAmount.Wrap("max_lockup_limit is required"))
		return
	}
	err := operation("update_max_limit", func() error {
		return s.ledger.UpdateMaxLimit(r.Context(), caller, tok, req.MaxLockUpLimit)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateMultiplier(w http.ResponseWriter, r *http.Request) {
	caller, tok, ok := s.callerAndToken(w, r)
	if !ok {
		return
	}
	var req multiplierRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	err := operation("update_pool_multiplier", func() error {
		return s.emitter.UpdatePoolMultiplier(r.Context(), caller, tok, req.Multiplier, req.SettleAll)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req emergencyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	err = operation("set_emergency_mode", func() error {
		return s.ledger.SetEmergencyMode(r.Context(), caller, req.On)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	s.handleAddressChange(w, r, "set_fund_address", func(caller, addr domain.Address) error {
		return s.ledger.SetFundAddress(r.Context(), caller, addr)
	})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	s.handleAddressChange(w, r, "transfer_ownership", func(caller, addr domain.Address) error {
		return s.ledger.TransferOwnership(r.Context(), caller, addr)
	})
}

func (s *Server) handleAddressChange(w http.ResponseWriter, r *http.Request, name string, apply func(caller, addr domain.Address) error) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req addressRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	addr, err := s.parseCaller(req.Address.String())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := operation(name, func() error { return apply(caller, addr) }); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	limit, err := queryUint(r.URL.Query().Get("limit"), 20)
	if err != nil {
		s.writeError(w, err)
		return
	}
	infos, err := s.checkpoints.List(r.Context(), int(limit))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]checkpointResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toCheckpoint(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if caller != s.ledger.Owner() {
		s.writeError(w, domain.ErrUnauthorized.Wrapf("%s is not the owner", caller))
		return
	}
	info, err := s.checkpoints.Save(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckpoint(info))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.writeError(w, storage.ErrNotFound)
		return
	}
	report, err := s.reports.Generate(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(reporting.RenderMarkdown(report)))
	case "pools.csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(reporting.RenderPoolsCSV(report)))
	case "holders.csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(reporting.RenderHoldersCSV(report)))
	default:
		s.writeError(w, storage.ErrInvalidInput)
	}
}

func (s *Server) callerAndToken(w http.ResponseWriter, r *http.Request) (domain.Address, domain.Address, bool) {
	caller, err := s.caller(r)
	if err != nil {
		s.writeError(w, err)
		return "", "", false
	}
	tok, err := s.pathAddress(r, "token")
	if err != nil {
		s.writeError(w, err)
		return "", "", false
	}
	return caller, tok, true
}

func pathIndex(r *http.Request) (uint64, error) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		return 0, domain.ErrPositionNotFound.Wrapf("index %q", mux.Vars(r)["index"])
	}
	return index, nil
}

func queryUint(v string, def uint64) (uint64, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, storage.ErrInvalidInput
	}
	return n, nil
}
