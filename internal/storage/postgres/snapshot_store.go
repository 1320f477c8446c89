package postgres

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/jackc/pgx/v5"

	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// A snapshot is spread over ledger_snapshots and its child tables and is
// written in one transaction.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores a snapshot and returns its ID.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) (_ int64, err error) {
	defer observe("snapshots.save", time.Now(), &err)

	if snap == nil {
		return 0, storage.ErrInvalidInput
	}
	if snap.SchemaVersion > domain.SnapshotSchemaVersion {
		return 0, fmt.Errorf("%w: version %d", storage.ErrUnsupportedSchema, snap.SchemaVersion)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_snapshots (
			schema_version, owner, fund_address, emergency_mode, last_event_seq, block, taken_at, has_tokens
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		snap.SchemaVersion,
		string(snap.Owner),
		string(snap.FundAddress),
		snap.EmergencyMode,
		int64(snap.LastEventSeq),
		int64(snap.Block),
		snap.TakenAt,
		snap.Tokens != nil,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, p := range snap.Pools {
		batch.Queue(`
			INSERT INTO lockup_pools (
				snapshot_id, token, max_lockup_limit, total_lockup, effective_total_lockup,
				acc_bonus_per_share, total_penalty_collected, total_platform_fee, total_bonus_claimed,
				undistributed_penalty, acc_total_lockup, lockup_count, active_lockup_count,
				exited_lockup_count, created_at
			) VALUES (
				$1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
				$9::numeric, $10::numeric, $11::numeric, $12, $13, $14, $15
			)
		`,
			id, string(p.Token),
			numeric(p.MaxLockUpLimit), numeric(p.TotalLockUp), numeric(p.EffectiveTotalLockUp),
			numeric(p.AccBonusPerShare), numeric(p.TotalPenaltyCollected), numeric(p.TotalPlatformFee),
			numeric(p.TotalBonusClaimed), numeric(p.UndistributedPenalty), numeric(p.AccTotalLockUp),
			int64(p.LockUpCount), int64(p.ActiveLockUpCount), int64(p.ExitedLockUpCount), p.CreatedAt,
		)
	}
	for _, a := range snap.Accounts {
		batch.Queue(`
			INSERT INTO lockup_accounts (
				snapshot_id, token, owner, total, effective_total, bonus_claimed, bonus_debt
			) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric)
		`,
			id, string(a.Token), string(a.Owner),
			numeric(a.Total), numeric(a.EffectiveTotal), numeric(a.BonusClaimed), numeric(a.BonusDebt),
		)
		for _, pos := range a.Positions {
			batch.Queue(`
				INSERT INTO lockup_positions (
					snapshot_id, token, owner, position_index, duration_in_months, amount,
					effective_amount, locked_up_at, unlocked_at, exited, exited_at, penalty, fee
				) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, $10, $11, $12::numeric, $13::numeric)
			`,
				id, string(a.Token), string(a.Owner), int64(pos.Index), int64(pos.DurationInMonths),
				numeric(pos.Amount), numeric(pos.EffectiveAmount),
				pos.LockedUpAt, pos.UnlockedAt, pos.Exited, pos.ExitedAt,
				numeric(pos.Penalty), numeric(pos.Fee),
			)
		}
	}
	if r := snap.Rewards; r != nil {
		batch.Queue(`
			INSERT INTO reward_configs (
				snapshot_id, reward_token, start_block, reward_blocks, bonus_blocks, rate_per_block, bonus_multiplier
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		`,
			id, string(r.Config.RewardToken), int64(r.Config.StartBlock), int64(r.Config.RewardBlocks),
			int64(r.Config.BonusBlocks), numeric(r.Config.RatePerBlock), int64(r.Config.BonusMultiplier),
		)
		for _, p := range r.Pools {
			batch.Queue(`
				INSERT INTO reward_pools (
					snapshot_id, token, multiplier, acc_reward_per_share, last_reward_block,
					total_reward_accrued, total_reward_claimed
				) VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7::numeric)
			`,
				id, string(p.Token), int64(p.Multiplier), numeric(p.AccRewardPerShare),
				int64(p.LastRewardBlock), numeric(p.TotalRewardAccrued), numeric(p.TotalRewardClaimed),
			)
		}
		for _, a := range r.Accounts {
			batch.Queue(`
				INSERT INTO reward_accounts (
					snapshot_id, token, owner, reward_debt, reward_claimed
				) VALUES ($1, $2, $3, $4::numeric, $5::numeric)
			`,
				id, string(a.Token), string(a.Owner), numeric(a.RewardDebt), numeric(a.RewardClaimed),
			)
		}
	}

	if snap.Tokens != nil {
		queueTokens(batch, id, snap.Tokens)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isDuplicateKeyError(err) {
				return 0, storage.ErrDuplicateKey
			}
			return 0, fmt.Errorf("insert snapshot rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return id, nil
}

// Latest returns the most recent snapshot. Returns ErrNotFound if none exists.
func (s *SnapshotStore) Latest(ctx context.Context) (_ *domain.Snapshot, err error) {
	defer observe("snapshots.latest", time.Now(), &err)

	var id int64
	err = s.pool.QueryRow(ctx, `SELECT id FROM ledger_snapshots ORDER BY id DESC LIMIT 1`).Scan(&id)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID retrieves a snapshot by ID. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (_ *domain.Snapshot, err error) {
	defer observe("snapshots.get", time.Now(), &err)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		snap        domain.Snapshot
		owner, fund string
		seq, block  int64
		hasTokens   bool
	)
	err = tx.QueryRow(ctx, `
		SELECT schema_version, owner, fund_address, emergency_mode, last_event_seq, block, taken_at, has_tokens
		FROM ledger_snapshots
		WHERE id = $1
	`, id).Scan(&snap.SchemaVersion, &owner, &fund, &snap.EmergencyMode, &seq, &block, &snap.TakenAt, &hasTokens)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}
	if snap.SchemaVersion > domain.SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: snapshot %d has version %d", storage.ErrUnsupportedSchema, id, snap.SchemaVersion)
	}
	snap.Owner = domain.Address(owner)
	snap.FundAddress = domain.Address(fund)
	snap.LastEventSeq = uint64(seq)
	snap.Block = uint64(block)

	if snap.Pools, err = loadPools(ctx, tx, id); err != nil {
		return nil, err
	}
	if snap.Accounts, err = loadAccounts(ctx, tx, id); err != nil {
		return nil, err
	}
	if snap.Rewards, err = loadRewards(ctx, tx, id); err != nil {
		return nil, err
	}
	if hasTokens {
		if snap.Tokens, err = loadTokens(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &snap, nil
}

// List returns up to limit snapshot summaries, newest first.
func (s *SnapshotStore) List(ctx context.Context, limit int) (_ []storage.SnapshotInfo, err error) {
	defer observe("snapshots.list", time.Now(), &err)

	query := `
		SELECT s.id, s.schema_version, s.last_event_seq, s.block, s.taken_at,
			(SELECT count(*) FROM lockup_pools p WHERE p.snapshot_id = s.id),
			(SELECT count(*) FROM lockup_accounts a WHERE a.snapshot_id = s.id)
		FROM ledger_snapshots s
		ORDER BY s.id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []storage.SnapshotInfo
	for rows.Next() {
		var (
			info         storage.SnapshotInfo
			seq, block   int64
			pools, accts int64
		)
		if err := rows.Scan(&info.ID, &info.SchemaVersion, &seq, &block, &info.TakenAt, &pools, &accts); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		info.LastEventSeq = uint64(seq)
		info.Block = uint64(block)
		info.Pools = int(pools)
		info.Accounts = int(accts)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return out, nil
}

func loadPools(ctx context.Context, tx pgx.Tx, id int64) ([]domain.TokenPool, error) {
	rows, err := tx.Query(ctx, `
		SELECT token, max_lockup_limit::text, total_lockup::text, effective_total_lockup::text,
			acc_bonus_per_share::text, total_penalty_collected::text, total_platform_fee::text,
			total_bonus_claimed::text, undistributed_penalty::text, acc_total_lockup::text,
			lockup_count, active_lockup_count, exited_lockup_count, created_at
		FROM lockup_pools
		WHERE snapshot_id = $1
		ORDER BY token ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get snapshot pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.TokenPool
	for rows.Next() {
		var (
			p                     domain.TokenPool
			token                 string
			amounts               [9]string
			count, active, exited int64
		)
		err := rows.Scan(&token,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
			&amounts[5], &amounts[6], &amounts[7], &amounts[8],
			&count, &active, &exited, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan pool row: %w", err)
		}
		ints, err := parseAmounts(amounts[:])
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", token, err)
		}
		p.Token = domain.Address(token)
		p.MaxLockUpLimit = ints[0]
		p.TotalLockUp = ints[1]
		p.EffectiveTotalLockUp = ints[2]
		p.AccBonusPerShare = ints[3]
		p.TotalPenaltyCollected = ints[4]
		p.TotalPlatformFee = ints[5]
		p.TotalBonusClaimed = ints[6]
		p.UndistributedPenalty = ints[7]
		p.AccTotalLockUp = ints[8]
		p.LockUpCount = uint64(count)
		p.ActiveLockUpCount = uint64(active)
		p.ExitedLockUpCount = uint64(exited)
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool rows: %w", err)
	}
	return pools, nil
}

type accountKey struct {
	token, owner string
}

func loadAccounts(ctx context.Context, tx pgx.Tx, id int64) ([]domain.UserAccount, error) {
	rows, err := tx.Query(ctx, `
		SELECT token, owner, total::text, effective_total::text, bonus_claimed::text, bonus_debt::text
		FROM lockup_accounts
		WHERE snapshot_id = $1
		ORDER BY token ASC, owner ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get snapshot accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.UserAccount
	index := make(map[accountKey]int)
	for rows.Next() {
		var (
			token, owner string
			amounts      [4]string
		)
		if err := rows.Scan(&token, &owner, &amounts[0], &amounts[1], &amounts[2], &amounts[3]); err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		ints, err := parseAmounts(amounts[:])
		if err != nil {
			return nil, fmt.Errorf("account %s/%s: %w", token, owner, err)
		}
		index[accountKey{token, owner}] = len(accounts)
		accounts = append(accounts, domain.UserAccount{
			Token:          domain.Address(token),
			Owner:          domain.Address(owner),
			Total:          ints[0],
			EffectiveTotal: ints[1],
			BonusClaimed:   ints[2],
			BonusDebt:      ints[3],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}
	rows.Close()

	posRows, err := tx.Query(ctx, `
		SELECT token, owner, position_index, duration_in_months, amount::text, effective_amount::text,
			locked_up_at, unlocked_at, exited, exited_at, penalty::text, fee::text
		FROM lockup_positions
		WHERE snapshot_id = $1
		ORDER BY token ASC, owner ASC, position_index ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get snapshot positions: %w", err)
	}
	defer posRows.Close()

	for posRows.Next() {
		var (
			token, owner  string
			idx, duration int64
			amounts       [4]string
			p             domain.LockUpPosition
		)
		err := posRows.Scan(&token, &owner, &idx, &duration, &amounts[0], &amounts[1],
			&p.LockedUpAt, &p.UnlockedAt, &p.Exited, &p.ExitedAt, &amounts[2], &amounts[3])
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		i, ok := index[accountKey{token, owner}]
		if !ok {
			return nil, fmt.Errorf("position %s/%s#%d has no account row", token, owner, idx)
		}
		ints, err := parseAmounts(amounts[:])
		if err != nil {
			return nil, fmt.Errorf("position %s/%s#%d: %w", token, owner, idx, err)
		}
		p.Index = uint64(idx)
		p.DurationInMonths = uint64(duration)
		p.Amount = ints[0]
		p.EffectiveAmount = ints[1]
		p.Penalty = ints[2]
		p.Fee = ints[3]
		accounts[i].Positions = append(accounts[i].Positions, p)
	}
	if err := posRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return accounts, nil
}

func loadRewards(ctx context.Context, tx pgx.Tx, id int64) (*domain.RewardSnapshot, error) {
	var (
		r                          domain.RewardSnapshot
		token, rate                string
		start, blocks, bonus, mult int64
	)
	err := tx.QueryRow(ctx, `
		SELECT reward_token, start_block, reward_blocks, bonus_blocks, rate_per_block::text, bonus_multiplier
		FROM reward_configs
		WHERE snapshot_id = $1
	`, id).Scan(&token, &start, &blocks, &bonus, &rate, &mult)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reward config: %w", err)
	}
	ratePerBlock, err := parseAmount(rate)
	if err != nil {
		return nil, fmt.Errorf("reward config: %w", err)
	}
	r.Config = domain.RewardConfig{
		RewardToken:     domain.Address(token),
		StartBlock:      uint64(start),
		RewardBlocks:    uint64(blocks),
		BonusBlocks:     uint64(bonus),
		RatePerBlock:    ratePerBlock,
		BonusMultiplier: uint64(mult),
	}

	rows, err := tx.Query(ctx, `
		SELECT token, multiplier, acc_reward_per_share::text, last_reward_block,
			total_reward_accrued::text, total_reward_claimed::text
		FROM reward_pools
		WHERE snapshot_id = $1
		ORDER BY token ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get reward pools: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p          domain.RewardPoolState
			token      string
			mult, last int64
			amounts    [3]string
		)
		if err := rows.Scan(&token, &mult, &amounts[0], &last, &amounts[1], &amounts[2]); err != nil {
			return nil, fmt.Errorf("scan reward pool row: %w", err)
		}
		ints, err := parseAmounts(amounts[:])
		if err != nil {
			return nil, fmt.Errorf("reward pool %s: %w", token, err)
		}
		p.Token = domain.Address(token)
		p.Multiplier = uint64(mult)
		p.AccRewardPerShare = ints[0]
		p.LastRewardBlock = uint64(last)
		p.TotalRewardAccrued = ints[1]
		p.TotalRewardClaimed = ints[2]
		r.Pools = append(r.Pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reward pool rows: %w", err)
	}
	rows.Close()

	acctRows, err := tx.Query(ctx, `
		SELECT token, owner, reward_debt::text, reward_claimed::text
		FROM reward_accounts
		WHERE snapshot_id = $1
		ORDER BY token ASC, owner ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get reward accounts: %w", err)
	}
	defer acctRows.Close()
	for acctRows.Next() {
		var token, owner, debt, claimed string
		if err := acctRows.Scan(&token, &owner, &debt, &claimed); err != nil {
			return nil, fmt.Errorf("scan reward account row: %w", err)
		}
		ints, err := parseAmounts([]string{debt, claimed})
		if err != nil {
			return nil, fmt.Errorf("reward account %s/%s: %w", token, owner, err)
		}
		r.Accounts = append(r.Accounts, domain.RewardAccount{
			Token:         domain.Address(token),
			Owner:         domain.Address(owner),
			RewardDebt:    ints[0],
			RewardClaimed: ints[1],
		})
	}
	if err := acctRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reward account rows: %w", err)
	}
	return &r, nil
}

func queueTokens(batch *pgx.Batch, id int64, ts *domain.TokenSnapshot) {
	for _, a := range ts.Assets {
		batch.Queue(`
			INSERT INTO token_assets (snapshot_id, asset, symbol, decimals, supply)
			VALUES ($1, $2, $3, $4, $5::numeric)
		`, id, string(a.ID), a.Symbol, int16(a.Decimals), numeric(a.Supply))
		for _, m := range a.Minters {
			batch.Queue(`
				INSERT INTO token_minters (snapshot_id, asset, minter) VALUES ($1, $2, $3)
			`, id, string(a.ID), string(m))
		}
		for _, h := range a.Balances {
			batch.Queue(`
				INSERT INTO token_balances (snapshot_id, asset, owner, amount)
				VALUES ($1, $2, $3, $4::numeric)
			`, id, string(a.ID), string(h.Owner), numeric(h.Amount))
		}
		for _, al := range a.Allowances {
			batch.Queue(`
				INSERT INTO token_allowances (snapshot_id, asset, owner, spender, amount)
				VALUES ($1, $2, $3, $4, $5::numeric)
			`, id, string(a.ID), string(al.Owner), string(al.Spender), numeric(al.Amount))
		}
	}
}

func loadTokens(ctx context.Context, tx pgx.Tx, id int64) (*domain.TokenSnapshot, error) {
	ts := &domain.TokenSnapshot{}
	index := make(map[string]int)

	rows, err := tx.Query(ctx, `
		SELECT asset, symbol, decimals, supply::text
		FROM token_assets
		WHERE snapshot_id = $1
		ORDER BY asset ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get token assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			asset, symbol, supply string
			decimals              int16
		)
		if err := rows.Scan(&asset, &symbol, &decimals, &supply); err != nil {
			return nil, fmt.Errorf("scan token asset row: %w", err)
		}
		v, err := parseAmount(supply)
		if err != nil {
			return nil, fmt.Errorf("token asset %s: %w", asset, err)
		}
		index[asset] = len(ts.Assets)
		ts.Assets = append(ts.Assets, domain.AssetState{
			ID:       domain.Address(asset),
			Symbol:   symbol,
			Decimals: uint8(decimals),
			Supply:   v,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token asset rows: %w", err)
	}
	rows.Close()

	minterRows, err := tx.Query(ctx, `
		SELECT asset, minter FROM token_minters
		WHERE snapshot_id = $1
		ORDER BY asset ASC, minter ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get token minters: %w", err)
	}
	defer minterRows.Close()
	for minterRows.Next() {
		var asset, minter string
		if err := minterRows.Scan(&asset, &minter); err != nil {
			return nil, fmt.Errorf("scan token minter row: %w", err)
		}
		a := &ts.Assets[index[asset]]
		a.Minters = append(a.Minters, domain.Address(minter))
	}
	if err := minterRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token minter rows: %w", err)
	}
	minterRows.Close()

	balRows, err := tx.Query(ctx, `
		SELECT asset, owner, amount::text FROM token_balances
		WHERE snapshot_id = $1
		ORDER BY asset ASC, owner ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get token balances: %w", err)
	}
	defer balRows.Close()
	for balRows.Next() {
		var asset, owner, amount string
		if err := balRows.Scan(&asset, &owner, &amount); err != nil {
			return nil, fmt.Errorf("scan token balance row: %w", err)
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("token balance %s/%s: %w", asset, owner, err)
		}
		a := &ts.Assets[index[asset]]
		a.Balances = append(a.Balances, domain.Holding{Owner: domain.Address(owner), Amount: v})
	}
	if err := balRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token balance rows: %w", err)
	}
	balRows.Close()

	allowRows, err := tx.Query(ctx, `
		SELECT asset, owner, spender, amount::text FROM token_allowances
		WHERE snapshot_id = $1
		ORDER BY asset ASC, owner ASC, spender ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get token allowances: %w", err)
	}
	defer allowRows.Close()
	for allowRows.Next() {
		var asset, owner, spender, amount string
		if err := allowRows.Scan(&asset, &owner, &spender, &amount); err != nil {
			return nil, fmt.Errorf("scan token allowance row: %w", err)
		}
		v, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("token allowance %s/%s/%s: %w", asset, owner, spender, err)
		}
		a := &ts.Assets[index[asset]]
		a.Allowances = append(a.Allowances, domain.Allowance{
			Owner:   domain.Address(owner),
			Spender: domain.Address(spender),
			Amount:  v,
		})
	}
	if err := allowRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token allowance rows: %w", err)
	}
	return ts, nil
}

// numeric renders an amount for a NUMERIC(78,0) parameter. Nil amounts are stored as 0.
func numeric(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseAmounts(in []string) ([]sdkmath.Int, error) {
	out := make([]sdkmath.Int, len(in))
	for i, s := range in {
		v, err := parseAmount(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
