package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/observability"
	"fsp-staking/internal/storage"
)

// ActivityStore implements storage.ActivityStore using ClickHouse.
type ActivityStore struct {
	conn *Conn
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// InsertBulk appends activity events in one batch. Non-activity kinds are
// skipped; replays of an event_id collapse under ReplacingMergeTree.
func (s *ActivityStore) InsertBulk(ctx context.Context, events []*domain.Event) (err error) {
	var rows []*domain.Event
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if storage.IsActivity(e.Kind) {
			rows = append(rows, e)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_activity", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO staking_activity (
			event_id, pool, kind, actor,
			amount, reward, reflection, fee,
			tx_seq, log_index, block_time
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range rows {
		err = batch.Append(
			e.EventID, e.Emitter.String(), string(e.Kind), e.Actor.String(),
			toBig(e.Amount), toBig(e.Reward), toBig(e.Reflection), toBig(e.Fee),
			e.TxSeq, uint32(e.LogIndex), time.Unix(e.Timestamp, 0).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// DailyByPool aggregates a pool's activity per UTC day within [start, end].
func (s *ActivityStore) DailyByPool(ctx context.Context, pool domain.Address, start, end int64) (_ []*storage.DailyActivity, err error) {
	began := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "daily_activity", time.Since(began).Seconds(), err)
	}()

	query := `
		SELECT
			toUInt32(toUnixTimestamp(toStartOfDay(block_time))) AS day,
			countIf(kind = 'DEPOSIT'),
			countIf(kind = 'WITHDRAW'),
			countIf(kind = 'REWARD_CLAIMED'),
			countIf(kind = 'EMERGENCY_WITHDRAW'),
			sumIf(amount, kind = 'DEPOSIT'),
			sumIf(amount, kind IN ('WITHDRAW', 'EMERGENCY_WITHDRAW')),
			sum(reward),
			sum(reflection),
			sum(fee)
		FROM staking_activity FINAL
		WHERE pool = ? AND block_time >= ? AND block_time <= ?
		GROUP BY day
		ORDER BY day ASC
	`

	rows, err := s.conn.Query(ctx, query, pool.String(), time.Unix(start, 0).UTC(), time.Unix(end, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()

	var result []*storage.DailyActivity
	for rows.Next() {
		var day uint32
		row := storage.DailyActivity{Pool: pool}
		staked, unstaked := new(big.Int), new(big.Int)
		rewards, reflections, fees := new(big.Int), new(big.Int), new(big.Int)

		err := rows.Scan(
			&day, &row.Deposits, &row.Withdrawals, &row.Claims, &row.Emergencies,
			staked, unstaked, rewards, reflections, fees,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activity row: %w", err)
		}
		row.Day = int64(day)
		row.Staked = staked.String()
		row.Unstaked = unstaked.String()
		row.Rewards = rewards.String()
		row.Reflections = reflections.String()
		row.Fees = fees.String()
		result = append(result, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return result, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}
