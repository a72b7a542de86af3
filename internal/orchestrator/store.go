package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jax-papertrader/internal/apperr"
)

// Store persists and retrieves run reports.
type Store interface {
	// GetReport returns the prior report for (symbol, tf, candleTs), if any.
	GetReport(ctx context.Context, symbol, tf string, candleTs time.Time) (RunReport, bool, error)
	// InsertReport persists the report for (symbol, tf, candleTs). A prior
	// ERROR report for the same cycle is replaced; RunCycle's step 2 check
	// returns a prior OK/NOOP report before this is ever called.
	InsertReport(ctx context.Context, r RunReport) error
	// GetReportByID returns the report with runID, if any.
	GetReportByID(ctx context.Context, runID string) (RunReport, bool, error)
	// ListReports returns the most recent reports for (symbol, tf), newest
	// first, bounded by limit (0 means unbounded).
	ListReports(ctx context.Context, symbol, tf string, limit int) ([]RunReport, error)
}

// PostgresStore is the pgxpool-backed Store implementation. Nested
// structures (intent, risk decision, order, fill, positions, account) are
// stored as jsonb columns, mirroring the teacher's artifacts.Store approach
// of json.Marshal-ing structured sub-documents into jsonb rather than
// normalizing every nested field into its own column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a pgxpool.Pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const reportColumns = `run_id, status, symbol, timeframe, candle_ts, intent, risk, order_payload,
	       fill, positions, account, summary_text, telegram_text, error_text, created_at`

func scanReport(row pgx.Row) (RunReport, bool, error) {
	var r RunReport
	var intentJSON, riskJSON, orderJSON, fillJSON, positionsJSON, accountJSON []byte
	err := row.Scan(
		&r.RunID, &r.Status, &r.Symbol, &r.Timeframe, &r.CandleTs,
		&intentJSON, &riskJSON, &orderJSON, &fillJSON, &positionsJSON, &accountJSON,
		&r.SummaryText, &r.TelegramText, &r.ErrorText, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunReport{}, false, nil
	}
	if err != nil {
		return RunReport{}, false, apperr.Wrap(apperr.KindStoreDown, "orchestrator: fetch run report", err)
	}
	if err := unmarshalReportJSON(&r, intentJSON, riskJSON, orderJSON, fillJSON, positionsJSON, accountJSON); err != nil {
		return RunReport{}, false, apperr.Wrap(apperr.KindStoreDown, "orchestrator: decode run report", err)
	}
	return r, true, nil
}

func (s *PostgresStore) GetReport(ctx context.Context, symbol, tf string, candleTs time.Time) (RunReport, bool, error) {
	query := `SELECT ` + reportColumns + `
		FROM run_reports
		WHERE symbol = $1 AND timeframe = $2 AND candle_ts = $3`
	return scanReport(s.pool.QueryRow(ctx, query, symbol, tf, candleTs))
}

func (s *PostgresStore) GetReportByID(ctx context.Context, runID string) (RunReport, bool, error) {
	query := `SELECT ` + reportColumns + `
		FROM run_reports
		WHERE run_id = $1`
	return scanReport(s.pool.QueryRow(ctx, query, runID))
}

func (s *PostgresStore) ListReports(ctx context.Context, symbol, tf string, limit int) ([]RunReport, error) {
	query := `SELECT ` + reportColumns + `
		FROM run_reports
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY candle_ts DESC`
	args := []any{symbol, tf}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $3`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "orchestrator: list run reports", err)
	}
	defer rows.Close()

	var out []RunReport
	for rows.Next() {
		r, _, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "orchestrator: iterate run reports", err)
	}
	return out, nil
}

func (s *PostgresStore) InsertReport(ctx context.Context, r RunReport) error {
	intentJSON, err := json.Marshal(r.Intent)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: marshal intent", err)
	}
	riskJSON, err := json.Marshal(r.RiskDecision)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: marshal risk decision", err)
	}
	orderJSON, err := json.Marshal(r.Order)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: marshal order", err)
	}
	fillJSON, err := json.Marshal(r.Fill)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: marshal fill", err)
	}
	positionsJSON, err := json.Marshal(r.Positions)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: marshal positions", err)
	}
	accountJSON, err := json.Marshal(r.Account)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: marshal account", err)
	}

	const query = `
		INSERT INTO run_reports
			(run_id, status, symbol, timeframe, candle_ts, intent, risk, order_payload,
			 fill, positions, account, summary_text, telegram_text, error_text, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (symbol, timeframe, candle_ts) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			status = EXCLUDED.status,
			intent = EXCLUDED.intent,
			risk = EXCLUDED.risk,
			order_payload = EXCLUDED.order_payload,
			fill = EXCLUDED.fill,
			positions = EXCLUDED.positions,
			account = EXCLUDED.account,
			summary_text = EXCLUDED.summary_text,
			telegram_text = EXCLUDED.telegram_text,
			error_text = EXCLUDED.error_text,
			created_at = EXCLUDED.created_at
		WHERE run_reports.status = 'ERROR'`
	_, err = s.pool.Exec(ctx, query,
		r.RunID, string(r.Status), r.Symbol, r.Timeframe, r.CandleTs,
		intentJSON, riskJSON, orderJSON, fillJSON, positionsJSON, accountJSON,
		r.SummaryText, r.TelegramText, r.ErrorText, r.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "orchestrator: insert run report", err)
	}
	return nil
}

func unmarshalReportJSON(r *RunReport, intentJSON, riskJSON, orderJSON, fillJSON, positionsJSON, accountJSON []byte) error {
	if err := json.Unmarshal(intentJSON, &r.Intent); err != nil {
		return err
	}
	if err := json.Unmarshal(riskJSON, &r.RiskDecision); err != nil {
		return err
	}
	if err := json.Unmarshal(orderJSON, &r.Order); err != nil {
		return err
	}
	if err := json.Unmarshal(fillJSON, &r.Fill); err != nil {
		return err
	}
	if err := json.Unmarshal(positionsJSON, &r.Positions); err != nil {
		return err
	}
	return json.Unmarshal(accountJSON, &r.Account)
}
