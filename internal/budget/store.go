package budget

import (
	"database/sql"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS llm_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_llm_usage_timestamp ON llm_usage(timestamp);
CREATE INDEX IF NOT EXISTS idx_llm_usage_model ON llm_usage(model);
`

// Store persists every generation's token usage next to the conversation data
type Store struct {
	db       *sql.DB
	timezone *time.Location
}

func NewStore(db *sql.DB, timezone *time.Location) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	tz := timezone
	if tz == nil {
		tz = time.UTC
	}

	return &Store{db: db, timezone: tz}, nil
}

func (s *Store) Record(provider, model string, inputTokens, outputTokens int, at time.Time) error {
	cost := CalculateCost(model, inputTokens, outputTokens)

	_, err := s.db.Exec(
		`INSERT INTO llm_usage (timestamp, provider, model, input_tokens, output_tokens, cost_usd) VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC(),
		provider,
		model,
		inputTokens,
		outputTokens,
		cost,
	)

	return err
}

type Summary struct {
	TotalRequests     int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCostUSD      float64
}

func (s *Store) SummaryRange(from, to time.Time) (*Summary, error) {
	row := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM llm_usage
		WHERE timestamp >= ? AND timestamp < ?
	`, from.UTC(), to.UTC())

	var sum Summary
	if err := row.Scan(&sum.TotalRequests, &sum.TotalInputTokens, &sum.TotalOutputTokens, &sum.TotalCostUSD); err != nil {
		return nil, err
	}

	return &sum, nil
}

// dayBounds returns the local day containing at, in the store's timezone
func (s *Store) dayBounds(at time.Time) (time.Time, time.Time) {
	local := at.In(s.timezone)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.timezone)
	return start, start.AddDate(0, 0, 1)
}

// Day summarises the local day containing at
func (s *Store) Day(at time.Time) (*Summary, error) {
	start, end := s.dayBounds(at)
	return s.SummaryRange(start, end)
}

// TokensOn returns input plus output tokens used on the local day containing at
func (s *Store) TokensOn(at time.Time) (int, error) {
	sum, err := s.Day(at)
	if err != nil {
		return 0, err
	}
	return sum.TotalInputTokens + sum.TotalOutputTokens, nil
}

func (s *Store) Month(at time.Time) (*Summary, error) {
	local := at.In(s.timezone)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.timezone)
	return s.SummaryRange(start, start.AddDate(0, 1, 0))
}

type ModelBreakdown struct {
	Model        string
	Requests     int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

func (s *Store) BreakdownByModel(from, to time.Time) ([]ModelBreakdown, error) {
	rows, err := s.db.Query(`
		SELECT
			model,
			COUNT(*),
			SUM(input_tokens),
			SUM(output_tokens),
			SUM(cost_usd)
		FROM llm_usage
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY model
		ORDER BY SUM(cost_usd) DESC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ModelBreakdown
	for rows.Next() {
		var b ModelBreakdown
		if err := rows.Scan(&b.Model, &b.Requests, &b.InputTokens, &b.OutputTokens, &b.CostUSD); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	return result, rows.Err()
}
