package audit

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timestampLayout sorts lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository stores exchange records.
type Repository struct {
	reader *sql.DB
	writer *sql.DB
	now    func() time.Time
}

// NewRepository creates a new Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{
		reader: dbPair.Reader(),
		writer: dbPair.Writer(),
		now:    time.Now,
	}
}

const selectColumns = `exchange_id, timestamp, command, fragment, zone_path, result_code, duration_ms, outcome, error, request_id`

// Insert writes a record with a fresh ID and the current time.
func (r *Repository) Insert(input WriteInput) (*Record, error) {
	exchangeID := uuid.New().String()
	timestamp := r.now().UTC().Format(timestampLayout)

	_, err := r.writer.Exec(`
		INSERT INTO exchanges (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exchangeID, timestamp, input.Command, input.Fragment, input.ZonePath, input.ResultCode,
		input.DurationMs, string(input.Outcome), input.Error, input.RequestID)
	if err != nil {
		return nil, err
	}

	return r.Get(exchangeID)
}

// Get returns one record, or nil, nil if it does not exist.
func (r *Repository) Get(exchangeID string) (*Record, error) {
	row := r.reader.QueryRow(`SELECT `+selectColumns+` FROM exchanges WHERE exchange_id = ?`, exchangeID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// Query returns records newest first, with the total number matching filters.
func (r *Repository) Query(filters QueryFilters) ([]Record, int, error) {
	where, args := buildWhereClause(filters)

	var total int
	if err := r.reader.QueryRow("SELECT COUNT(*) FROM exchanges "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	rows, err := r.reader.Query(`SELECT `+selectColumns+` FROM exchanges `+where+`
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?`, append(args, limit, filters.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// PruneBefore deletes records older than cutoff and returns how many went.
func (r *Repository) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := r.writer.Exec(`DELETE FROM exchanges WHERE timestamp < ?`, cutoff.UTC().Format(timestampLayout))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func buildWhereClause(filters QueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Outcome != nil {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(*filters.Outcome))
	}
	if filters.Command != nil {
		conditions = append(conditions, "command = ?")
		args = append(args, *filters.Command)
	}
	if filters.RequestID != nil {
		conditions = append(conditions, "request_id = ?")
		args = append(args, *filters.RequestID)
	}
	if filters.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filters.Since.UTC().Format(timestampLayout))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var record Record
	var timestamp, outcome string
	var resultCode sql.NullInt64
	var errText, requestID sql.NullString

	err := row.Scan(
		&record.ExchangeID,
		&timestamp,
		&record.Command,
		&record.Fragment,
		&record.ZonePath,
		&resultCode,
		&record.DurationMs,
		&outcome,
		&errText,
		&requestID,
	)
	if err != nil {
		return nil, err
	}

	record.Timestamp, _ = time.Parse(timestampLayout, timestamp)
	record.Outcome = Outcome(outcome)
	if resultCode.Valid {
		code := int(resultCode.Int64)
		record.ResultCode = &code
	}
	if errText.Valid {
		record.Error = &errText.String
	}
	if requestID.Valid {
		record.RequestID = &requestID.String
	}
	return &record, nil
}
