package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
	"predictionclub/internal/models"
)

// Query selects rows of a collection with equality filters and an optional order
func (g *Gateway) Query(ctx context.Context, collection string, filter gateway.Filter, order gateway.Order) ([]gateway.Row, error) {
	t, ok := tables[collection]
	if !ok {
		return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("unknown collection")}
	}

	var where []string
	var args []any
	for _, col := range filter.Columns() {
		c, ok := t.column(col)
		if !ok {
			return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("unknown column %q", col)}
		}
		where = append(where, c.name+" = ?")
		args = append(args, toSQL(c, filter[col]))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.columnNames(), ", "), t.name)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if !order.IsZero() {
		c, ok := t.column(order.Column)
		if !ok {
			return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("unknown order column %q", order.Column)}
		}
		dir := "ASC"
		if order.Descending {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", c.name, dir)
	}

	rows, err := g.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("failed to query: %w", err)}
	}
	defer rows.Close()

	var out []gateway.Row
	for rows.Next() {
		row, err := scanRow(rows, t)
		if err != nil {
			return nil, &gateway.BackendError{Collection: collection, Err: err}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: err}
	}
	return out, nil
}

// Insert writes one row and returns it as stored. Server-side defaults (id,
// created_at, status, counters) are filled in here, the way the hosted backend does.
func (g *Gateway) Insert(ctx context.Context, collection string, row gateway.Row) (gateway.Row, error) {
	t, ok := tables[collection]
	if !ok || !t.writable {
		return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("collection is not writable")}
	}
	userID := g.currentUserID()
	if userID == "" {
		return nil, &gateway.BackendError{Collection: collection, Err: gateway.ErrNotSignedIn}
	}

	values := make(gateway.Row, len(row))
	for k, v := range row {
		if _, ok := t.column(k); !ok {
			return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("unknown column %q", k)}
		}
		values[k] = v
	}
	g.db.applyDefaults(t, values, userID)

	var err error
	switch collection {
	case gateway.CollectionPredictions:
		err = g.db.insertPrediction(ctx, t, values, userID)
	case gateway.CollectionProfiles:
		if values["id"] != userID {
			err = ErrForbidden
		} else {
			err = g.db.insertRow(ctx, g.db.conn, t, values)
		}
	default:
		err = g.db.insertRow(ctx, g.db.conn, t, values)
	}
	if err != nil {
		logger.Debug(userID, "insert_failed", fmt.Sprintf("collection=%s error=%v", collection, err))
		return nil, &gateway.BackendError{Collection: collection, Err: err}
	}

	stored, err := g.Query(ctx, collection, gateway.Filter{t.key: values[t.key]}, gateway.Order{})
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, &gateway.BackendError{Collection: collection, Err: sql.ErrNoRows}
	}
	return stored[0], nil
}

func (d *DB) applyDefaults(t table, values gateway.Row, userID string) {
	setDefault := func(k string, v any) {
		if cur, ok := values[k]; !ok || cur == nil || cur == "" {
			values[k] = v
		}
	}
	if _, ok := t.column("created_at"); ok {
		setDefault("created_at", d.now())
	}
	switch t.name {
	case gateway.CollectionTopics:
		setDefault("id", uuid.NewString())
		setDefault("status", string(models.TopicStatusActive))
		setDefault("pool_size", int64(0))
		setDefault("participant_count", int64(0))
		setDefault("odds", models.DefaultOdds)
		setDefault("created_by", userID)
	case gateway.CollectionPredictions:
		setDefault("id", uuid.NewString())
		setDefault("user_id", userID)
	case gateway.CollectionProfiles:
		setDefault("id", userID)
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) insertRow(ctx context.Context, ex execer, t table, values gateway.Row) error {
	cols := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, c := range t.columns {
		v, ok := values[c.name]
		if !ok {
			continue
		}
		cols = append(cols, c.name)
		args = append(args, toSQL(c, v))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), placeholders)
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", t.name, err)
	}
	return nil
}

// insertPrediction debits the wager and grows the topic pool in the same transaction
func (d *DB) insertPrediction(ctx context.Context, t table, values gateway.Row, userID string) error {
	if values["user_id"] != userID {
		return ErrForbidden
	}
	wager, ok := toInt64(values["wager"])
	if !ok || wager <= 0 {
		return fmt.Errorf("wager must be a positive integer")
	}
	topicID, _ := values["topic_id"].(string)

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM topics WHERE id = ?`, topicID).Scan(&status)
	if err == sql.ErrNoRows || (err == nil && status != string(models.TopicStatusActive)) {
		return ErrTopicNotOpen
	}
	if err != nil {
		return fmt.Errorf("failed to get topic: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE user_points SET current_points = current_points - ?
		WHERE user_id = ? AND current_points >= ?
	`, wager, userID, wager)
	if err != nil {
		return fmt.Errorf("failed to debit points: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficientPoints
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE topics SET pool_size = pool_size + ?, participant_count = participant_count + 1
		WHERE id = ?
	`, wager, topicID); err != nil {
		return fmt.Errorf("failed to update topic pool: %w", err)
	}

	if err := d.insertRow(ctx, tx, t, values); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanRow(rows *sql.Rows, t table) (gateway.Row, error) {
	dest := make([]any, len(t.columns))
	ptrs := make([]any, len(t.columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(gateway.Row, len(t.columns))
	for i, c := range t.columns {
		row[c.name] = fromSQL(c, dest[i])
	}
	return row, nil
}

// toSQL converts a Go value to its stored form
func toSQL(c column, v any) any {
	if v == nil {
		return nil
	}
	switch c.kind {
	case kindTime:
		switch tv := v.(type) {
		case time.Time:
			return formatTime(tv)
		case *time.Time:
			if tv == nil {
				return nil
			}
			return formatTime(*tv)
		}
	case kindBool:
		switch bv := v.(type) {
		case bool:
			return boolToInt(bv)
		case *bool:
			if bv == nil {
				return nil
			}
			return boolToInt(*bv)
		}
	case kindInt:
		if n, ok := toInt64(v); ok {
			return n
		}
	case kindText:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String()
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return v
}

// fromSQL converts a scanned value to the wire form the hosted backend would return
func fromSQL(c column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil
	}
	switch c.kind {
	case kindBool:
		n, _ := toInt64(v)
		return n != 0
	case kindInt:
		n, _ := toInt64(v)
		return n
	case kindFloat:
		switch f := v.(type) {
		case float64:
			return f
		case int64:
			return float64(f)
		}
	case kindText, kindTime:
		if s, ok := v.(string); ok {
			return s
		}
		if tv, ok := v.(time.Time); ok {
			return formatTime(tv)
		}
	}
	return v
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case bool:
		return boolToInt(n), true
	}
	return 0, false
}
