package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"predictionclub/internal/gateway"
)

// Query selects rows through PostgREST
func (c *Client) Query(ctx context.Context, collection string, filter gateway.Filter, order gateway.Order) ([]gateway.Row, error) {
	params := url.Values{}
	params.Set("select", "*")
	for _, col := range filter.Columns() {
		if filter[col] == nil {
			params.Add(col, "is.null")
			continue
		}
		params.Add(col, "eq."+formatValue(filter[col]))
	}
	if !order.IsZero() {
		params.Set("order", order.String())
	}

	body, err := c.do(ctx, http.MethodGet, "/rest/v1/"+collection+"?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: err}
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: err}
	}
	return rows, nil
}

// Insert creates a row and returns the representation stored by the backend
func (c *Client) Insert(ctx context.Context, collection string, row gateway.Row) (gateway.Row, error) {
	body, err := c.do(ctx, http.MethodPost, "/rest/v1/"+collection, row,
		map[string]string{"Prefer": "return=representation"})
	if err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: err}
	}

	rows, err := decodeRows(body)
	if err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: err}
	}
	if len(rows) == 0 {
		return nil, &gateway.BackendError{Collection: collection, Err: errors.New("insert returned no representation")}
	}
	return rows[0], nil
}

func decodeRows(body []byte) ([]gateway.Row, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid JSON in response")
	}
	res := gjson.ParseBytes(body)
	if res.IsObject() {
		return []gateway.Row{toRow(res)}, nil
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("unexpected response type %s", res.Type)
	}

	items := res.Array()
	rows := make([]gateway.Row, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("unexpected row type %s", item.Type)
		}
		rows = append(rows, toRow(item))
	}
	return rows, nil
}

func toRow(obj gjson.Result) gateway.Row {
	m, _ := obj.Value().(map[string]any)
	return gateway.Row(m)
}

func formatValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case time.Time:
		return tv.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return tv.String()
	}
	return fmt.Sprint(v)
}
