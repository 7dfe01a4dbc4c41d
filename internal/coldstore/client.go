// Package coldstore is the client for the columnar cold tier, reached over the
// ClickHouse HTTP interface. Batches are written as JSONEachRow; aggregate
// queries read from the events_cold table and its materialized views.
package coldstore

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"event-analytics-api/internal/event/domain"
	"event-analytics-api/internal/metrics"
)

// timeLayout is the timestamp format the ClickHouse DateTime column accepts.
const timeLayout = "2006-01-02 15:04:05"

// Config holds cold store connection settings.
type Config struct {
	// BaseURL is the HTTP interface base URL (e.g. http://localhost:8123).
	BaseURL string
	// Database holds the cold tables (events_cold and its views).
	Database string
	// Username and Password are optional basic-auth credentials.
	Username string
	Password string
	// Timeout bounds each HTTP call. Zero means 30s.
	Timeout time.Duration
}

// Client talks to the cold store. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	tracer trace.Tracer
}

// New returns a cold store client for the given config.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.Database == "" {
		cfg.Database = "events"
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		tracer: otel.Tracer("coldstore"),
	}
}

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the cold table and its materialized views if they do
// not exist. The table is a ReplacingMergeTree keyed on (occurred_at,
// event_id), so rows archived twice collapse to one on merge.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if err := c.exec(ctx, stmt, nil, nil, nil); err != nil {
			return fmt.Errorf("coldstore: apply schema: %w", err)
		}
	}
	return nil
}

// Row is the cold-tier wire format for one archived event.
type Row struct {
	EventID    string `json:"event_id"`
	UserID     string `json:"user_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Properties string `json:"properties"`
	IngestedAt string `json:"ingested_at"`
}

// RowFromEvent converts a hot-store event into the cold wire format.
// ingestedAt records when the row entered the cold tier.
func RowFromEvent(e *domain.Event, ingestedAt time.Time) (Row, error) {
	props, err := e.PropertiesJSON()
	if err != nil {
		return Row{}, err
	}
	return Row{
		EventID:    e.EventID,
		UserID:     e.UserID,
		EventType:  e.EventType,
		OccurredAt: e.OccurredAt.UTC().Format(timeLayout),
		Properties: props,
		IngestedAt: ingestedAt.UTC().Format(timeLayout),
	}, nil
}

// InsertBatch writes rows to events_cold as JSONEachRow. An empty batch is a no-op.
// The write either succeeds for the whole batch or reports an error; the caller
// must not delete hot rows unless this returns nil.
func (c *Client) InsertBatch(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "coldstore.insert_batch")
	defer span.End()

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("coldstore: encode row: %w", err)
		}
	}

	start := time.Now()
	err := c.exec(ctx, "INSERT INTO events_cold FORMAT JSONEachRow", nil, &body, nil)
	metrics.ColdInsertLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ColdInsertErrors.Inc()
		return err
	}
	metrics.ColdInsertRows.Add(float64(len(rows)))
	return nil
}

// Ping checks cold store reachability. Failure is reported as false, never as an error.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+"/ping", nil)
	if err != nil {
		return false
	}
	c.setAuth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// AggregateStats summarizes the archived events: row count, unique users, and
// the occurred_at / ingested_at extremes.
type AggregateStats struct {
	TotalEvents  int64  `json:"total_events,string"`
	UniqueUsers  int64  `json:"unique_users,string"`
	OldestEvent  string `json:"oldest_event"`
	NewestEvent  string `json:"newest_event"`
	LastIngested string `json:"last_ingested"`
}

// Stats returns aggregate statistics over events_cold.
func (c *Client) Stats(ctx context.Context) (*AggregateStats, error) {
	const q = `SELECT
		toString(count()) AS total_events,
		toString(uniq(user_id)) AS unique_users,
		toString(min(occurred_at)) AS oldest_event,
		toString(max(occurred_at)) AS newest_event,
		toString(max(ingested_at)) AS last_ingested
	FROM events_cold
	FORMAT JSONEachRow`
	var out []AggregateStats
	if err := c.query(ctx, q, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return &AggregateStats{}, nil
	}
	return &out[0], nil
}

// DAUPoint is one day's unique-user count from the cold tier.
type DAUPoint struct {
	Date        string `json:"event_date"`
	UniqueUsers int64  `json:"daily_active_users,string"`
}

// DAU returns daily active users per day in [from, to] (YYYY-MM-DD) using the
// pre-aggregated daily view.
func (c *Client) DAU(ctx context.Context, from, to string) ([]DAUPoint, error) {
	const q = `SELECT
		toString(event_date) AS event_date,
		toString(uniq(user_id)) AS daily_active_users
	FROM mv_daily_active_users
	WHERE event_date >= toDate({from:String}) AND event_date <= toDate({to:String})
	GROUP BY event_date
	ORDER BY event_date
	FORMAT JSONEachRow`
	params := url.Values{}
	params.Set("param_from", from)
	params.Set("param_to", to)
	var out []DAUPoint
	if err := c.query(ctx, q, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TypeCount is an event type with its total count from the cold tier.
type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"total_count,string"`
}

// TopEvents returns the most frequent event types in [from, to] using the
// pre-aggregated per-type view.
func (c *Client) TopEvents(ctx context.Context, from, to string, limit int) ([]TypeCount, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `SELECT
		event_type,
		toString(sum(event_count)) AS total_count
	FROM mv_event_type_stats
	WHERE event_date >= toDate({from:String}) AND event_date <= toDate({to:String})
	GROUP BY event_type
	ORDER BY sum(event_count) DESC
	LIMIT {limit:UInt32}
	FORMAT JSONEachRow`
	params := url.Values{}
	params.Set("param_from", from)
	params.Set("param_to", to)
	params.Set("param_limit", strconv.Itoa(limit))
	var out []TypeCount
	if err := c.query(ctx, q, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CohortWindow is one week of a retention cohort.
type CohortWindow struct {
	Week          int64   `json:"week_number,string"`
	RetainedUsers int64   `json:"retained_users,string"`
	RetentionRate float64 `json:"retention_rate,string"`
}

// RetentionCohort computes weekly retention for the cohort of users first seen
// in the week starting at startDate (YYYY-MM-DD), over the given number of windows.
func (c *Client) RetentionCohort(ctx context.Context, startDate string, windows int) ([]CohortWindow, error) {
	if windows <= 0 {
		windows = 4
	}
	const q = `WITH cohort_users AS (
		SELECT DISTINCT user_id
		FROM events_cold
		WHERE toDate(occurred_at) >= toDate({start:String})
		  AND toDate(occurred_at) < toDate({start:String}) + INTERVAL 7 DAY
	)
	SELECT
		toString(week_number) AS week_number,
		toString(uniq(user_id)) AS retained_users,
		toString(round(uniq(user_id) * 100.0 / (SELECT count() FROM cohort_users), 2)) AS retention_rate
	FROM (
		SELECT
			user_id,
			intDiv(dateDiff('day', toDate({start:String}), toDate(occurred_at)), 7) AS week_number
		FROM events_cold
		WHERE user_id IN (SELECT user_id FROM cohort_users)
		  AND toDate(occurred_at) >= toDate({start:String})
		  AND toDate(occurred_at) < toDate({start:String}) + INTERVAL {windows:UInt32} WEEK
		GROUP BY user_id, week_number
	)
	GROUP BY week_number
	ORDER BY week_number
	FORMAT JSONEachRow`
	params := url.Values{}
	params.Set("param_start", startDate)
	params.Set("param_windows", strconv.Itoa(windows))
	var out []CohortWindow
	if err := c.query(ctx, q, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TableSize describes one cold table's on-disk footprint.
type TableSize struct {
	Table      string `json:"table"`
	SizeOnDisk string `json:"size_on_disk"`
	TotalRows  int64  `json:"total_rows,string"`
}

// PartitionInfo describes one active partition of a cold table.
type PartitionInfo struct {
	Table      string `json:"table"`
	Partition  string `json:"partition"`
	PartsCount int64  `json:"parts_count,string"`
	RowsCount  int64  `json:"rows_count,string"`
}

// StorageStats holds cold store table sizes and partition layout.
type StorageStats struct {
	TableSizes []TableSize     `json:"table_sizes"`
	Partitions []PartitionInfo `json:"partitions"`
}

// StorageStats reports table sizes and partition counts from system.parts.
func (c *Client) StorageStats(ctx context.Context) (*StorageStats, error) {
	const sizeQ = `SELECT
		table,
		formatReadableSize(sum(bytes_on_disk)) AS size_on_disk,
		toString(sum(rows)) AS total_rows
	FROM system.parts
	WHERE database = {db:String} AND active = 1
	GROUP BY table
	ORDER BY sum(bytes_on_disk) DESC
	FORMAT JSONEachRow`
	const partQ = `SELECT
		table,
		partition,
		toString(count()) AS parts_count,
		toString(sum(rows)) AS rows_count
	FROM system.parts
	WHERE database = {db:String} AND active = 1
	GROUP BY table, partition
	ORDER BY table, partition
	LIMIT 20
	FORMAT JSONEachRow`

	params := url.Values{}
	params.Set("param_db", c.cfg.Database)

	stats := &StorageStats{}
	if err := c.query(ctx, sizeQ, params, &stats.TableSizes); err != nil {
		return nil, err
	}
	if err := c.query(ctx, partQ, params, &stats.Partitions); err != nil {
		return nil, err
	}
	return stats, nil
}

// query runs a SELECT returning JSONEachRow and decodes each line into out,
// which must be a pointer to a slice of the row type.
func (c *Client) query(ctx context.Context, sql string, params url.Values, out any) error {
	ctx, span := c.tracer.Start(ctx, "coldstore.query")
	defer span.End()

	var body bytes.Buffer
	if err := c.exec(ctx, sql, params, nil, &body); err != nil {
		return err
	}
	return decodeLines(&body, out)
}

// exec sends one statement to the cold store. For inserts, sql carries the
// INSERT header as the query URL parameter and data is the request body; for
// selects, sql is the body and data is nil.
func (c *Client) exec(ctx context.Context, sql string, params url.Values, data io.Reader, sink *bytes.Buffer) error {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/")
	if err != nil {
		return fmt.Errorf("coldstore: bad base url: %w", err)
	}
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("database", c.cfg.Database)

	var reqBody io.Reader
	if data != nil {
		q.Set("query", sql)
		reqBody = data
	} else {
		reqBody = strings.NewReader(sql)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("coldstore: build request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("coldstore: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coldstore: status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if sink != nil {
		if _, err := io.Copy(sink, resp.Body); err != nil {
			return fmt.Errorf("coldstore: read response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
}

// decodeLines decodes newline-delimited JSON into *[]T via reflection-free
// round-tripping: each line is unmarshalled and appended through a JSON array.
func decodeLines(r io.Reader, out any) error {
	var raw []json.RawMessage
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		raw = append(raw, append(json.RawMessage(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("coldstore: scan response: %w", err)
	}
	arr, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(arr, out)
}
