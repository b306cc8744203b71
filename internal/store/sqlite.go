package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mmorrisj/SoftPower-Analytics-sub002/internal/model"
)

// SQLiteStore persists the registry in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	connStr := path
	if path == ":memory:" {
		// Shared cache so pooled connections see one database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS canonical_events (
		id TEXT PRIMARY KEY,
		canonical_name TEXT NOT NULL,
		origin_entity TEXT NOT NULL,
		first_mention_date TEXT NOT NULL,
		last_mention_date TEXT NOT NULL,
		mention_days INTEGER NOT NULL,
		total_articles INTEGER NOT NULL,
		peak_articles INTEGER NOT NULL,
		peak_date TEXT NOT NULL,
		publishers TEXT NOT NULL,
		alternative_names TEXT NOT NULL,
		mention_dates TEXT NOT NULL,
		last_context TEXT NOT NULL,
		phase TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_entity_last ON canonical_events(origin_entity, last_mention_date);
	CREATE INDEX IF NOT EXISTS idx_events_phase ON canonical_events(phase);

	CREATE TABLE IF NOT EXISTS daily_mentions (
		id TEXT PRIMARY KEY,
		mention_date TEXT NOT NULL,
		origin_entity TEXT NOT NULL,
		article_count INTEGER NOT NULL,
		headline TEXT NOT NULL,
		sources TEXT NOT NULL,
		source_diversity REAL NOT NULL,
		doc_ids TEXT NOT NULL,
		context TEXT NOT NULL,
		canonical_event_id TEXT NOT NULL,
		FOREIGN KEY (canonical_event_id) REFERENCES canonical_events(id)
	);

	CREATE INDEX IF NOT EXISTS idx_mentions_entity_date ON daily_mentions(origin_entity, mention_date);
	CREATE INDEX IF NOT EXISTS idx_mentions_event ON daily_mentions(canonical_event_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Begin opens a unit transaction for one origin entity.
func (s *SQLiteStore) Begin(ctx context.Context, entity string) (Unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	return &sqliteUnit{tx: tx, entity: entity}, nil
}

// GetEvent returns one canonical event by ID.
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.CanonicalEvent, error) {
	row := s.db.QueryRowContext(ctx, selectEvent+" WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return ev, err
}

// ListEvents returns committed canonical events matching the query.
func (s *SQLiteStore) ListEvents(ctx context.Context, q EventQuery) ([]*model.CanonicalEvent, error) {
	query := selectEvent + " WHERE 1=1"
	var args []any
	if q.Entity != "" {
		query += " AND origin_entity = ?"
		args = append(args, q.Entity)
	}
	if q.Phase != "" {
		query += " AND phase = ?"
		args = append(args, string(q.Phase))
	}
	if !q.From.IsZero() {
		query += " AND last_mention_date >= ?"
		args = append(args, dateStr(q.From))
	}
	if !q.To.IsZero() {
		query += " AND last_mention_date <= ?"
		args = append(args, dateStr(q.To))
	}
	query += " ORDER BY first_mention_date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListMentions returns committed daily mentions matching the query.
func (s *SQLiteStore) ListMentions(ctx context.Context, q MentionQuery) ([]*model.DailyEventMention, error) {
	query := selectMention + " WHERE 1=1"
	var args []any
	if q.Entity != "" {
		query += " AND origin_entity = ?"
		args = append(args, q.Entity)
	}
	if !q.From.IsZero() {
		query += " AND mention_date >= ?"
		args = append(args, dateStr(q.From))
	}
	if !q.To.IsZero() {
		query += " AND mention_date <= ?"
		args = append(args, dateStr(q.To))
	}
	query += " ORDER BY mention_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mentions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.DailyEventMention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SweepStale forces dormant on events silent beyond stalenessDays.
func (s *SQLiteStore) SweepStale(ctx context.Context, entity string, date time.Time, stalenessDays int) (int, error) {
	cutoff := model.Day(date).AddDate(0, 0, -stalenessDays)
	res, err := s.db.ExecContext(ctx, `
		UPDATE canonical_events SET phase = ?
		WHERE origin_entity = ? AND phase != ? AND last_mention_date < ?`,
		string(model.PhaseDormant), entity, string(model.PhaseDormant), dateStr(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep stale: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteUnit wraps one SQL transaction; reads observe the unit's own writes.
type sqliteUnit struct {
	tx     *sql.Tx
	entity string
}

func (u *sqliteUnit) Candidates(entity string, since, until time.Time) ([]*model.CanonicalEvent, error) {
	rows, err := u.tx.Query(selectEvent+`
		WHERE origin_entity = ? AND phase != ?
		AND last_mention_date >= ? AND last_mention_date <= ?
		ORDER BY id`,
		entity, string(model.PhaseDormant), dateStr(since), dateStr(until))
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (u *sqliteUnit) UpsertEvent(ev *model.CanonicalEvent) error {
	publishers, _ := json.Marshal(ev.Publishers)
	altNames, _ := json.Marshal(ev.AlternativeNames)
	dates, _ := json.Marshal(dateStrs(ev.MentionDates))

	_, err := u.tx.Exec(`
		INSERT INTO canonical_events
		(id, canonical_name, origin_entity, first_mention_date, last_mention_date,
		 mention_days, total_articles, peak_articles, peak_date,
		 publishers, alternative_names, mention_dates, last_context, phase)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			last_mention_date = excluded.last_mention_date,
			mention_days = excluded.mention_days,
			total_articles = excluded.total_articles,
			peak_articles = excluded.peak_articles,
			peak_date = excluded.peak_date,
			publishers = excluded.publishers,
			alternative_names = excluded.alternative_names,
			mention_dates = excluded.mention_dates,
			last_context = excluded.last_context,
			phase = excluded.phase`,
		ev.ID, ev.CanonicalName, ev.OriginEntity,
		dateStr(ev.FirstMentionDate), dateStr(ev.LastMentionDate),
		ev.MentionDays, ev.TotalArticles, ev.PeakArticles, dateStr(ev.PeakDate),
		string(publishers), string(altNames), string(dates),
		string(ev.LastContext), string(ev.Phase))
	return err
}

func (u *sqliteUnit) SaveMention(m *model.DailyEventMention) error {
	sources, _ := json.Marshal(m.Sources)
	docIDs, _ := json.Marshal(m.DocIDs)

	_, err := u.tx.Exec(`
		INSERT INTO daily_mentions
		(id, mention_date, origin_entity, article_count, headline,
		 sources, source_diversity, doc_ids, context, canonical_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			article_count = excluded.article_count,
			headline = excluded.headline,
			sources = excluded.sources,
			source_diversity = excluded.source_diversity,
			doc_ids = excluded.doc_ids,
			context = excluded.context,
			canonical_event_id = excluded.canonical_event_id`,
		m.ID, dateStr(m.MentionDate), m.OriginEntity, m.ArticleCount, m.Headline,
		string(sources), m.SourceDiversity, string(docIDs),
		string(m.Context), m.CanonicalEventID)
	return err
}

func (u *sqliteUnit) FindMention(id string) (*model.DailyEventMention, error) {
	row := u.tx.QueryRow(selectMention+" WHERE id = ?", id)
	m, err := scanMention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (u *sqliteUnit) Commit() error {
	return u.tx.Commit()
}

func (u *sqliteUnit) Rollback() error {
	return u.tx.Rollback()
}

const selectEvent = `
	SELECT id, canonical_name, origin_entity, first_mention_date, last_mention_date,
	       mention_days, total_articles, peak_articles, peak_date,
	       publishers, alternative_names, mention_dates, last_context, phase
	FROM canonical_events`

const selectMention = `
	SELECT id, mention_date, origin_entity, article_count, headline,
	       sources, source_diversity, doc_ids, context, canonical_event_id
	FROM daily_mentions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.CanonicalEvent, error) {
	var ev model.CanonicalEvent
	var first, last, peak, publishers, altNames, dates, lastCtx, phase string
	if err := row.Scan(&ev.ID, &ev.CanonicalName, &ev.OriginEntity, &first, &last,
		&ev.MentionDays, &ev.TotalArticles, &ev.PeakArticles, &peak,
		&publishers, &altNames, &dates, &lastCtx, &phase); err != nil {
		return nil, err
	}

	var err error
	if ev.FirstMentionDate, err = parseDate(first); err != nil {
		return nil, err
	}
	if ev.LastMentionDate, err = parseDate(last); err != nil {
		return nil, err
	}
	if ev.PeakDate, err = parseDate(peak); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(publishers), &ev.Publishers); err != nil {
		return nil, fmt.Errorf("decode publishers: %w", err)
	}
	if err := json.Unmarshal([]byte(altNames), &ev.AlternativeNames); err != nil {
		return nil, fmt.Errorf("decode alternative names: %w", err)
	}
	var rawDates []string
	if err := json.Unmarshal([]byte(dates), &rawDates); err != nil {
		return nil, fmt.Errorf("decode mention dates: %w", err)
	}
	for _, d := range rawDates {
		t, err := parseDate(d)
		if err != nil {
			return nil, err
		}
		ev.MentionDates = append(ev.MentionDates, t)
	}
	ev.LastContext = model.MentionContext(lastCtx)
	ev.Phase = model.StoryPhase(phase)
	return &ev, nil
}

func scanMention(row rowScanner) (*model.DailyEventMention, error) {
	var m model.DailyEventMention
	var date, sources, docIDs, mctx string
	if err := row.Scan(&m.ID, &date, &m.OriginEntity, &m.ArticleCount, &m.Headline,
		&sources, &m.SourceDiversity, &docIDs, &mctx, &m.CanonicalEventID); err != nil {
		return nil, err
	}

	var err error
	if m.MentionDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sources), &m.Sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if err := json.Unmarshal([]byte(docIDs), &m.DocIDs); err != nil {
		return nil, fmt.Errorf("decode doc ids: %w", err)
	}
	m.Context = model.MentionContext(mctx)
	return &m, nil
}

func dateStr(t time.Time) string {
	return model.Day(t).Format(model.DateLayout)
}

func dateStrs(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = dateStr(t)
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
