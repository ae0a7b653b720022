package meeting

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openscribe/meetingd/internal/errors"
)

// Store persists meetings. Save is called after every mutation, so it must
// be an idempotent upsert.
type Store interface {
	Save(ctx context.Context, m *Meeting) error
	LoadAll(ctx context.Context) ([]*Meeting, error)
}

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
create table if not exists meetings (
	id           text primary key,
	title        text not null,
	started_at   integer not null,
	duration_ms  integer not null,
	status       text not null,
	participants text not null,
	summary      text not null,
	action_items text not null
);
create table if not exists segments (
	id           text primary key,
	meeting_id   text not null references meetings(id),
	position     integer not null,
	offset_ms    integer not null,
	text         text not null,
	speaker_id   text not null,
	speaker_name text not null,
	final        integer not null
);
create index if not exists idx_segments_meeting on segments(meeting_id, position);
`

// OpenSQLite opens (and initializes) a SQLite store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "open database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.CodeStorage, "init schema")
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save upserts the meeting and rewrites its segment rows in one transaction.
// Segments are few (one per speaker turn) so the rewrite stays cheap.
func (s *SQLiteStore) Save(ctx context.Context, m *Meeting) error {
	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "encode participants")
	}
	actionItems, err := json.Marshal(m.ActionItems)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "encode action items")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorage, "begin tx")
	}

	_, err = tx.ExecContext(ctx, `
		insert into meetings (id, title, started_at, duration_ms, status, participants, summary, action_items)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict(id) do update set
			title = excluded.title,
			duration_ms = excluded.duration_ms,
			status = excluded.status,
			participants = excluded.participants,
			summary = excluded.summary,
			action_items = excluded.action_items
	`, m.ID, m.Title, m.StartedAt.UnixMilli(), m.Duration.Milliseconds(), string(m.Status), string(participants), m.Summary, string(actionItems))
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.CodeStorage, "upsert meeting")
	}

	if _, err = tx.ExecContext(ctx, "delete from segments where meeting_id = $1", m.ID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.CodeStorage, "clear segments")
	}

	for i, seg := range m.Segments {
		final := 0
		if seg.Final {
			final = 1
		}
		_, err = tx.ExecContext(ctx, `
			insert into segments (id, meeting_id, position, offset_ms, text, speaker_id, speaker_name, final)
			values ($1, $2, $3, $4, $5, $6, $7, $8)
		`, seg.ID, m.ID, i, seg.Offset.Milliseconds(), seg.Text, seg.SpeakerID, seg.SpeakerName, final)
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.CodeStorage, "insert segment")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeStorage, "commit")
	}
	return nil
}

// LoadAll returns every stored meeting ordered by start time, segments in
// position order.
func (s *SQLiteStore) LoadAll(ctx context.Context) ([]*Meeting, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, title, started_at, duration_ms, status, participants, summary, action_items
		from meetings order by started_at
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "query meetings")
	}
	defer rows.Close()

	var meetings []*Meeting
	byID := make(map[string]*Meeting)
	for rows.Next() {
		var (
			m                         Meeting
			startedMs, durationMs     int64
			participants, actionsJSON string
		)
		if err := rows.Scan(&m.ID, &m.Title, &startedMs, &durationMs, (*string)(&m.Status), &participants, &m.Summary, &actionsJSON); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "scan meeting")
		}
		m.StartedAt = time.UnixMilli(startedMs)
		m.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(participants), &m.Participants); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "decode participants")
		}
		if err := json.Unmarshal([]byte(actionsJSON), &m.ActionItems); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "decode action items")
		}
		mm := m
		meetings = append(meetings, &mm)
		byID[mm.ID] = &mm
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "iterate meetings")
	}

	segRows, err := s.db.QueryContext(ctx, `
		select id, meeting_id, offset_ms, text, speaker_id, speaker_name, final
		from segments order by meeting_id, position
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "query segments")
	}
	defer segRows.Close()

	for segRows.Next() {
		var (
			seg       Segment
			meetingID string
			offsetMs  int64
			final     int
		)
		if err := segRows.Scan(&seg.ID, &meetingID, &offsetMs, &seg.Text, &seg.SpeakerID, &seg.SpeakerName, &final); err != nil {
			return nil, errors.Wrap(err, errors.CodeStorage, "scan segment")
		}
		seg.Offset = time.Duration(offsetMs) * time.Millisecond
		seg.Final = final != 0
		if m, ok := byID[meetingID]; ok {
			m.Segments = append(m.Segments, seg)
		}
	}
	if err := segRows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeStorage, "iterate segments")
	}

	return meetings, nil
}
