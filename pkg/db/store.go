package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/japaniel/kanjisync/pkg/config"
)

// DefaultDeck is used when a create carries no deck hint.
const DefaultDeck = "Default"

// ErrNoteTypeNotFound is returned when a create names an unknown note type.
var ErrNoteTypeNotFound = errors.New("note type not found")

// ErrNoteNotFound is returned for lookups of missing notes or cards.
var ErrNoteNotFound = errors.New("note not found")

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// Store is the SQLite-backed note collection.
type Store struct {
	db *sql.DB
	queries
}

// New wraps an already migrated connection.
func New(conn *sql.DB) *Store {
	return &Store{db: conn, queries: queries{ex: conn}}
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// queries holds every statement so that Store and Batch share one implementation.
type queries struct {
	ex DBExecutor
}

// EnsureNoteType returns the id of the named note type, creating it with fields if absent.
func (q queries) EnsureNoteType(ctx context.Context, name string, fields []string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("note type name must be non-empty")
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return 0, err
	}
	var id int64
	err = q.ex.QueryRowContext(ctx,
		`INSERT INTO note_types (name, fields) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET fields = CASE WHEN note_types.fields = '[]' THEN excluded.fields ELSE note_types.fields END
		 RETURNING id`,
		name, string(encoded),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert note type: %w", err)
	}
	return id, nil
}

// NoteType looks up a note type by name.
func (q queries) NoteType(ctx context.Context, name string) (*NoteType, error) {
	var (
		nt  NoteType
		raw string
	)
	err := q.ex.QueryRowContext(ctx, `SELECT id, name, fields FROM note_types WHERE name = ?`, name).
		Scan(&nt.ID, &nt.Name, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNoteTypeNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &nt.Fields); err != nil {
		return nil, fmt.Errorf("decode note type fields: %w", err)
	}
	return &nt, nil
}

// EnsureDeck returns the id of the named deck, creating it if absent.
func (q queries) EnsureDeck(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDeck
	}
	var id int64
	for attempt := 0; attempt < 3; attempt++ {
		err := q.ex.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, name).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
		res, err := q.ex.ExecContext(ctx, `INSERT INTO decks (name) VALUES (?)`, name)
		if err != nil {
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, fmt.Errorf("insert deck: %w", err)
		}
		return res.LastInsertId()
	}
	return 0, fmt.Errorf("failed to create or get deck %q", name)
}

// AddNote inserts a note of noteType with cardCount new cards in deck.
func (q queries) AddNote(ctx context.Context, noteType string, fields map[string]string, tags []string, deck string, cardCount int) (int64, []int64, error) {
	nt, err := q.NoteType(ctx, noteType)
	if err != nil {
		return 0, nil, err
	}
	deckID, err := q.EnsureDeck(ctx, deck)
	if err != nil {
		return 0, nil, err
	}
	encoded, err := encodeFields(nt.Fields, fields)
	if err != nil {
		return 0, nil, err
	}
	res, err := q.ex.ExecContext(ctx,
		`INSERT INTO notes (note_type_id, fields, tags) VALUES (?, ?, ?)`,
		nt.ID, encoded, joinTags(tags))
	if err != nil {
		return 0, nil, fmt.Errorf("insert note: %w", err)
	}
	noteID, err := res.LastInsertId()
	if err != nil {
		return 0, nil, err
	}

	var due int64
	if err := q.ex.QueryRowContext(ctx, `SELECT COALESCE(MAX(due), 0) + 1 FROM cards`).Scan(&due); err != nil {
		return 0, nil, fmt.Errorf("next due: %w", err)
	}
	cardIDs := make([]int64, 0, cardCount)
	for i := 0; i < cardCount; i++ {
		res, err := q.ex.ExecContext(ctx,
			`INSERT INTO cards (note_id, deck_id, due) VALUES (?, ?, ?)`, noteID, deckID, due+int64(i))
		if err != nil {
			return 0, nil, fmt.Errorf("insert card: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, nil, err
		}
		cardIDs = append(cardIDs, id)
	}
	return noteID, cardIDs, nil
}

// CreateRecord adds a note with one new card, placed after every existing card in the queue.
func (q queries) CreateRecord(ctx context.Context, noteType string, fields map[string]string, deckHint string) (int64, error) {
	id, _, err := q.AddNote(ctx, noteType, fields, nil, deckHint, 1)
	return id, err
}

// SetTags adds and removes tags on a note. Matching is case-insensitive and
// existing spelling is preserved.
func (q queries) SetTags(ctx context.Context, noteID int64, add, remove []string) error {
	var raw string
	err := q.ex.QueryRowContext(ctx, `SELECT tags FROM notes WHERE id = ?`, noteID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrNoteNotFound, noteID)
	}
	if err != nil {
		return err
	}
	tags := ApplyTagChanges(splitTags(raw), add, remove)
	if _, err := q.ex.ExecContext(ctx, `UPDATE notes SET tags = ? WHERE id = ?`, joinTags(tags), noteID); err != nil {
		return fmt.Errorf("update tags: %w", err)
	}
	return nil
}

// SetSuspended flags the given cards as suspended or active.
func (q queries) SetSuspended(ctx context.Context, cardIDs []int64, suspended bool) error {
	if len(cardIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(cardIDs)+1)
	args = append(args, suspended)
	for _, id := range cardIDs {
		args = append(args, id)
	}
	res, err := q.ex.ExecContext(ctx,
		`UPDATE cards SET suspended = ? WHERE id IN (`+placeholders(len(cardIDs))+`)`, args...)
	if err != nil {
		return fmt.Errorf("update suspension: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(cardIDs)) {
		return fmt.Errorf("update suspension: %d of %d cards found", n, len(cardIDs))
	}
	return nil
}

// RecordReview bumps the review count of a card and sets its interval.
// It returns the owning note id.
func (q queries) RecordReview(ctx context.Context, cardID int64, interval int) (int64, error) {
	var noteID int64
	err := q.ex.QueryRowContext(ctx,
		`UPDATE cards SET reps = reps + 1, ivl = ? WHERE id = ? RETURNING note_id`, interval, cardID).Scan(&noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: card %d", ErrNoteNotFound, cardID)
	}
	if err != nil {
		return 0, fmt.Errorf("record review: %w", err)
	}
	return noteID, nil
}

// Note loads a single note with its cards.
func (q queries) Note(ctx context.Context, id int64) (*Note, error) {
	notes, err := q.loadNotes(ctx, `n.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoteNotFound, id)
	}
	return &notes[0], nil
}

// NotesByType loads every note of the named type, ordered by id.
func (q queries) NotesByType(ctx context.Context, noteType string) ([]Note, error) {
	return q.loadNotes(ctx, `t.name = ?`, noteType)
}

// LeechTag returns the tag the scheduler puts on leech cards.
func (q queries) LeechTag(ctx context.Context) (string, error) {
	v, err := q.Setting(ctx, "leech_tag")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "leech", nil
	}
	return strings.TrimSpace(v), nil
}

// Setting reads a collection setting; missing keys yield "".
func (q queries) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := q.ex.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetSetting writes a collection setting.
func (q queries) SetSetting(ctx context.Context, key, value string) error {
	_, err := q.ex.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

// ListVocabRecords returns every note of the configured vocabulary note types, ordered by id.
func (q queries) ListVocabRecords(ctx context.Context, sources []config.VocabNoteType) ([]VocabRecord, error) {
	return q.listVocab(ctx, sources, nil)
}

// ListVocabRecordsContaining narrows ListVocabRecords to notes whose stored
// fields contain at least one of literals. It may return extra notes (for
// example a literal inside an unconfigured field, or any note with a numeric
// character reference); callers re-check.
func (q queries) ListVocabRecordsContaining(ctx context.Context, sources []config.VocabNoteType, literals []string) ([]VocabRecord, error) {
	if len(literals) == 0 {
		return nil, nil
	}
	return q.listVocab(ctx, sources, literals)
}

// charRefPatterns match "&#" in stored fields, raw or as encoding/json
// writes it.
var charRefPatterns = []string{"%&#%", `%\u0026#%`}

func (q queries) listVocab(ctx context.Context, sources []config.VocabNoteType, literals []string) ([]VocabRecord, error) {
	names := make([]interface{}, 0, len(sources))
	seen := map[string]bool{}
	for _, s := range sources {
		if s.Name != "" && !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	where := `t.name IN (` + placeholders(len(names)) + `)`
	args := names
	if len(literals) > 0 {
		likes := make([]string, 0, len(literals)+len(charRefPatterns))
		for _, lit := range literals {
			likes = append(likes, `n.fields LIKE ?`)
			args = append(args, "%"+lit+"%")
		}
		// A numeric character reference can spell any literal, so notes
		// containing one always pass.
		for _, pat := range charRefPatterns {
			likes = append(likes, `n.fields LIKE ?`)
			args = append(args, pat)
		}
		where += ` AND (` + strings.Join(likes, " OR ") + `)`
	}
	notes, err := q.loadNotes(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	out := make([]VocabRecord, 0, len(notes))
	for _, n := range notes {
		out = append(out, VocabRecord{NoteID: n.ID, NoteType: n.NoteType, Fields: n.Fields, Tags: n.Tags, Cards: n.Cards})
	}
	return out, nil
}

// ListCharacterRecords returns the notes of noteType keyed by the trimmed
// content of literalField. Notes with an empty literal are skipped.
func (q queries) ListCharacterRecords(ctx context.Context, noteType, literalField string) ([]CharacterRecord, error) {
	notes, err := q.NotesByType(ctx, noteType)
	if err != nil {
		return nil, err
	}
	out := make([]CharacterRecord, 0, len(notes))
	for _, n := range notes {
		lit := strings.TrimSpace(n.Fields[literalField])
		if lit == "" {
			continue
		}
		out = append(out, CharacterRecord{NoteID: n.ID, Literal: lit, Tags: n.Tags, Cards: n.Cards})
	}
	return out, nil
}

func (q queries) loadNotes(ctx context.Context, where string, args ...interface{}) ([]Note, error) {
	rows, err := q.ex.QueryContext(ctx, `
		SELECT n.id, t.name, n.fields, n.tags, n.created_at,
		       c.id, c.due, c.reps, c.ivl, c.suspended
		FROM notes n
		JOIN note_types t ON t.id = n.note_type_id
		LEFT JOIN cards c ON c.note_id = n.id
		WHERE `+where+`
		ORDER BY n.id, c.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var (
			n                  Note
			rawFields, rawTags string
			createdAt          sql.NullTime
			cardID, due        sql.NullInt64
			reps, ivl          sql.NullInt64
			suspended          sql.NullBool
		)
		if err := rows.Scan(&n.ID, &n.NoteType, &rawFields, &rawTags, &createdAt,
			&cardID, &due, &reps, &ivl, &suspended); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].ID != n.ID {
			n.Fields = map[string]string{}
			if err := json.Unmarshal([]byte(rawFields), &n.Fields); err != nil {
				return nil, fmt.Errorf("decode fields of note %d: %w", n.ID, err)
			}
			n.Tags = splitTags(rawTags)
			if createdAt.Valid {
				n.CreatedAt = createdAt.Time
			}
			out = append(out, n)
		}
		if cardID.Valid {
			cur := &out[len(out)-1]
			cur.Cards = append(cur.Cards, CardState{
				ID:        cardID.Int64,
				NoteID:    cur.ID,
				Due:       due.Int64,
				Reps:      int(reps.Int64),
				Interval:  int(ivl.Int64),
				Suspended: suspended.Bool,
			})
		}
	}
	return out, rows.Err()
}

// encodeFields serializes values for the note type's fields. Unknown field
// names are rejected so a misconfigured field map fails loudly.
func encodeFields(known []string, values map[string]string) (string, error) {
	allowed := make(map[string]bool, len(known))
	for _, f := range known {
		allowed[f] = true
	}
	out := make(map[string]string, len(known))
	for _, f := range known {
		out[f] = ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(known) > 0 && !allowed[k] {
			return "", fmt.Errorf("unknown field %q", k)
		}
		out[k] = values[k]
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ApplyTagChanges removes then adds tags, case-insensitively, preserving order.
func ApplyTagChanges(tags, add, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		if t = strings.TrimSpace(t); t != "" {
			drop[strings.ToLower(t)] = true
		}
	}
	out := make([]string, 0, len(tags)+len(add))
	have := make(map[string]bool, len(tags))
	for _, t := range tags {
		k := strings.ToLower(t)
		if drop[k] || have[k] {
			continue
		}
		have[k] = true
		out = append(out, t)
	}
	for _, t := range add {
		t = strings.TrimSpace(t)
		k := strings.ToLower(t)
		if t == "" || have[k] {
			continue
		}
		have[k] = true
		out = append(out, t)
	}
	return out
}

func splitTags(raw string) []string {
	return strings.Fields(raw)
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
