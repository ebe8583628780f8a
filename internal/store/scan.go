package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/logtags/internal/models"
)

// timeLayout is fixed width so that text ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeMetadata(m models.Metadata) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("store: encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (models.Metadata, error) {
	m := models.Metadata{}
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("store: decode metadata: %w", err)
	}
	if m == nil {
		m = models.Metadata{}
	}
	return m, nil
}

// tagColumns is the ordered list of columns selected in tag queries.
// Must match tagRow.dest.
const tagColumns = `id, name, description, metadata, created_by, created_at, updated_at`

// tagColumnsT is tagColumns qualified with the "t" alias for joins.
const tagColumnsT = `t.id, t.name, t.description, t.metadata, t.created_by, t.created_at, t.updated_at`

type tagRow struct {
	tag       models.Tag
	metadata  string
	createdAt string
	updatedAt string
}

func (r *tagRow) dest() []any {
	return []any{
		&r.tag.ID,
		&r.tag.Name,
		&r.tag.Description,
		&r.metadata,
		&r.tag.CreatedBy,
		&r.createdAt,
		&r.updatedAt,
	}
}

func (r *tagRow) finish() (*models.Tag, error) {
	var err error
	t := r.tag
	if t.Metadata, err = decodeMetadata(r.metadata); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(r.createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(r.updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// scanTag scans a sql.Row (or sql.Rows via its Scan method) into a models.Tag.
func scanTag(scanner interface{ Scan(dest ...any) error }) (*models.Tag, error) {
	var r tagRow
	if err := scanner.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.finish()
}

func collectTags(rows *sql.Rows) ([]*models.Tag, error) {
	defer rows.Close()
	out := []*models.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// constraintCode returns the extended SQLite constraint code of err, or 0.
func constraintCode(err error) sqlite3.ErrNoExtended {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return se.ExtendedCode
	}
	return 0
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// likePattern wraps s in % wildcards, escaping LIKE metacharacters.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
