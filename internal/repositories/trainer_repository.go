package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joaohlviana/99novo-sub001/internal/models"
)

const trainerColumns = `id, slug, name, fields, specialties, updated_at`

const viewColumns = `v.trainer_id, v.slug, v.name, v.fields, v.specialties, v.updated_at`

// TrainerRepository is the SQLite implementation of the specialty backend.
// The aggregate view is a pair of tables rebuilt by RefreshView: one row per
// trainer plus a (trainer_id, tag) index used for set predicates.
type TrainerRepository struct {
	db *sql.DB
}

// NewTrainerRepository creates a new trainer repository instance
func NewTrainerRepository(db *sql.DB) *TrainerRepository {
	return &TrainerRepository{db: db}
}

// QueryView returns one range of aggregate view rows matching pred, together
// with the exact number of matching rows
func (r *TrainerRepository) QueryView(ctx context.Context, pred models.TagPredicate, rng models.Range) ([]*models.TrainerRow, int, error) {
	where, args, err := tagClause(pred)
	if err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM trainer_specialties_mv v` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, backendError("count view", err)
	}

	if rng.Size() == 0 || rng.From >= total {
		return []*models.TrainerRow{}, total, nil
	}

	query := `SELECT ` + viewColumns + ` FROM trainer_specialties_mv v` + where +
		` ORDER BY v.name, v.trainer_id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, rng.Size(), rng.From)...)
	if err != nil {
		return nil, 0, backendError("query view", err)
	}
	defer rows.Close()

	trainers, err := scanTrainerRows(rows)
	if err != nil {
		return nil, 0, backendError("scan view", err)
	}
	return trainers, total, nil
}

// QueryTable returns one range of raw trainer rows with the exact row count
func (r *TrainerRepository) QueryTable(ctx context.Context, rng models.Range, requireTags bool) ([]*models.TrainerRow, int, error) {
	where := ""
	if requireTags {
		where = ` WHERE specialties IS NOT NULL AND specialties NOT IN ('', '[]')`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trainers`+where).Scan(&total); err != nil {
		return nil, 0, backendError("count trainers", err)
	}

	if rng.Size() == 0 || rng.From >= total {
		return []*models.TrainerRow{}, total, nil
	}

	query := `SELECT ` + trainerColumns + ` FROM trainers` + where + ` ORDER BY name, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, rng.Size(), rng.From)
	if err != nil {
		return nil, 0, backendError("query trainers", err)
	}
	defer rows.Close()

	trainers, err := scanTrainerRows(rows)
	if err != nil {
		return nil, 0, backendError("scan trainers", err)
	}
	return trainers, total, nil
}

// RefreshView rebuilds the aggregate view and its tag index from the trainers table
func (r *TrainerRepository) RefreshView(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return backendError("begin refresh", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+trainerColumns+` FROM trainers`)
	if err != nil {
		return backendError("read trainers", err)
	}
	trainers, err := scanTrainerRows(rows)
	rows.Close()
	if err != nil {
		return backendError("read trainers", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM trainer_specialty_tags`); err != nil {
		return backendError("clear tag index", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM trainer_specialties_mv`); err != nil {
		return backendError("clear view", err)
	}

	viewStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trainer_specialties_mv (trainer_id, slug, name, fields, specialties, specialties_text, updated_at, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return backendError("prepare view insert", err)
	}
	defer viewStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO trainer_specialty_tags (trainer_id, tag) VALUES (?, ?)`)
	if err != nil {
		return backendError("prepare tag insert", err)
	}
	defer tagStmt.Close()

	now := time.Now().UTC()
	for _, t := range trainers {
		text := models.DeriveSpecialtiesText(t.Specialties)
		textList := make(models.JSONList, len(text))
		for i, s := range text {
			textList[i] = s
		}

		if _, err := viewStmt.ExecContext(ctx, t.ID, t.Slug, t.Name, t.Fields, t.Specialties, textList, t.UpdatedAt, now); err != nil {
			return backendError("insert view row", err)
		}
		for _, tag := range text {
			if _, err := tagStmt.ExecContext(ctx, t.ID, tag); err != nil {
				return backendError("insert tag", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return backendError("commit refresh", err)
	}
	return nil
}

// SpecialtyStats returns every known tag with the number of trainers carrying it,
// most common first
func (r *TrainerRepository) SpecialtyStats(ctx context.Context) ([]models.SpecialtyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tag, trainer_count
		FROM specialty_stats
		ORDER BY trainer_count DESC, tag ASC
	`)
	if err != nil {
		return nil, backendError("query stats", err)
	}
	defer rows.Close()

	stats := make([]models.SpecialtyStat, 0)
	for rows.Next() {
		var s models.SpecialtyStat
		if err := rows.Scan(&s.Tag, &s.Count); err != nil {
			return nil, backendError("scan stats", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("scan stats", err)
	}
	return stats, nil
}

// SuggestSpecialties returns up to limit known tags starting with prefix,
// sorted lexicographically
func (r *TrainerRepository) SuggestSpecialties(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if limit <= 0 {
		return []string{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT tag
		FROM trainer_specialty_tags
		WHERE tag LIKE ? ESCAPE '\'
		ORDER BY tag ASC
		LIMIT ?
	`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, backendError("query suggestions", err)
	}
	defer rows.Close()

	tags := make([]string, 0, limit)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, backendError("scan suggestions", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("scan suggestions", err)
	}
	return tags, nil
}

// Upsert inserts a trainer or replaces the stored record with the same id
func (r *TrainerRepository) Upsert(ctx context.Context, trainer *models.TrainerRow) error {
	if trainer == nil || trainer.ID == "" || trainer.Slug == "" || trainer.Name == "" {
		return fmt.Errorf("%w: trainer id, slug and name are required", models.ErrInvalidInput)
	}
	if trainer.UpdatedAt.IsZero() {
		trainer.UpdatedAt = time.Now().UTC()
	}
	if trainer.Fields == nil {
		trainer.Fields = models.JSONObject{}
	}

	var specialties interface{}
	if trainer.Specialties != nil {
		specialties = trainer.Specialties
	}

	query := `
		INSERT INTO trainers (id, slug, name, fields, specialties, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			name = excluded.name,
			fields = excluded.fields,
			specialties = excluded.specialties,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		trainer.ID,
		trainer.Slug,
		trainer.Name,
		trainer.Fields,
		specialties,
		trainer.UpdatedAt,
	)
	return err
}

// GetByID retrieves a raw trainer record
func (r *TrainerRepository) GetByID(ctx context.Context, id string) (*models.TrainerRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+trainerColumns+` FROM trainers WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trainers, err := scanTrainerRows(rows)
	if err != nil {
		return nil, err
	}
	if len(trainers) == 0 {
		return nil, models.ErrTrainerNotFound
	}
	return trainers[0], nil
}

// Delete removes a trainer from the raw table. The view keeps the row until
// the next refresh.
func (r *TrainerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trainers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrTrainerNotFound
	}
	return nil
}

// Count returns the number of raw trainer records
func (r *TrainerRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trainers`).Scan(&n)
	return n, err
}

func scanTrainerRows(rows *sql.Rows) ([]*models.TrainerRow, error) {
	trainers := make([]*models.TrainerRow, 0)
	for rows.Next() {
		t := &models.TrainerRow{}
		if err := rows.Scan(
			&t.ID,
			&t.Slug,
			&t.Name,
			&t.Fields,
			&t.Specialties,
			&t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		trainers = append(trainers, t)
	}
	return trainers, rows.Err()
}

// tagClause translates a tag predicate into a WHERE clause over the view alias v
func tagClause(pred models.TagPredicate) (string, []interface{}, error) {
	if pred.Op == models.PredicateNone {
		return "", nil, nil
	}

	tags := models.CanonicalSpecialties(pred.Tags)
	if len(tags) == 0 {
		return "", nil, fmt.Errorf("%w: %s requires at least one tag", models.ErrUnsupportedPredicate, pred.Op)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
	args := make([]interface{}, 0, len(tags)+1)
	for _, tag := range tags {
		args = append(args, tag)
	}

	switch pred.Op {
	case models.PredicateContains:
		args = append(args, len(tags))
		return ` WHERE v.trainer_id IN (
			SELECT trainer_id FROM trainer_specialty_tags
			WHERE tag IN (` + placeholders + `)
			GROUP BY trainer_id
			HAVING COUNT(DISTINCT tag) = ?)`, args, nil
	case models.PredicateOverlaps:
		return ` WHERE EXISTS (
			SELECT 1 FROM trainer_specialty_tags t
			WHERE t.trainer_id = v.trainer_id AND t.tag IN (` + placeholders + `))`, args, nil
	default:
		return "", nil, fmt.Errorf("%w: operator %q", models.ErrUnsupportedPredicate, pred.Op)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// backendError classifies a storage failure so strategies can fall through.
// Context errors pass through untouched.
func backendError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", models.ErrBackendUnavailable, op, err)
}
