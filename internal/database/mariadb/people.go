package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/names"
)

const dateLayout = "2006-01-02"

// PersonRepository stores people in MariaDB using its native VECTOR type.
type PersonRepository struct {
	pool     *Pool
	metric   database.Metric
	distance string
}

// NewPersonRepository creates a new MariaDB people repository.
// MariaDB has no inner product distance, so MetricDot is rejected.
func NewPersonRepository(pool *Pool, metric database.Metric) (*PersonRepository, error) {
	fn, err := distanceFunc(metric)
	if err != nil {
		return nil, err
	}
	if metric == "" {
		metric = database.MetricCosine
	}
	return &PersonRepository{pool: pool, metric: metric, distance: fn}, nil
}

func distanceFunc(m database.Metric) (string, error) {
	switch m {
	case "", database.MetricCosine:
		return "VEC_DISTANCE_COSINE", nil
	case database.MetricEuclidean:
		return "VEC_DISTANCE_EUCLIDEAN", nil
	default:
		return "", fmt.Errorf("mariadb: unsupported distance metric %q", m)
	}
}

const personColumns = `id, image, VEC_ToText(embedding), name, name_normalized, place_of_birth,
		       popularity, gender, biography, birthday, created_at`

// Get retrieves a person by id.
func (r *PersonRepository) Get(ctx context.Context, id int64) (*database.StoredPerson, error) {
	row := r.pool.db.QueryRowContext(ctx, "SELECT "+personColumns+" FROM people WHERE id = ?", id)
	p, err := scanPersonRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Has checks if a person with the given id exists.
func (r *PersonRepository) Has(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM people WHERE id = ?)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check person exists: %w", err)
	}
	return exists, nil
}

// List returns the id and image of the first limit rows ordered by id.
func (r *PersonRepository) List(ctx context.Context, limit int) ([]database.PersonImage, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT id, image FROM people ORDER BY id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	var out []database.PersonImage
	for rows.Next() {
		var pi database.PersonImage
		if err := rows.Scan(&pi.ID, &pi.Image); err != nil {
			return nil, fmt.Errorf("scan person image: %w", err)
		}
		out = append(out, pi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return out, nil
}

// FindByName returns people whose normalized name matches.
func (r *PersonRepository) FindByName(ctx context.Context, name string, limit int) ([]database.StoredPerson, error) {
	rows, err := r.pool.db.QueryContext(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE name_normalized = ?
		ORDER BY popularity DESC, id
		LIMIT ?
	`, names.Normalize(name), limit)
	if err != nil {
		return nil, fmt.Errorf("query people by name: %w", err)
	}
	defer rows.Close()

	var people []database.StoredPerson
	for rows.Next() {
		p, err := scanPersonRow(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate people: %w", err)
	}
	return people, nil
}

// Count returns the total number of people stored.
func (r *PersonRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM people").Scan(&count); err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return count, nil
}

// Stats returns row counts by populated columns.
func (r *PersonRepository) Stats(ctx context.Context) (*database.Stats, error) {
	var s database.Stats
	err := r.pool.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(embedding),
		       COUNT(birthday),
		       COUNT(image),
		       COUNT(CASE WHEN embedding IS NOT NULL AND birthday IS NOT NULL THEN 1 END)
		FROM people
	`).Scan(&s.Total, &s.WithEmbedding, &s.WithBirthday, &s.WithImage, &s.Searchable)
	if err != nil {
		return nil, fmt.Errorf("people stats: %w", err)
	}
	return &s, nil
}

// FindSimilar returns people whose embedding distance to the query is strictly
// below MaxDistance and whose birthday lies in the age window.
func (r *PersonRepository) FindSimilar(ctx context.Context, q database.SimilarityQuery) ([]database.Match, error) {
	if err := database.ValidateEmbedding(q.Embedding); err != nil {
		return nil, err
	}
	fn := r.distance
	if q.Metric != "" && q.Metric != r.metric {
		var err error
		if fn, err = distanceFunc(q.Metric); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`
		SELECT id, name, image, %[1]s(embedding, VEC_FromText(?)) AS distance
		FROM people
		WHERE embedding IS NOT NULL
		  AND birthday IS NOT NULL
		  AND birthday >= ?
		  AND birthday <= ?
		  AND %[1]s(embedding, VEC_FromText(?)) < ?
		ORDER BY distance
		LIMIT ?
	`, fn)

	vec := database.FormatVector(q.Embedding)
	rows, err := r.pool.db.QueryContext(ctx, query,
		vec,
		q.Window.BornAfter.Format(dateLayout),
		q.Window.BornBefore.Format(dateLayout),
		vec,
		q.MaxDistance,
		q.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query similar people: %w", err)
	}
	defer rows.Close()

	var matches []database.Match
	for rows.Next() {
		var m database.Match
		if err := rows.Scan(&m.ID, &m.Name, &m.Image, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// Save inserts a person, leaving an existing row with the same id untouched.
func (r *PersonRepository) Save(ctx context.Context, p *database.StoredPerson) (bool, error) {
	if err := database.ValidateEmbedding(p.Embedding); err != nil {
		return false, err
	}

	var image any
	if len(p.Image) > 0 {
		image = p.Image
	}
	var embedding, placeOfBirth, biography, birthday sql.NullString
	if p.HasEmbedding() {
		embedding = sql.NullString{String: database.FormatVector(p.Embedding), Valid: true}
	}
	if p.PlaceOfBirth != "" {
		placeOfBirth = sql.NullString{String: p.PlaceOfBirth, Valid: true}
	}
	if p.Biography != "" {
		biography = sql.NullString{String: p.Biography, Valid: true}
	}
	if p.Birthday != nil {
		birthday = sql.NullString{String: p.Birthday.Format(dateLayout), Valid: true}
	}
	normalized := p.NameNormalized
	if normalized == "" {
		normalized = names.Normalize(p.Name)
	}

	// ON DUPLICATE KEY with a no-op assignment reports 0 affected rows.
	res, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO people (id, image, embedding, name, name_normalized, place_of_birth,
		                    popularity, gender, biography, birthday)
		VALUES (?, ?, VEC_FromText(?), ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`,
		p.ID, image, embedding, p.Name, normalized, placeOfBirth,
		p.Popularity, p.Gender, biography, birthday,
	)
	if err != nil {
		return false, fmt.Errorf("insert person %d: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a person by id.
func (r *PersonRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.pool.db.ExecContext(ctx, "DELETE FROM people WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete person %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func scanPersonRow(scanner interface{ Scan(...any) error }) (database.StoredPerson, error) {
	var p database.StoredPerson
	var embedding, placeOfBirth, biography sql.NullString
	var birthday sql.NullTime

	err := scanner.Scan(
		&p.ID,
		&p.Image,
		&embedding,
		&p.Name,
		&p.NameNormalized,
		&placeOfBirth,
		&p.Popularity,
		&p.Gender,
		&biography,
		&birthday,
		&p.CreatedAt,
	)
	if err != nil {
		return p, fmt.Errorf("scan person: %w", err)
	}

	if embedding.Valid {
		vec, err := database.ParseVector(embedding.String)
		if err != nil {
			return p, err
		}
		p.Embedding = vec
	}
	if placeOfBirth.Valid {
		p.PlaceOfBirth = placeOfBirth.String
	}
	if biography.Valid {
		p.Biography = biography.String
	}
	if birthday.Valid {
		b := time.Date(birthday.Time.Year(), birthday.Time.Month(), birthday.Time.Day(), 0, 0, 0, 0, time.UTC)
		p.Birthday = &b
	}
	return p, nil
}
