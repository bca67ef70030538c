package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/names"
	"github.com/pgvector/pgvector-go"
)

const dateLayout = "2006-01-02"

// PersonRepository provides PostgreSQL-backed people storage using pgvector.
type PersonRepository struct {
	pool   *Pool
	metric database.Metric
}

// NewPersonRepository creates a new PostgreSQL people repository.
func NewPersonRepository(pool *Pool, metric database.Metric) *PersonRepository {
	if metric == "" {
		metric = database.MetricCosine
	}
	return &PersonRepository{pool: pool, metric: metric}
}

// distanceOperator maps a metric to the pgvector operator.
func distanceOperator(m database.Metric) string {
	switch m {
	case database.MetricEuclidean:
		return "<->"
	case database.MetricDot:
		return "<#>"
	default:
		return "<=>"
	}
}

const personColumns = `id, image, embedding, name, name_normalized, place_of_birth,
		       popularity, gender, biography, birthday, created_at`

// Get retrieves a person by id.
func (r *PersonRepository) Get(ctx context.Context, id int64) (*database.StoredPerson, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+personColumns+" FROM people WHERE id = $1", id)
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
	err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM people WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check person exists: %w", err)
	}
	return exists, nil
}

// List returns the id and image of the first limit rows ordered by id.
func (r *PersonRepository) List(ctx context.Context, limit int) ([]database.PersonImage, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, image FROM people ORDER BY id LIMIT $1", limit)
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
	rows, err := r.pool.Query(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE name_normalized = $1
		ORDER BY popularity DESC, id
		LIMIT $2
	`, names.Normalize(name), limit)
	if err != nil {
		return nil, fmt.Errorf("query people by name: %w", err)
	}
	defer rows.Close()

	return scanPeople(rows)
}

// Count returns the total number of people stored.
func (r *PersonRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM people").Scan(&count); err != nil {
		return 0, fmt.Errorf("count people: %w", err)
	}
	return count, nil
}

// Stats returns row counts by populated columns.
func (r *PersonRepository) Stats(ctx context.Context) (*database.Stats, error) {
	var s database.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(embedding),
		       COUNT(birthday),
		       COUNT(image),
		       COUNT(*) FILTER (WHERE embedding IS NOT NULL AND birthday IS NOT NULL)
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
	metric := q.Metric
	if metric == "" {
		metric = r.metric
	}
	op := distanceOperator(metric)

	query := fmt.Sprintf(`
		SELECT id, name, image, embedding %[1]s $1::vector AS distance
		FROM people
		WHERE embedding IS NOT NULL
		  AND birthday IS NOT NULL
		  AND birthday >= $2::date
		  AND birthday <= $3::date
		  AND embedding %[1]s $1::vector < $4
		ORDER BY distance
		LIMIT $5
	`, op)

	rows, err := r.pool.Query(ctx, query,
		pgvector.NewVector(q.Embedding),
		q.Window.BornAfter.Format(dateLayout),
		q.Window.BornBefore.Format(dateLayout),
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

// personNullableFields holds nullable SQL parameters extracted from a StoredPerson.
type personNullableFields struct {
	image        any
	embedding    any
	placeOfBirth sql.NullString
	biography    sql.NullString
	birthday     sql.NullString
}

// extractNullableFields converts optional person fields to SQL nullable types.
func extractNullableFields(p *database.StoredPerson) personNullableFields {
	var f personNullableFields
	if len(p.Image) > 0 {
		f.image = p.Image
	}
	if p.HasEmbedding() {
		f.embedding = pgvector.NewVector(p.Embedding)
	}
	if p.PlaceOfBirth != "" {
		f.placeOfBirth = sql.NullString{String: p.PlaceOfBirth, Valid: true}
	}
	if p.Biography != "" {
		f.biography = sql.NullString{String: p.Biography, Valid: true}
	}
	if p.Birthday != nil {
		f.birthday = sql.NullString{String: p.Birthday.Format(dateLayout), Valid: true}
	}
	return f
}

// Save inserts a person, leaving an existing row with the same id untouched.
func (r *PersonRepository) Save(ctx context.Context, p *database.StoredPerson) (bool, error) {
	if err := database.ValidateEmbedding(p.Embedding); err != nil {
		return false, err
	}
	nf := extractNullableFields(p)
	normalized := p.NameNormalized
	if normalized == "" {
		normalized = names.Normalize(p.Name)
	}

	res, err := r.pool.Exec(ctx, `
		INSERT INTO people (id, image, embedding, name, name_normalized, place_of_birth,
		                    popularity, gender, biography, birthday)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7, $8, $9, $10::date)
		ON CONFLICT (id) DO NOTHING
	`,
		p.ID,
		nf.image,
		nf.embedding,
		p.Name,
		normalized,
		nf.placeOfBirth,
		p.Popularity,
		p.Gender,
		nf.biography,
		nf.birthday,
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
	res, err := r.pool.Exec(ctx, "DELETE FROM people WHERE id = $1", id)
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

// scanPersonRow scans a single row into a StoredPerson.
func scanPersonRow(scanner interface{ Scan(...any) error }) (database.StoredPerson, error) {
	var p database.StoredPerson
	var vec sql.Null[pgvector.Vector]
	var placeOfBirth, biography sql.NullString
	var birthday sql.NullTime

	err := scanner.Scan(
		&p.ID,
		&p.Image,
		&vec,
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

	if vec.Valid {
		p.Embedding = vec.V.Slice()
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

func scanPeople(rows *sql.Rows) ([]database.StoredPerson, error) {
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
