package oracle

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

// PersonRepository stores people in Oracle using VECTOR_DISTANCE for search.
type PersonRepository struct {
	pool   *Pool
	metric database.Metric
}

// NewPersonRepository creates a new Oracle people repository.
func NewPersonRepository(pool *Pool, metric database.Metric) *PersonRepository {
	if metric == "" {
		metric = database.MetricCosine
	}
	return &PersonRepository{pool: pool, metric: metric}
}

// distanceKeyword maps a metric to the VECTOR_DISTANCE metric argument.
func distanceKeyword(m database.Metric) string {
	switch m {
	case database.MetricEuclidean:
		return "EUCLIDEAN"
	case database.MetricDot:
		return "DOT"
	default:
		return "COSINE"
	}
}

const personColumns = `id, image, FROM_VECTOR(embedding RETURNING CLOB), name, name_normalized,
		       place_of_birth, popularity, gender, biography, birthday, created_at`

// Get retrieves a person by id.
func (r *PersonRepository) Get(ctx context.Context, id int64) (*database.StoredPerson, error) {
	row := r.pool.db.QueryRowContext(ctx, "SELECT "+personColumns+" FROM people WHERE id = :1", id)
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
	var n int
	err := r.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM people WHERE id = :1", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check person exists: %w", err)
	}
	return n > 0, nil
}

// List returns the id and image of the first limit rows ordered by id.
func (r *PersonRepository) List(ctx context.Context, limit int) ([]database.PersonImage, error) {
	rows, err := r.pool.db.QueryContext(ctx, "SELECT id, image FROM people ORDER BY id FETCH FIRST :1 ROWS ONLY", limit)
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
		WHERE name_normalized = :1
		ORDER BY popularity DESC, id
		FETCH FIRST :2 ROWS ONLY
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
		       COUNT(CASE WHEN embedding IS NOT NULL THEN 1 END),
		       COUNT(birthday),
		       COUNT(CASE WHEN image IS NOT NULL THEN 1 END),
		       COUNT(CASE WHEN embedding IS NOT NULL AND birthday IS NOT NULL THEN 1 END)
		FROM people
	`).Scan(&s.Total, &s.WithEmbedding, &s.WithBirthday, &s.WithImage, &s.Searchable)
	if err != nil {
		return nil, fmt.Errorf("people stats: %w", err)
	}
	return &s, nil
}

// FindSimilar returns people whose VECTOR_DISTANCE to the query is strictly
// below MaxDistance and whose birthday lies in the age window.
func (r *PersonRepository) FindSimilar(ctx context.Context, q database.SimilarityQuery) ([]database.Match, error) {
	if err := database.ValidateEmbedding(q.Embedding); err != nil {
		return nil, err
	}
	metric := q.Metric
	if metric == "" {
		metric = r.metric
	}
	kw := distanceKeyword(metric)

	query := fmt.Sprintf(`
		SELECT id, name, image,
		       VECTOR_DISTANCE(embedding, TO_VECTOR(:1, 128, FLOAT32), %[1]s) AS distance
		FROM people
		WHERE embedding IS NOT NULL
		  AND birthday IS NOT NULL
		  AND birthday >= TO_DATE(:2, 'YYYY-MM-DD')
		  AND birthday <= TO_DATE(:3, 'YYYY-MM-DD')
		  AND VECTOR_DISTANCE(embedding, TO_VECTOR(:4, 128, FLOAT32), %[1]s) < :5
		ORDER BY distance
		FETCH FIRST :6 ROWS ONLY
	`, kw)

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
		var name sql.NullString
		if err := rows.Scan(&m.ID, &name, &m.Image, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Name = name.String
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// Save inserts a person with MERGE, leaving an existing row untouched.
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
	if p.Birthday != nil {
		birthday = sql.NullString{String: p.Birthday.Format(dateLayout), Valid: true}
	}
	if p.Biography != "" {
		biography = sql.NullString{String: p.Biography, Valid: true}
	}
	normalized := p.NameNormalized
	if normalized == "" {
		normalized = names.Normalize(p.Name)
	}

	res, err := r.pool.db.ExecContext(ctx, `
		MERGE INTO people t
		USING (SELECT :1 AS id FROM dual) s
		ON (t.id = s.id)
		WHEN NOT MATCHED THEN INSERT
			(id, image, embedding, name, name_normalized, place_of_birth,
			 popularity, gender, biography, birthday)
		VALUES
			(s.id, :2, TO_VECTOR(:3, 128, FLOAT32), :4, :5, :6,
			 :7, :8, :9, TO_DATE(:10, 'YYYY-MM-DD'))
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
	res, err := r.pool.db.ExecContext(ctx, "DELETE FROM people WHERE id = :1", id)
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
	var embedding, name, normalized, placeOfBirth, biography sql.NullString
	var birthday sql.NullTime

	err := scanner.Scan(
		&p.ID,
		&p.Image,
		&embedding,
		&name,
		&normalized,
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

	// Oracle stores empty strings as NULL.
	p.Name = name.String
	p.NameNormalized = normalized.String
	p.PlaceOfBirth = placeOfBirth.String
	p.Biography = biography.String
	if embedding.Valid {
		vec, err := database.ParseVector(embedding.String)
		if err != nil {
			return p, err
		}
		p.Embedding = vec
	}
	if birthday.Valid {
		b := time.Date(birthday.Time.Year(), birthday.Time.Month(), birthday.Time.Day(), 0, 0, 0, 0, time.UTC)
		p.Birthday = &b
	}
	return p, nil
}
