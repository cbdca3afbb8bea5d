package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/online-cinema/internal/model"
)

// MovieQuery defines filters, sorting and pagination for browsing movies.
type MovieQuery struct {
	Name     string
	Genre    string
	Star     string
	Director string
	Year     int
	Sort     string // name, year, price or imdb; a leading "-" sorts descending
	Page     int
	PageSize int
}

// movieSorts whitelists the ORDER BY clauses reachable from MovieQuery.Sort.
var movieSorts = map[string]string{
	"name":   "m.name ASC",
	"-name":  "m.name DESC",
	"year":   "m.year ASC",
	"-year":  "m.year DESC",
	"price":  "m.price ASC",
	"-price": "m.price DESC",
	"imdb":   "m.imdb ASC",
	"-imdb":  "m.imdb DESC",
}

// ValidMovieSort reports whether s is an accepted sort key ("" included).
func ValidMovieSort(s string) bool {
	_, ok := movieSorts[s]
	return ok || s == ""
}

// MovieRepo manages the catalog tables.  Reads go straight to the pool;
// writes touching join tables run in their own transaction.
type MovieRepo struct {
	db *sql.DB
}

func NewMovieRepo(db *sql.DB) *MovieRepo { return &MovieRepo{db: db} }

// relation describes one of the many-to-many name tables of a movie.
type relation struct {
	table string // genres
	join  string // movie_genres
	fk    string // genre_id
}

var (
	genreRel    = relation{"genres", "movie_genres", "genre_id"}
	starRel     = relation{"stars", "movie_stars", "star_id"}
	directorRel = relation{"directors", "movie_directors", "director_id"}
)

const movieColumns = "m.id, m.uuid, m.name, m.year, m.duration_min, m.imdb, m.votes, COALESCE(m.description,''), m.price, m.created_at, m.updated_at"

func scanMovie(sc interface{ Scan(...any) error }, m *model.Movie) error {
	return sc.Scan(&m.ID, &m.UUID, &m.Name, &m.Year, &m.DurationMin, &m.IMDb, &m.Votes,
		&m.Description, &m.Price, &m.CreatedAt, &m.UpdatedAt)
}

// Search returns one page of movies matching q and the total match count.
func (r *MovieRepo) Search(ctx context.Context, q MovieQuery) ([]model.Movie, int64, error) {
	where := []string{}
	args := []any{}

	if q.Name != "" {
		where = append(where, "LOWER(m.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Name)+"%")
	}
	if q.Year > 0 {
		where = append(where, "m.year = ?")
		args = append(args, q.Year)
	}
	for _, f := range []struct {
		rel   relation
		value string
	}{{genreRel, q.Genre}, {starRel, q.Star}, {directorRel, q.Director}} {
		if f.value == "" {
			continue
		}
		where = append(where, `EXISTS (SELECT 1 FROM `+f.rel.join+` j JOIN `+f.rel.table+` n ON n.id = j.`+f.rel.fk+`
			WHERE j.movie_id = m.id AND LOWER(n.name) LIKE ?)`)
		args = append(args, "%"+strings.ToLower(f.value)+"%")
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies m WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order, ok := movieSorts[q.Sort]
	if !ok {
		order = "m.id ASC"
	}
	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+movieColumns+" FROM movies m WHERE "+cond+" ORDER BY "+order+", m.id ASC LIMIT ? OFFSET ?",
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Movie, 0, limit)
	for rows.Next() {
		var m model.Movie
		if err := scanMovie(rows, &m); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attachNames(ctx, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID returns a movie with its genres, stars and directors.
func (r *MovieRepo) GetByID(ctx context.Context, id uint64) (*model.Movie, error) {
	var m model.Movie
	if err := scanMovie(r.db.QueryRowContext(ctx, "SELECT "+movieColumns+" FROM movies m WHERE m.id=?", id), &m); err != nil {
		return nil, notFound(err)
	}
	list := []model.Movie{m}
	if err := r.attachNames(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// attachNames fills Genres, Stars and Directors of every movie in place.
func (r *MovieRepo) attachNames(ctx context.Context, movies []model.Movie) error {
	if len(movies) == 0 {
		return nil
	}
	ids := make([]uint64, len(movies))
	idx := make(map[uint64]int, len(movies))
	for i, m := range movies {
		ids[i] = m.ID
		idx[m.ID] = i
		movies[i].Genres, movies[i].Stars, movies[i].Directors = []string{}, []string{}, []string{}
	}
	for _, rel := range []relation{genreRel, starRel, directorRel} {
		rows, err := r.db.QueryContext(ctx,
			`SELECT j.movie_id, n.name FROM `+rel.join+` j JOIN `+rel.table+` n ON n.id = j.`+rel.fk+`
			  WHERE j.movie_id IN (`+placeholders(len(ids))+`) ORDER BY n.name`, idArgs(ids)...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var (
				movieID uint64
				name    string
			)
			if err := rows.Scan(&movieID, &name); err != nil {
				rows.Close()
				return err
			}
			m := &movies[idx[movieID]]
			switch rel {
			case genreRel:
				m.Genres = append(m.Genres, name)
			case starRel:
				m.Stars = append(m.Stars, name)
			default:
				m.Directors = append(m.Directors, name)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a movie and links its names, creating missing genres,
// stars and directors.  A movie with the same name and year yields
// ErrDuplicate.
func (r *MovieRepo) Create(ctx context.Context, m *model.Movie) (*model.Movie, error) {
	var id uint64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if m.UUID == "" {
			m.UUID = uuid.NewString()
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO movies (uuid, name, year, duration_min, imdb, votes, description, price)
			 VALUES (?,?,?,?,?,?,?,?)`,
			m.UUID, m.Name, m.Year, m.DurationMin, m.IMDb, m.Votes, m.Description, m.Price)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		lid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		id = uint64(lid)
		return linkAll(ctx, tx, id, m)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update replaces every editable field of a movie including its names.
// Changing the price never touches existing order snapshots.
func (r *MovieRepo) Update(ctx context.Context, id uint64, m *model.Movie) (*model.Movie, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var exists uint64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM movies WHERE id=? FOR UPDATE", id).Scan(&exists); err != nil {
			return notFound(err)
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE movies SET name=?, year=?, duration_min=?, imdb=?, votes=?, description=?, price=?
			 WHERE id=?`,
			m.Name, m.Year, m.DurationMin, m.IMDb, m.Votes, m.Description, m.Price, id)
		if err != nil {
			if isDuplicate(err) {
				return ErrDuplicate
			}
			return err
		}
		for _, rel := range []relation{genreRel, starRel, directorRel} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+rel.join+" WHERE movie_id=?", id); err != nil {
				return err
			}
		}
		return linkAll(ctx, tx, id, m)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Delete removes a movie.  Movies referenced by purchases or orders are
// kept and ErrConflict is returned.
func (r *MovieRepo) Delete(ctx context.Context, id uint64) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var exists uint64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM movies WHERE id=? FOR UPDATE", id).Scan(&exists); err != nil {
			return notFound(err)
		}
		var refs int
		err := tx.QueryRowContext(ctx, `
			SELECT (SELECT COUNT(*) FROM purchases WHERE movie_id = ?)
			     + (SELECT COUNT(*) FROM order_items WHERE movie_id = ?)`, id, id).Scan(&refs)
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrConflict
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM movies WHERE id=?", id)
		return err
	})
}

func (r *MovieRepo) Genres(ctx context.Context) ([]model.NamedCount, error) {
	return r.namedCounts(ctx, genreRel)
}

func (r *MovieRepo) Stars(ctx context.Context) ([]model.NamedCount, error) {
	return r.namedCounts(ctx, starRel)
}

func (r *MovieRepo) Directors(ctx context.Context) ([]model.NamedCount, error) {
	return r.namedCounts(ctx, directorRel)
}

// namedCounts lists every row of rel.table with its number of movies.
func (r *MovieRepo) namedCounts(ctx context.Context, rel relation) ([]model.NamedCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.name, COUNT(j.movie_id)
		   FROM `+rel.table+` n LEFT JOIN `+rel.join+` j ON j.`+rel.fk+` = n.id
		  GROUP BY n.id, n.name ORDER BY n.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.NamedCount{}
	for rows.Next() {
		var nc model.NamedCount
		if err := rows.Scan(&nc.ID, &nc.Name, &nc.Movies); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func (r *MovieRepo) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func linkAll(ctx context.Context, tx *sql.Tx, movieID uint64, m *model.Movie) error {
	for _, l := range []struct {
		rel   relation
		names []string
	}{{genreRel, m.Genres}, {starRel, m.Stars}, {directorRel, m.Directors}} {
		if err := link(ctx, tx, l.rel, movieID, l.names); err != nil {
			return err
		}
	}
	return nil
}

// link upserts each name into rel.table and attaches it to the movie.
func link(ctx context.Context, tx *sql.Tx, rel relation, movieID uint64, names []string) error {
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		if _, err := tx.ExecContext(ctx, "INSERT IGNORE INTO "+rel.table+" (name) VALUES (?)", name); err != nil {
			return err
		}
		var id uint64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM "+rel.table+" WHERE name=?", name).Scan(&id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT IGNORE INTO "+rel.join+" (movie_id, "+rel.fk+") VALUES (?,?)", movieID, id); err != nil {
			return err
		}
	}
	return nil
}
