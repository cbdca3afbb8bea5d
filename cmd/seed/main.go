// Command seed loads the movie catalog from a YAML file.
//
//	seed -file catalog.yaml
//
// Movies that already exist are skipped, so the command can be re-run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/online-cinema/internal/config"
	"github.com/iliyamo/online-cinema/internal/database"
	"github.com/iliyamo/online-cinema/internal/logger"
	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
)

type catalogFile struct {
	Movies []movieEntry `yaml:"movies"`
}

type movieEntry struct {
	Name        string   `yaml:"name"`
	Year        int      `yaml:"year"`
	DurationMin int      `yaml:"duration_min"`
	IMDb        float64  `yaml:"imdb"`
	Votes       int      `yaml:"votes"`
	Description string   `yaml:"description"`
	Price       string   `yaml:"price"`
	Genres      []string `yaml:"genres"`
	Stars       []string `yaml:"stars"`
	Directors   []string `yaml:"directors"`
}

// movieCreator is the part of the movie repository the seeder needs.
type movieCreator interface {
	Create(ctx context.Context, m *model.Movie) (*model.Movie, error)
}

func main() {
	file := flag.String("file", "cmd/seed/catalog.yaml", "YAML catalog to load")
	flag.Parse()

	cfg := config.Load()
	lg, err := logger.New(cfg.IsProd())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	f, err := os.Open(*file)
	if err != nil {
		lg.Fatal("open catalog", zap.Error(err))
	}
	movies, err := parseCatalog(f)
	_ = f.Close()
	if err != nil {
		lg.Fatal("parse catalog", zap.String("file", *file), zap.Error(err))
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		lg.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		lg.Fatal("migrations failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	created, skipped, err := seed(ctx, repository.NewMovieRepo(db), movies, lg)
	if err != nil {
		lg.Fatal("seed failed", zap.Error(err))
	}
	lg.Info("catalog seeded", zap.Int("created", created), zap.Int("skipped", skipped))
}

// parseCatalog decodes and checks the YAML catalog.
func parseCatalog(r io.Reader) ([]model.Movie, error) {
	var cf catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil {
		return nil, err
	}
	out := make([]model.Movie, 0, len(cf.Movies))
	for i, e := range cf.Movies {
		name := strings.TrimSpace(e.Name)
		if name == "" || e.Year < 1888 {
			return nil, fmt.Errorf("movie %d: name and year are required", i+1)
		}
		price, err := decimal.NewFromString(e.Price)
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("movie %q: invalid price %q", name, e.Price)
		}
		out = append(out, model.Movie{
			Name:        name,
			Year:        e.Year,
			DurationMin: e.DurationMin,
			IMDb:        e.IMDb,
			Votes:       e.Votes,
			Description: e.Description,
			Price:       price.Round(2),
			Genres:      e.Genres,
			Stars:       e.Stars,
			Directors:   e.Directors,
		})
	}
	return out, nil
}

func seed(ctx context.Context, repo movieCreator, movies []model.Movie, lg *zap.Logger) (created, skipped int, err error) {
	for i := range movies {
		m := movies[i]
		if _, err := repo.Create(ctx, &m); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				skipped++
				continue
			}
			return created, skipped, fmt.Errorf("create %q: %w", m.Name, err)
		}
		lg.Debug("movie created", zap.String("name", m.Name), zap.Int("year", m.Year))
		created++
	}
	return created, skipped, nil
}
