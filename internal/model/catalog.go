package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movie mirrors the `movies` table plus the names of its genres, stars
// and directors, which live in join tables.
type Movie struct {
	ID          uint64          `json:"id"`
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Year        int             `json:"year"`
	DurationMin int             `json:"duration_min"`
	IMDb        float64         `json:"imdb"`
	Votes       int             `json:"votes"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Genres      []string        `json:"genres"`
	Stars       []string        `json:"stars"`
	Directors   []string        `json:"directors"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NamedCount is a genre, star or director together with the number of
// movies it is attached to.
type NamedCount struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Movies int    `json:"movies"`
}
