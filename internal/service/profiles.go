package service

import (
	"context"
	"errors"

	"github.com/iliyamo/online-cinema/internal/model"
	"github.com/iliyamo/online-cinema/internal/repository"
)

// Profiles reads and updates the personal data of a user.
type Profiles struct {
	store Store
}

func NewProfiles(store Store) *Profiles { return &Profiles{store: store} }

func (p *Profiles) Get(ctx context.Context, userID uint64) (model.Profile, error) {
	var out model.Profile
	err := p.store.WithinTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ProfileByUser(ctx, userID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return model.Profile{UserID: userID}, nil
	}
	return out, err
}

// Update replaces every profile field and returns the stored profile.
func (p *Profiles) Update(ctx context.Context, in model.Profile) (model.Profile, error) {
	var out model.Profile
	err := p.store.WithinTx(ctx, func(tx repository.Tx) error {
		if err := tx.UpdateProfile(ctx, in); err != nil {
			return err
		}
		var err error
		out, err = tx.ProfileByUser(ctx, in.UserID)
		return err
	})
	return out, err
}
