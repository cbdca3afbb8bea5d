package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/online-cinema/internal/model"
)

// UserTx groups the users/profiles statements.
type UserTx interface {
	CreateUser(ctx context.Context, email, passwordHash, role string) (model.User, error)
	UserByID(ctx context.Context, id uint64) (model.User, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	SetUserActive(ctx context.Context, id uint64, active bool) error
	SetUserPassword(ctx context.Context, id uint64, passwordHash string) error
	SetUserRole(ctx context.Context, id uint64, role string) error
	CreateProfile(ctx context.Context, userID uint64) error
	ProfileByUser(ctx context.Context, userID uint64) (model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) error
}

const userColumns = "id,email,password_hash,role,is_active,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

// CreateUser inserts an inactive user and returns it.  The email is
// normalized; a taken email yields ErrEmailExists.
func (t *sqlTx) CreateUser(ctx context.Context, email, passwordHash, role string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, is_active) VALUES (?,?,?,0)",
		email, passwordHash, role)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return t.UserByID(ctx, uint64(id))
}

// UserByID fetches a user by id.
func (t *sqlTx) UserByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(t.tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UserByEmail fetches a user by normalized email.
func (t *sqlTx) UserByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(t.tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

func (t *sqlTx) SetUserActive(ctx context.Context, id uint64, active bool) error {
	return t.updateUser(ctx, "UPDATE users SET is_active=? WHERE id=?", active, id)
}

func (t *sqlTx) SetUserPassword(ctx context.Context, id uint64, passwordHash string) error {
	return t.updateUser(ctx, "UPDATE users SET password_hash=? WHERE id=?", passwordHash, id)
}

func (t *sqlTx) SetUserRole(ctx context.Context, id uint64, role string) error {
	return t.updateUser(ctx, "UPDATE users SET role=? WHERE id=?", role, id)
}

// updateUser runs a single-row update; a missing user is ErrNotFound.
// MySQL reports 0 affected rows when the value is unchanged, so the
// existence check is a separate read.
func (t *sqlTx) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = t.UserByID(ctx, args[len(args)-1].(uint64))
	return err
}

// CreateProfile inserts the empty profile row of a new user.
func (t *sqlTx) CreateProfile(ctx context.Context, userID uint64) error {
	_, err := t.tx.ExecContext(ctx, "INSERT IGNORE INTO profiles (user_id) VALUES (?)", userID)
	return err
}

func (t *sqlTx) ProfileByUser(ctx context.Context, userID uint64) (model.Profile, error) {
	var (
		p      model.Profile
		gender sql.NullString
		dob    sql.NullTime
		info   sql.NullString
	)
	err := t.tx.QueryRowContext(ctx,
		"SELECT user_id, first_name, last_name, gender, date_of_birth, info, updated_at FROM profiles WHERE user_id=?",
		userID).Scan(&p.UserID, &p.FirstName, &p.LastName, &gender, &dob, &info, &p.UpdatedAt)
	if err != nil {
		return model.Profile{}, notFound(err)
	}
	p.Gender = gender.String
	p.Info = info.String
	if dob.Valid {
		d := dob.Time
		p.DateOfBirth = &d
	}
	return p, nil
}

func (t *sqlTx) UpdateProfile(ctx context.Context, p model.Profile) error {
	var gender, dob any
	if p.Gender != "" {
		gender = p.Gender
	}
	if p.DateOfBirth != nil {
		dob = p.DateOfBirth.Format("2006-01-02")
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, first_name, last_name, gender, date_of_birth, info)
		 VALUES (?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE first_name=VALUES(first_name), last_name=VALUES(last_name),
		   gender=VALUES(gender), date_of_birth=VALUES(date_of_birth), info=VALUES(info)`,
		p.UserID, p.FirstName, p.LastName, gender, dob, p.Info)
	return err
}
