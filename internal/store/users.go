package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lifeline/internal/api"
	"github.com/roach88/lifeline/internal/record"
)

// User is a directory entry.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         api.Role
	FirstName    string
	LastName     string
	Phone        string
	BadgeNumber  string
	Organization string
	Profile      *record.Profile
	CreatedAt    time.Time
	Seq          int64
}

// API returns the client view of u.
func (u User) API() api.User {
	return api.User{
		UserID:       u.ID,
		Email:        u.Email,
		UserType:     u.Role,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Phone:        u.Phone,
		BadgeNumber:  u.BadgeNumber,
		Organization: u.Organization,
		MedicalInfo:  u.Profile,
	}
}

// CreateUser inserts u and returns it with its seq. A taken id or email is
// ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	profile, err := marshalProfile(u.Profile)
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	u.Seq = s.seq.Next()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users
		(id, email, password_hash, user_type, first_name, last_name, phone,
		 badge_number, organization, profile, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.FirstName, u.LastName, u.Phone,
		u.BadgeNumber, u.Organization, profile, formatTime(u.CreatedAt), u.Seq,
	)
	if err != nil {
		if isUnique(err) {
			return User{}, fmt.Errorf("create user %s: %w", u.Email, ErrDuplicate)
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

const userColumns = `id, email, password_hash, user_type, first_name, last_name, phone,
	badge_number, organization, profile, created_at, seq`

// UserByEmail looks a user up by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// UserByID looks a user up by id.
func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// UpdateProfile replaces the stored medical profile of a user.
func (s *Store) UpdateProfile(ctx context.Context, userID string, p *record.Profile) error {
	profile, err := marshalProfile(p)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET profile = ? WHERE id = ?`, profile, userID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update profile %s: %w", userID, ErrNotFound)
	}
	return nil
}

// CountUsers returns the number of users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (User, error) {
	var (
		u       User
		role    string
		profile sql.NullString
		created string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.FirstName, &u.LastName, &u.Phone,
		&u.BadgeNumber, &u.Organization, &profile, &created, &u.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = api.Role(role)
	if u.Profile, err = unmarshalProfile(profile); err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return User{}, err
	}
	return u, nil
}
