package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"accounts/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountStore struct{ s *Store }

func (s *Store) Accounts() *AccountStore { return &AccountStore{s: s} }

type SortColumn string

const (
	SortCreatedAt SortColumn = "created_at"
	SortEmail     SortColumn = "email"
	SortUsername  SortColumn = "username"
)

// AccountFilter narrows List. Zero values disable a filter.
type AccountFilter struct {
	Search   string
	Role     domain.Role
	IsActive *bool
	Sort     SortColumn
	Desc     bool
	Offset   int
	Limit    int
}

func (a *AccountStore) Create(ctx context.Context, acct *domain.Account) error {
	db, cancel := a.s.conn(ctx)
	defer cancel()
	return mapError(db.Create(acct).Error)
}

func (a *AccountStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return a.first(ctx, "id = ?", id)
}

func (a *AccountStore) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return a.first(ctx, "email = ?", email)
}

func (a *AccountStore) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return a.first(ctx, "username = ?", username)
}

func (a *AccountStore) first(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	db, cancel := a.s.conn(ctx)
	defer cancel()
	var acct domain.Account
	if err := db.Where(query, args...).First(&acct).Error; err != nil {
		return nil, mapError(err)
	}
	return &acct, nil
}

// EnsureUnique returns domain.ErrConflict when another account already uses
// email or username. Empty values are not checked; exclude skips one account.
func (a *AccountStore) EnsureUnique(ctx context.Context, email, username string, exclude uuid.UUID) error {
	db, cancel := a.s.conn(ctx)
	defer cancel()

	q := db.Model(&domain.Account{})
	switch {
	case email != "" && username != "":
		q = q.Where("(email = ? OR username = ?)", email, username)
	case email != "":
		q = q.Where("email = ?", email)
	case username != "":
		q = q.Where("username = ?", username)
	default:
		return nil
	}
	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return mapError(err)
	}
	if n > 0 {
		return domain.ErrConflict
	}
	return nil
}

// RecordFailedLogin increments the attempt counter in a single statement and,
// when the new count reaches maxAttempts, sets lock_until in the same
// statement. It returns the row as it stands afterwards.
func (a *AccountStore) RecordFailedLogin(ctx context.Context, email string, maxAttempts int, lockUntil, now time.Time) (*domain.Account, error) {
	db, cancel := a.s.conn(ctx)
	defer cancel()

	res := db.Model(&domain.Account{}).
		Where("email = ?", email).
		Updates(map[string]any{
			"login_attempts": gorm.Expr("login_attempts + 1"),
			"lock_until":     gorm.Expr("CASE WHEN login_attempts + 1 >= ? THEN ? ELSE lock_until END", maxAttempts, lockUntil),
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}

	var acct domain.Account
	if err := db.Where("email = ?", email).First(&acct).Error; err != nil {
		return nil, mapError(err)
	}
	return &acct, nil
}

func (a *AccountStore) RecordSuccessfulLogin(ctx context.Context, email string, now time.Time) error {
	return a.updateWhere(ctx, "email = ?", email, map[string]any{
		"login_attempts": 0,
		"lock_until":     nil,
		"last_login_at":  now,
		"updated_at":     now,
	})
}

// ClearExpiredLock zeroes the counter and the lock for email, but only when
// its lock has already expired at now. It reports whether a row changed.
func (a *AccountStore) ClearExpiredLock(ctx context.Context, email string, now time.Time) (bool, error) {
	db, cancel := a.s.conn(ctx)
	defer cancel()
	res := db.Model(&domain.Account{}).
		Where("email = ? AND lock_until IS NOT NULL AND lock_until <= ?", email, now).
		Updates(map[string]any{"login_attempts": 0, "lock_until": nil, "updated_at": now})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (a *AccountStore) Unlock(ctx context.Context, id uuid.UUID, now time.Time) error {
	return a.updateByID(ctx, id, map[string]any{"login_attempts": 0, "lock_until": nil, "updated_at": now})
}

// SetResetToken stores the digest of a freshly issued reset token,
// replacing any previous one.
func (a *AccountStore) SetResetToken(ctx context.Context, id uuid.UUID, tokenDigest string, expires, now time.Time) error {
	return a.updateByID(ctx, id, map[string]any{
		"password_reset_token":   tokenDigest,
		"password_reset_expires": expires,
		"updated_at":             now,
	})
}

// ConsumeResetToken swaps in passwordHash for the account owning an unexpired
// tokenDigest and clears the token in the same statement. A token can be
// consumed once; every other case is domain.ErrInvalidOrExpiredToken.
func (a *AccountStore) ConsumeResetToken(ctx context.Context, tokenDigest, passwordHash string, now time.Time) (uuid.UUID, error) {
	db, cancel := a.s.conn(ctx)
	defer cancel()

	var acct domain.Account
	err := db.Select("id").
		Where("password_reset_token = ? AND password_reset_expires > ?", tokenDigest, now).
		First(&acct).Error
	if err != nil {
		err = mapError(err)
		if errors.Is(err, domain.ErrNotFound) {
			return uuid.Nil, domain.ErrInvalidOrExpiredToken
		}
		return uuid.Nil, err
	}

	res := db.Model(&domain.Account{}).
		Where("id = ? AND password_reset_token = ? AND password_reset_expires > ?", acct.ID, tokenDigest, now).
		Updates(map[string]any{
			"password_hash":          passwordHash,
			"password_reset_token":   nil,
			"password_reset_expires": nil,
			"updated_at":             now,
		})
	if res.Error != nil {
		return uuid.Nil, mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return uuid.Nil, domain.ErrInvalidOrExpiredToken
	}
	return acct.ID, nil
}

func (a *AccountStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, now time.Time) error {
	return a.updateByID(ctx, id, map[string]any{"password_hash": passwordHash, "updated_at": now})
}

// UpdateProfile changes email and/or username; nil leaves a field as is.
func (a *AccountStore) UpdateProfile(ctx context.Context, id uuid.UUID, email, username *string, now time.Time) error {
	fields := map[string]any{"updated_at": now}
	if email != nil {
		fields["email"] = *email
	}
	if username != nil {
		fields["username"] = *username
	}
	return a.updateByID(ctx, id, fields)
}

func (a *AccountStore) SetActive(ctx context.Context, id uuid.UUID, active bool, now time.Time) error {
	return a.updateByID(ctx, id, map[string]any{"is_active": active, "updated_at": now})
}

func (a *AccountStore) SetRole(ctx context.Context, id uuid.UUID, role domain.Role, now time.Time) error {
	return a.updateByID(ctx, id, map[string]any{"role": role, "updated_at": now})
}

func (a *AccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	db, cancel := a.s.conn(ctx)
	defer cancel()
	res := db.Where("id = ?", id).Delete(&domain.Account{})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (a *AccountStore) List(ctx context.Context, f AccountFilter) ([]domain.Account, int64, error) {
	db, cancel := a.s.conn(ctx)
	defer cancel()

	filtered := func() *gorm.DB {
		q := db.Model(&domain.Account{})
		if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
			like := "%" + escapeLike(s) + "%"
			q = q.Where(`(LOWER(email) LIKE ? ESCAPE '\' OR LOWER(username) LIKE ? ESCAPE '\')`, like, like)
		}
		if f.Role != "" {
			q = q.Where("role = ?", f.Role)
		}
		if f.IsActive != nil {
			q = q.Where("is_active = ?", *f.IsActive)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}

	sort := f.Sort
	switch sort {
	case SortCreatedAt, SortEmail, SortUsername:
	default:
		sort = SortCreatedAt
	}
	var out []domain.Account
	err := filtered().
		Order(clause.OrderByColumn{Column: clause.Column{Name: string(sort)}, Desc: f.Desc}).
		Order("id").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, mapError(err)
	}
	return out, total, nil
}

// SweepExpired clears lockouts and reset tokens whose windows ended at or
// before now.
func (a *AccountStore) SweepExpired(ctx context.Context, now time.Time) (locks, resets int64, err error) {
	db, cancel := a.s.conn(ctx)
	defer cancel()

	res := db.Model(&domain.Account{}).
		Where("lock_until IS NOT NULL AND lock_until <= ?", now).
		Updates(map[string]any{"login_attempts": 0, "lock_until": nil, "updated_at": now})
	if res.Error != nil {
		return 0, 0, mapError(res.Error)
	}
	locks = res.RowsAffected

	res = db.Model(&domain.Account{}).
		Where("password_reset_expires IS NOT NULL AND password_reset_expires <= ?", now).
		Updates(map[string]any{"password_reset_token": nil, "password_reset_expires": nil, "updated_at": now})
	if res.Error != nil {
		return locks, 0, mapError(res.Error)
	}
	return locks, res.RowsAffected, nil
}

func (a *AccountStore) updateByID(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return a.updateWhere(ctx, "id = ?", id, fields)
}

func (a *AccountStore) updateWhere(ctx context.Context, query string, arg any, fields map[string]any) error {
	db, cancel := a.s.conn(ctx)
	defer cancel()
	res := db.Model(&domain.Account{}).Where(query, arg).Updates(fields)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
