package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/harvestly/harvestly/internal/models"
)

// MemoryUserRepository keeps accounts in process memory. It enforces the
// same email uniqueness and single-use token rules as the database stores.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.VerificationTokenHash = cloneString(u.VerificationTokenHash)
	c.PasswordResetTokenHash = cloneString(u.PasswordResetTokenHash)
	c.PasswordResetExpires = cloneTime(u.PasswordResetExpires)
	c.LastLogin = cloneTime(u.LastLogin)
	c.PasswordChangedAt = cloneTime(u.PasswordChangedAt)
	c.TokensValidAfter = cloneTime(u.TokensValidAfter)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneUser(r.byID[id]), nil
}

func (r *MemoryUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.User, 0, len(r.byID))
	for _, u := range r.byID {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	users := make([]*models.User, 0)
	for i := offset; i < len(all) && len(users) < limit; i++ {
		users = append(users, cloneUser(all[i]))
	}
	return users, nil
}

func (r *MemoryUserRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byID)), nil
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return nil, models.ErrConflict
	}

	prepareNewUser(user, time.Now().UTC())
	if _, exists := r.byID[user.ID]; exists {
		return nil, models.ErrConflict
	}

	r.byID[user.ID] = cloneUser(user)
	r.byEmail[user.Email] = user.ID
	return cloneUser(user), nil
}

// mutate applies fn to the stored record for id under the write lock
func (r *MemoryUserRepository) mutate(id string, fn func(u *models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	fn(u)
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) UpdateProfile(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
	return r.mutate(id, func(u *models.User) {
		if patch.Empty() {
			return
		}
		patch.Apply(u)
		u.UpdatedAt = time.Now().UTC()
	})
}

func (r *MemoryUserRepository) SetProfilePicture(ctx context.Context, id, url string) (*models.User, error) {
	return r.mutate(id, func(u *models.User) {
		u.ProfilePicture = url
		u.UpdatedAt = time.Now().UTC()
	})
}

func (r *MemoryUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	_, err := r.mutate(id, func(u *models.User) {
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = cloneTime(&at)
		u.TokensValidAfter = cloneTime(&at)
		u.UpdatedAt = at
	})
	return err
}

func (r *MemoryUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.mutate(id, func(u *models.User) {
		u.LastLogin = cloneTime(&at)
	})
	return err
}

func (r *MemoryUserRepository) RevokeTokens(ctx context.Context, id string, at time.Time) error {
	_, err := r.mutate(id, func(u *models.User) {
		u.TokensValidAfter = cloneTime(&at)
		u.UpdatedAt = at
	})
	return err
}

func (r *MemoryUserRepository) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	_, err := r.mutate(id, func(u *models.User) {
		u.PasswordResetTokenHash = cloneString(&tokenHash)
		u.PasswordResetExpires = cloneTime(&expires)
	})
	return err
}

func (r *MemoryUserRepository) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != tokenHash {
			continue
		}
		if !u.HasPendingReset(now) {
			return nil, models.ErrNotFound
		}
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = cloneTime(&now)
		u.TokensValidAfter = cloneTime(&now)
		u.UpdatedAt = now
		u.PasswordResetTokenHash = nil
		u.PasswordResetExpires = nil
		return cloneUser(u), nil
	}
	return nil, models.ErrNotFound
}

func (r *MemoryUserRepository) ConsumeVerification(ctx context.Context, tokenHash string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.VerificationTokenHash != nil && *u.VerificationTokenHash == tokenHash {
			u.IsVerified = true
			u.VerificationTokenHash = nil
			u.UpdatedAt = time.Now().UTC()
			return cloneUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *MemoryUserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cleared int64
	for _, u := range r.byID {
		if u.PasswordResetExpires != nil && !now.Before(*u.PasswordResetExpires) {
			u.PasswordResetTokenHash = nil
			u.PasswordResetExpires = nil
			cleared++
		}
	}
	return cleared, nil
}

// HealthCheck always succeeds for the in-process store
func (r *MemoryUserRepository) HealthCheck(ctx context.Context) error {
	return nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(r.byEmail, u.Email)
	delete(r.byID, id)
	return nil
}
