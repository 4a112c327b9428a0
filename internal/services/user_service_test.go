package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/harvestly/harvestly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func userRepoWith(users ...*models.User) *MockUserRepository {
	byID := make(map[string]*models.User)
	for _, u := range users {
		byID[u.ID] = u
	}
	return &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if u, ok := byID[id]; ok {
				c := *u
				return &c, nil
			}
			return nil, models.ErrNotFound
		},
		UpdateProfileFunc: func(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
			u, ok := byID[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			patch.Apply(u)
			c := *u
			return &c, nil
		},
		SetProfilePictureFunc: func(ctx context.Context, id, url string) (*models.User, error) {
			u, ok := byID[id]
			if !ok {
				return nil, models.ErrNotFound
			}
			u.ProfilePicture = url
			c := *u
			return &c, nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			if _, ok := byID[id]; !ok {
				return models.ErrNotFound
			}
			delete(byID, id)
			return nil
		},
	}
}

func selfIdentity(id string) *models.Identity {
	return &models.Identity{UserID: id, Email: id + "@farm.test", Role: models.RoleUser}
}

func adminIdentity() *models.Identity {
	return &models.Identity{UserID: "admin", Email: "admin@farm.test", Role: models.RoleAdmin}
}

func TestUserService_ListUsers(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{name: "defaults", limit: 0, offset: 0, wantLimit: DefaultListLimit, wantOffset: 0},
		{name: "capped", limit: 1000, offset: 10, wantLimit: MaxListLimit, wantOffset: 10},
		{name: "negative offset", limit: 5, offset: -3, wantLimit: 5, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit, gotOffset int
			repo := &MockUserRepository{
				ListFunc: func(ctx context.Context, limit, offset int) ([]*models.User, error) {
					gotLimit, gotOffset = limit, offset
					return []*models.User{NewTestUser("u1", "a@farm.test", "")}, nil
				},
				CountFunc: func(ctx context.Context) (int64, error) { return 42, nil },
			}
			svc := NewUserService(repo, &MockTokenIssuer{}, nil, testLogger, nil)

			users, total, err := svc.ListUsers(context.Background(), tt.limit, tt.offset)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLimit, gotLimit)
			assert.Equal(t, tt.wantOffset, gotOffset)
			assert.Equal(t, int64(42), total)
			require.Len(t, users, 1)
			assert.Equal(t, "u1", users[0].ID)
		})
	}
}

func TestUserService_ListUsers_StoreError(t *testing.T) {
	repo := &MockUserRepository{
		ListFunc: func(ctx context.Context, limit, offset int) ([]*models.User, error) {
			return nil, errors.New("cursor closed")
		},
	}
	svc := NewUserService(repo, &MockTokenIssuer{}, nil, testLogger, nil)

	_, _, err := svc.ListUsers(context.Background(), 10, 0)
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestUserService_GetUser(t *testing.T) {
	svc := NewUserService(userRepoWith(NewTestUser("u1", "a@farm.test", "")), &MockTokenIssuer{}, nil, testLogger, nil)

	user, err := svc.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@farm.test", user.Email)

	_, err = svc.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserService_UpdateProfile(t *testing.T) {
	tests := []struct {
		name     string
		actor    *models.Identity
		target   string
		patch    models.UserPatch
		wantErr  error
		wantRole string
		wantName string
	}{
		{
			name:     "self update",
			actor:    selfIdentity("u1"),
			target:   "u1",
			patch:    models.UserPatch{FirstName: strPtr("Meera")},
			wantRole: models.RoleUser,
			wantName: "Meera",
		},
		{
			name:     "self role escalation ignored",
			actor:    selfIdentity("u1"),
			target:   "u1",
			patch:    models.UserPatch{Role: strPtr(models.RoleAdmin)},
			wantRole: models.RoleUser,
			wantName: "Asha",
		},
		{
			name:     "admin changes role",
			actor:    adminIdentity(),
			target:   "u1",
			patch:    models.UserPatch{Role: strPtr(models.RoleAdmin)},
			wantRole: models.RoleAdmin,
			wantName: "Asha",
		},
		{
			name:    "other user forbidden",
			actor:   selfIdentity("u2"),
			target:  "u1",
			patch:   models.UserPatch{FirstName: strPtr("Mallory")},
			wantErr: models.ErrForbidden,
		},
		{
			name:    "no identity forbidden",
			target:  "u1",
			wantErr: models.ErrForbidden,
		},
		{
			name:    "admin on missing user",
			actor:   adminIdentity(),
			target:  "ghost",
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := userRepoWith(NewTestUser("u1", "a@farm.test", ""))
			svc := NewUserService(repo, &MockTokenIssuer{}, nil, testLogger, nil)

			resp, err := svc.UpdateProfile(context.Background(), tt.actor, tt.target, tt.patch)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, resp.Role)
			assert.Equal(t, tt.wantName, resp.FirstName)
			assert.Equal(t, "Rao", resp.LastName, "absent fields are untouched")
		})
	}
}

func TestUserService_UpdateProfile_SendsOnlyThePatch(t *testing.T) {
	repo := userRepoWith(NewTestUser("u1", "a@farm.test", ""))
	var gotID string
	var gotPatch models.UserPatch
	repo.UpdateProfileFunc = func(ctx context.Context, id string, patch models.UserPatch) (*models.User, error) {
		gotID, gotPatch = id, patch
		return NewTestUser(id, "a@farm.test", ""), nil
	}
	repo.GetByIDFunc = func(ctx context.Context, id string) (*models.User, error) {
		t.Fatal("profile update must not read-modify-write the record")
		return nil, nil
	}
	svc := NewUserService(repo, &MockTokenIssuer{}, nil, testLogger, nil)

	_, err := svc.UpdateProfile(context.Background(), selfIdentity("u1"), "u1", models.UserPatch{State: strPtr("Kerala"), Role: strPtr(models.RoleAdmin)})
	require.NoError(t, err)

	assert.Equal(t, "u1", gotID)
	assert.Equal(t, models.UserPatch{State: strPtr("Kerala")}, gotPatch)
}

func TestUserService_ChangePassword(t *testing.T) {
	fixed := time.Date(2026, 4, 2, 12, 0, 0, 400_000_000, time.UTC)

	t.Run("success", func(t *testing.T) {
		repo := userRepoWith(NewTestUser("u1", "a@farm.test", "password123"))
		var gotHash string
		var gotAt time.Time
		repo.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, at time.Time) error {
			gotHash, gotAt = passwordHash, at
			return nil
		}
		svc := NewUserService(repo, &MockTokenIssuer{}, nil, testLogger, nil)
		svc.now = func() time.Time { return fixed }

		token, err := svc.ChangePassword(context.Background(), selfIdentity("u1"), "u1", "password123", "newpassword1")
		require.NoError(t, err)

		assert.Equal(t, "token-for-u1", token)
		assert.Equal(t, fixed.Truncate(time.Second), gotAt)
		assert.True(t, (&models.User{PasswordHash: gotHash}).CheckPassword("newpassword1"))
	})

	t.Run("wrong current password", func(t *testing.T) {
		repo := userRepoWith(NewTestUser("u1", "a@farm.test", "password123"))
		repo.UpdatePasswordFunc = func(ctx context.Context, id, passwordHash string, at time.Time) error {
			t.Fatal("password must not be written")
			return nil
		}
		svc := NewUserService(repo, &MockTokenIssuer{}, nil, testLogger, nil)

		_, err := svc.ChangePassword(context.Background(), selfIdentity("u1"), "u1", "password124", "newpassword1")
		assert.ErrorIs(t, err, models.ErrWrongPassword)
	})

	t.Run("admin cannot change another user's password", func(t *testing.T) {
		svc := NewUserService(userRepoWith(NewTestUser("u1", "a@farm.test", "password123")), &MockTokenIssuer{}, nil, testLogger, nil)

		_, err := svc.ChangePassword(context.Background(), adminIdentity(), "u1", "password123", "newpassword1")
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("new password too short", func(t *testing.T) {
		svc := NewUserService(userRepoWith(NewTestUser("u1", "a@farm.test", "password123")), &MockTokenIssuer{}, nil, testLogger, nil)

		_, err := svc.ChangePassword(context.Background(), selfIdentity("u1"), "u1", "password123", "short")
		assert.ErrorIs(t, err, models.ErrBadRequest)
	})
}

func TestUserService_DeleteUser(t *testing.T) {
	svc := NewUserService(userRepoWith(NewTestUser("u1", "a@farm.test", "")), &MockTokenIssuer{}, nil, testLogger, nil)
	ctx := context.Background()

	require.NoError(t, svc.DeleteUser(ctx, adminIdentity(), "u1"))
	assert.ErrorIs(t, svc.DeleteUser(ctx, adminIdentity(), "u1"), models.ErrNotFound)
}

func TestUserService_UploadProfilePicture(t *testing.T) {
	t.Run("uploads and records url", func(t *testing.T) {
		repo := userRepoWith(NewTestUser("u1", "a@farm.test", ""))
		var body string
		uploader := &MockImageUploader{
			UploadImageFunc: func(ctx context.Context, file io.Reader, publicID string) (string, error) {
				b, _ := io.ReadAll(file)
				body = string(b)
				return "https://img.test/" + publicID + ".png", nil
			},
		}
		svc := NewUserService(repo, &MockTokenIssuer{}, uploader, testLogger, nil)

		resp, err := svc.UploadProfilePicture(context.Background(), selfIdentity("u1"), "u1", strings.NewReader("png-bytes"))
		require.NoError(t, err)

		assert.Equal(t, "png-bytes", body)
		assert.Equal(t, "https://img.test/user_u1.png", resp.ProfilePicture)
	})

	t.Run("uploader disabled", func(t *testing.T) {
		svc := NewUserService(userRepoWith(), &MockTokenIssuer{}, nil, testLogger, nil)

		_, err := svc.UploadProfilePicture(context.Background(), selfIdentity("u1"), "u1", strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	})

	t.Run("other user forbidden", func(t *testing.T) {
		svc := NewUserService(userRepoWith(NewTestUser("u1", "a@farm.test", "")), &MockTokenIssuer{}, &MockImageUploader{}, testLogger, nil)

		_, err := svc.UploadProfilePicture(context.Background(), selfIdentity("u2"), "u1", strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("upload failure", func(t *testing.T) {
		uploader := &MockImageUploader{
			UploadImageFunc: func(ctx context.Context, file io.Reader, publicID string) (string, error) {
				return "", errors.New("cloudinary: 500")
			},
		}
		svc := NewUserService(userRepoWith(NewTestUser("u1", "a@farm.test", "")), &MockTokenIssuer{}, uploader, testLogger, nil)

		_, err := svc.UploadProfilePicture(context.Background(), selfIdentity("u1"), "u1", strings.NewReader("x"))
		assert.ErrorIs(t, err, models.ErrServiceUnavailable)
	})
}
