package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	for _, bad := range []string{"", "approver", "approver_level_3", "admin", "staff approver_level_1", "  approver_level_1 ", "Approver_Level_1", "FINANCE"} {
		_, err := ParseRole(bad)
		assert.Error(t, err, bad)
	}
}

func TestRolePredicates(t *testing.T) {
	tests := []struct {
		role     Role
		approver bool
		level    int
		create   bool
		seesAll  bool
	}{
		{RoleStaff, false, 0, true, false},
		{RoleApproverLevel1, true, 1, false, true},
		{RoleApproverLevel2, true, 2, false, true},
		{RoleFinance, false, 0, false, true},
		{Role("approver"), false, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.approver, tt.role.IsApprover())
			level, ok := tt.role.ApprovalLevel()
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.level != 0, ok)
			assert.Equal(t, tt.create, tt.role.CanCreateRequests())
			assert.Equal(t, tt.seesAll, tt.role.SeesAllRequests())
		})
	}
}

func TestActorCanSee(t *testing.T) {
	staff := Actor{ID: "u1", Role: RoleStaff}
	assert.True(t, staff.CanSee("u1"))
	assert.False(t, staff.CanSee("u2"))

	assert.True(t, Actor{ID: "f", Role: RoleFinance}.CanSee("u2"))
	assert.True(t, Actor{ID: "a", Role: RoleApproverLevel2}.CanSee("u2"))
	assert.False(t, Actor{ID: "u1", Role: Role("bogus")}.CanSee("u1"))
}

func TestJWTResolver(t *testing.T) {
	secret := []byte("test-secret")
	resolver := NewJWTResolver(secret)
	ctx := context.Background()

	token, err := IssueToken(secret, Actor{ID: "user-1", Role: RoleApproverLevel2}, time.Hour)
	require.NoError(t, err)

	actor, err := resolver.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "user-1", Role: RoleApproverLevel2}, actor)

	t.Run("wrong secret", func(t *testing.T) {
		other, err := IssueToken([]byte("other"), Actor{ID: "user-1", Role: RoleStaff}, time.Hour)
		require.NoError(t, err)
		_, err = resolver.Resolve(ctx, other)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x", "role": "approver"}).SignedString(secret)
		require.NoError(t, err)
		_, err = resolver.Resolve(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "staff"}).SignedString(secret)
		require.NoError(t, err)
		_, err = resolver.Resolve(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "x", "role": "staff", "exp": time.Now().Add(-time.Minute).Unix(),
		}).SignedString(secret)
		require.NoError(t, err)
		_, err = resolver.Resolve(ctx, raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestActorContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithActor(context.Background(), Actor{ID: "a", Role: RoleFinance})
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, RoleFinance, got.Role)
}
