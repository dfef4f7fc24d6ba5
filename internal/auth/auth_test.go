package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/service-logbook/internal/models"
)

func TestNewService(t *testing.T) {
	service, err := NewService()
	assert.NoError(t, err)
	assert.NotNil(t, service)
	assert.NotEmpty(t, service.jwtSecret)
	assert.Equal(t, 24*time.Hour, service.tokenExp)
}

func TestService_HashAndCheckPassword(t *testing.T) {
	service, _ := NewService()

	password := "testpassword123"
	hash, err := service.HashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.True(t, service.CheckPassword(password, hash))
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_GenerateAndValidateToken(t *testing.T) {
	service, _ := NewService()

	user := &models.User{
		ID:       primitive.NewObjectID(),
		Username: "testmechanic",
		Role:     models.RoleMechanic,
	}

	token, err := service.GenerateToken(user)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, "testmechanic", claims.Username)
	assert.Equal(t, models.RoleMechanic, claims.Role)
}

func TestService_ValidateToken_Invalid(t *testing.T) {
	service, _ := NewService()

	_, err := service.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Validators(t *testing.T) {
	service, _ := NewService()

	assert.Error(t, service.ValidatePassword("short"))
	assert.NoError(t, service.ValidatePassword("long-enough-password"))

	assert.Error(t, service.ValidateEmail("not-an-email"))
	assert.NoError(t, service.ValidateEmail("mechanic@example.com"))

	assert.Error(t, service.ValidateUsername("ab"))
	assert.NoError(t, service.ValidateUsername("mechanic"))
}
