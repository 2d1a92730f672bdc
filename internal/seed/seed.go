package seed

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"github.com/obaturn/chat-pay-BackEnd/internal/models"
	"github.com/obaturn/chat-pay-BackEnd/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	seedPassword   = "password123"
	openingBalance = "1000.00"
)

var testUsers = []struct {
	Name  string
	Email string
}{
	{"Test User 1", "user1@test.com"},
	{"Test User 2", "user2@test.com"},
	{"Test User 3", "user3@test.com"},
}

func Run() {
	db := store.DB
	var count int64
	if err := db.Model(&models.User{}).Where("email IN ?", []string{"user1@test.com", "user2@test.com", "user3@test.com"}).Count(&count).Error; err != nil {
		logger.Log.Fatal("seed check failed", zap.Error(err))
	}
	if count >= 3 {
		logger.Log.Info("seed already applied, skipping")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Fatal("failed to hash seed password", zap.Error(err))
	}
	hashed := string(hash)

	opening := decimal.RequireFromString(openingBalance)

	err = db.Transaction(func(tx *gorm.DB) error {
		for _, u := range testUsers {
			user := models.User{Name: u.Name, Email: u.Email, Password: hashed, Balance: opening}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Log.Fatal("seed failed", zap.Error(err))
	}
	logger.Log.Info("seeded 3 test users", zap.String("password", seedPassword))
}
