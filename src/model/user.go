package model

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is an account that owns orders and positions.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"size:60;uniqueIndex" json:"username"`
	Email        string `gorm:"size:120" json:"email,omitempty"`
	PasswordHash string `gorm:"size:100" json:"-"`

	// Encrypted broker credentials, decrypted only by the executor loops.
	BrokerAPIKeyHash    string `gorm:"size:255" json:"-"`
	BrokerAPISecretHash string `gorm:"size:255" json:"-"`

	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// SetPassword hashes and stores the password with bcrypt.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares a candidate password against the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}
