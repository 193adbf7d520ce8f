package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Address of a customer
type Address struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// IDProof is the identity document presented at account opening
type IDProof struct {
	Type   string `json:"type" validate:"required"`
	Number string `json:"number" validate:"required"`
}

// Nominee receives the account in case of the holder's death
type Nominee struct {
	Name     string `json:"name" validate:"required"`
	Relation string `json:"relation" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

// Customer is the profile referenced by an account. The password hash never leaves the store.
type Customer struct {
	ID           string    `json:"id" db:"id"`
	FullName     string    `json:"full_name" db:"full_name"`
	DOB          string    `json:"dob" db:"dob"`
	Gender       string    `json:"gender" db:"gender"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone" db:"phone"`
	Address      Address   `json:"address" db:"address"`
	IDProof      IDProof   `json:"id_proof" db:"id_proof"`
	Nominee      *Nominee  `json:"nominee,omitempty" db:"nominee"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// CustomerProfile is the customer section of an account creation request
type CustomerProfile struct {
	FullName string   `json:"full_name" validate:"required,min=2"`
	DOB      string   `json:"dob" validate:"required,datetime=2006-01-02"`
	Gender   string   `json:"gender" validate:"required"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	Phone    string   `json:"phone" validate:"required"`
	Address  Address  `json:"address" validate:"required"`
	IDProof  IDProof  `json:"id_proof" validate:"required"`
	Nominee  *Nominee `json:"nominee,omitempty" validate:"omitempty"`
}

// Value implements driver.Valuer for Address
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner for Address
func (a *Address) Scan(value any) error {
	return scanJSON(value, a)
}

// Value implements driver.Valuer for IDProof
func (p IDProof) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for IDProof
func (p *IDProof) Scan(value any) error {
	return scanJSON(value, p)
}

func scanJSON(value any, dst any) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("type assertion to []byte failed")
	}
}
