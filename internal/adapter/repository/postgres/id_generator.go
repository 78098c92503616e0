package postgres

import (
	"crypto/rand"
	"math/big"

	"github.com/oklog/ulid/v2"

	"github.com/iho/gobank/internal/domain"
)

// ULIDGenerator generates ULID-based IDs.
type ULIDGenerator struct{}

// NewULIDGenerator creates a new ULIDGenerator.
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{}
}

// Generate generates a new ULID.
func (g *ULIDGenerator) Generate() string {
	return ulid.Make().String()
}

// AccountNumberGenerator draws random account numbers of
// domain.AccountNumberLength digits. The first digit is never zero.
type AccountNumberGenerator struct{}

// NewAccountNumberGenerator creates a new AccountNumberGenerator.
func NewAccountNumberGenerator() *AccountNumberGenerator {
	return &AccountNumberGenerator{}
}

var (
	numberFloor = new(big.Int).Exp(big.NewInt(10), big.NewInt(domain.AccountNumberLength-1), nil)
	numberSpan  = new(big.Int).Sub(new(big.Int).Mul(numberFloor, big.NewInt(10)), numberFloor)
)

// Generate returns a fresh candidate number. Uniqueness is checked by the
// caller against storage.
func (g *AccountNumberGenerator) Generate() string {
	n, err := rand.Int(rand.Reader, numberSpan)
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(err)
	}
	return n.Add(n, numberFloor).String()
}
