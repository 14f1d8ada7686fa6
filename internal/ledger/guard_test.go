package ledger

import (
	"errors"
	"testing"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestAssertOwns(t *testing.T) {
	acc := &domain.Account{AccountID: "acc-1", UserID: "alice"}

	assert.NoError(t, assertOwns(acc, "alice"))
	assert.True(t, errors.Is(assertOwns(acc, "bob"), domain.ErrUnauthorized))
	assert.True(t, errors.Is(assertOwns(acc, ""), domain.ErrUnauthorized))
	assert.True(t, errors.Is(assertOwns(&domain.Account{AccountID: "orphan"}, ""), domain.ErrUnauthorized),
		"an empty caller never matches an empty owner")
}

func TestFilterMatch(t *testing.T) {
	tx := &domain.Transaction{Category: "Food"}
	assert.True(t, Filter{}.Match(tx))
	assert.True(t, Filter{Category: "Food"}.Match(tx))
	assert.False(t, Filter{Category: "food"}.Match(tx))
}
