package terminal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"poscore/internal/constants"
	"poscore/internal/model"
)

func TestGuard_RejectsUnexpectedState(t *testing.T) {
	err := guard(constants.TerminalStateIdle, constants.TerminalStateOpened)
	assert.Error(t, err)
}

func TestGuard_AcceptsExpectedState(t *testing.T) {
	err := guard(constants.TerminalStateOpened, constants.TerminalStateOpened)
	assert.NoError(t, err)
}

func TestTheoreticalCash_CombinesAllFiveComponents(t *testing.T) {
	session := model.TerminalSession{
		InitialAmount:    decimal.NewFromInt(10000),
		CashInTotal:      decimal.NewFromInt(2000),
		CashOutTotal:     decimal.NewFromInt(500),
		CashSalesTotal:   decimal.NewFromInt(3000),
		CashRefundsTotal: decimal.NewFromInt(300),
	}
	assert.True(t, theoreticalCash(session).Equal(decimal.NewFromInt(14200)))
}

func TestTheoreticalCash_ZeroMovementsReturnsInitialAmount(t *testing.T) {
	session := model.TerminalSession{InitialAmount: decimal.NewFromInt(5000)}
	assert.True(t, theoreticalCash(session).Equal(decimal.NewFromInt(5000)))
}
