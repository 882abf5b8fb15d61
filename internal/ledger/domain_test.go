package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNormalBalance(t *testing.T) {
	assert.Equal(t, SideDebit, AccountTypeAsset.NormalBalance())
	assert.Equal(t, SideDebit, AccountTypeExpense.NormalBalance())
	assert.Equal(t, SideCredit, AccountTypeLiability.NormalBalance())
	assert.Equal(t, SideCredit, AccountTypeEquity.NormalBalance())
	assert.Equal(t, SideCredit, AccountTypeRevenue.NormalBalance())
}

func TestValidateAndBalanceAccepts(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("100")},
		{AccountID: 2, Credit: dec("100")},
	}}

	totals, err := input.ValidateAndBalance()
	require.NoError(t, err)
	assert.True(t, totals.Debit.Equal(dec("100")))
	assert.True(t, totals.Credit.Equal(dec("100")))
}

func TestValidateAndBalanceSplitLines(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("110.00")},
		{AccountID: 2, Credit: dec("10.00")},
		{AccountID: 3, Credit: dec("100.00")},
	}}

	totals, err := input.ValidateAndBalance()
	require.NoError(t, err)
	assert.True(t, totals.Debit.Equal(totals.Credit))
}

func TestValidateAndBalanceUnbalanced(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("100")},
		{AccountID: 2, Credit: dec("99")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnbalanced))

	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, "100.00", coded.Meta["total_debit"])
	assert.Equal(t, "99.00", coded.Meta["total_credit"])
}

func TestValidateAndBalanceWithinTolerance(t *testing.T) {
	// A one-cent gap is rounding noise, not a mismatch.
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("33.33")},
		{AccountID: 2, Debit: dec("33.33")},
		{AccountID: 3, Debit: dec("33.33")},
		{AccountID: 4, Credit: dec("100.00")},
	}}

	_, err := input.ValidateAndBalance()
	require.NoError(t, err)

	input.Lines[0].Debit = dec("33.32")
	_, err = input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnbalanced))
}

func TestValidateAndBalanceBothSides(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("50"), Credit: dec("50")},
		{AccountID: 2, Credit: dec("0")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))
}

func TestValidateAndBalanceEmptyLine(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("100")},
		{AccountID: 2},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))

	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 1, coded.Meta["line"])
}

func TestValidateAndBalanceNegativeAmount(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("-100")},
		{AccountID: 2, Credit: dec("-100")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))
}

func TestValidateAndBalanceRejectsSubCentAmounts(t *testing.T) {
	// Stored amounts carry exactly two decimals; finer input would round on
	// persistence and the stored line would differ from the validated one.
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("0.004")},
		{AccountID: 2, Credit: dec("0.004")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))

	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 0, coded.Meta["line"])

	input = PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("100.005")},
		{AccountID: 2, Credit: dec("100.00")},
	}}
	_, err = input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))
}

func TestValidateAndBalanceAcceptsTrailingZeros(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("100.000")},
		{AccountID: 2, Credit: dec("100.00")},
	}}

	_, err := input.ValidateAndBalance()
	require.NoError(t, err)
}

func TestValidateAndBalanceMissingAccount(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{Debit: dec("100")},
		{AccountID: 2, Credit: dec("100")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))
}

func TestValidateAndBalanceInsufficientLines(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("100")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientLines))

	var coded *Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, 1, coded.Meta["line_count"])

	_, err = PostingInput{}.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientLines))
}

// A single malformed line fails on shape before the line count is considered.
func TestValidateAndBalanceShapeBeforeCount(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("50"), Credit: dec("50")},
	}}

	_, err := input.ValidateAndBalance()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLineShape))
	assert.False(t, errors.Is(err, ErrInsufficientLines))
}

func TestAccountIDsDeduplicates(t *testing.T) {
	input := PostingInput{Lines: []LineInput{
		{AccountID: 1, Debit: dec("60")},
		{AccountID: 1, Debit: dec("40")},
		{AccountID: 2, Credit: dec("100")},
	}}

	assert.Equal(t, []int64{1, 2}, input.AccountIDs())
}

func TestTrialBalanceBalanced(t *testing.T) {
	tb := TrialBalance{TotalDebit: dec("500.00"), TotalCredit: dec("500.01")}
	assert.True(t, tb.Balanced())

	tb.TotalCredit = dec("500.02")
	assert.False(t, tb.Balanced())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := lineShapeError(3, "negative amount")
	assert.True(t, errors.Is(err, ErrInvalidLineShape))
	assert.False(t, errors.Is(err, ErrUnbalanced))
}
