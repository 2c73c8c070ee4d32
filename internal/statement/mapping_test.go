package statement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "descricao", Normalize("Descrição"))
	assert.Equal(t, "lancamento", Normalize(" Lançamento "))
	assert.Equal(t, "valor", Normalize("VALOR"))
}

func TestDetectMapping_Portuguese(t *testing.T) {
	m, ok := DetectMapping([]string{"Data", "Descrição", "Valor"})
	require.True(t, ok)
	assert.Equal(t, ColumnMapping{Date: 0, Description: 1, Amount: 2}, m)
}

func TestDetectMapping_English(t *testing.T) {
	m, ok := DetectMapping([]string{"Posting Date", "Memo", "Amount", "Balance"})
	require.True(t, ok)
	assert.Equal(t, ColumnMapping{Date: 0, Description: 1, Amount: 2}, m)
}

func TestDetectMapping_FirstMatchWins(t *testing.T) {
	m, ok := DetectMapping([]string{"data", "data da compra", "title", "valor"})
	require.True(t, ok)
	assert.Equal(t, 0, m.Date)
}

func TestDetectMapping_MissingField(t *testing.T) {
	_, ok := DetectMapping([]string{"Data", "Valor"})
	assert.False(t, ok)
}

func TestResolveMapping_AutoFailure(t *testing.T) {
	_, err := ResolveMapping([]string{"col1", "col2", "col3"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))
}

func TestResolveMapping_Explicit(t *testing.T) {
	explicit := &ExplicitMapping{
		DateColumn:        "quando",
		DescriptionColumn: "o que",
		AmountColumn:      "quanto",
	}
	m, err := ResolveMapping([]string{"Quando", "O Que", "Quanto"}, explicit)
	require.NoError(t, err)
	assert.Equal(t, ColumnMapping{Date: 0, Description: 1, Amount: 2}, m)
}

func TestResolveMapping_ExplicitColumnMissing(t *testing.T) {
	explicit := &ExplicitMapping{
		DateColumn:        "quando",
		DescriptionColumn: "o que",
		AmountColumn:      "nope",
	}
	_, err := ResolveMapping([]string{"quando", "o que", "quanto"}, explicit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))
}
