package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "salario", Fold("salário"))
	assert.Equal(t, "cafe da manha", Fold("café da manhã"))
	assert.Equal(t, "plain ascii", Fold("plain ascii"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "conta de luz", Normalize("  Conta   de LUZ "))
	assert.Equal(t, "acai na praia", Normalize("Açaí na Praia"))
}

func TestSignature(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"drops stop words", "paguei a conta de luz", "conta luz"},
		{"keeps at most three tokens", "supermercado extra compras mes inteiro", "supermercado extra compras"},
		{"drops short tokens", "almoço no rj", "almoco"},
		{"english verbs stripped", "I spent money on lunch", "money lunch"},
		{"lunch alone", "lunch", "lunch"},
		{"empty when only noise", "de no em", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Signature(tt.in))
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"conta", "luz"}, Tokens("conta luz"))
	assert.Nil(t, Tokens(""))
}
