package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound2_HalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"2.675", "2.68"},
		{"0.125", "0.13"},
		{"27000", "27000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, MustMoney(tt.want).Equal(Round2(MustMoney(tt.in))), "got %s", Round2(MustMoney(tt.in)))
		})
	}
}

func TestPercentHelpers(t *testing.T) {
	assert.True(t, MustMoney("5400").Equal(ApplyPercent(MustMoney("27000"), MustMoney("20"))))
	assert.True(t, MustMoney("0.9").Equal(Complement(MustMoney("10"))))
	assert.True(t, InPercentRange(MustMoney("0")))
	assert.True(t, InPercentRange(MustMoney("100")))
	assert.False(t, InPercentRange(MustMoney("100.01")))
	assert.False(t, InPercentRange(MustMoney("-1")))
}

func TestInvertAndConvert(t *testing.T) {
	inv := Invert(MustMoney("655.957"))
	assert.True(t, MustMoney("0.0015244902").Equal(inv), "got %s", inv)

	assert.True(t, MustMoney("152.45").Equal(Convert(MustMoney("100000"), inv)))
	assert.True(t, EqualCents(MustMoney("10.004"), MustMoney("10")))
}
