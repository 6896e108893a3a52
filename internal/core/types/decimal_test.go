package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAverageCost(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		quantity int64
		fallback string
		want     string
	}{
		{"exact", "1650", 150, "0", "11"},
		{"repeating fraction", "1000", 3, "0", "333.333333"},
		{"zero quantity uses fallback", "0", 0, "13.5", "13.5"},
		{"negative quantity uses fallback", "10", -1, "2", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AverageCost(MustMoney(tt.value), tt.quantity, MustMoney(tt.fallback))
			assert.True(t, MustMoney(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestExtend(t *testing.T) {
	assert.True(t, MustMoney("1260").Equal(Extend(MustMoney("10"), 100).Add(Extend(MustMoney("13"), 20))))
}
