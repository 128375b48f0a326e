package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/guileen/docsql/types"
)

func TestEvalCondition(t *testing.T) {
	row := types.Row{"name": "a>b", "n": "5", "note": "x = y"}

	tests := []struct {
		cond string
		want bool
	}{
		{"name = 'a>b'", true},
		{"name = 'a<b'", false},
		{"name <> 'a>b'", false},
		{"note = 'x = y'", true},
		{"'x=y' = name", false},
		{"n >= 5", true},
		{"n > 5", false},
		{"n <> 4", true},
		{"n >= 5 AND name = 'a>b'", true},
		{"n < 0 OR name = 'a>b'", true},
		{"missing = 1", false},
		{"missing IS NULL", true},
		{"name IS NOT NULL", true},
		{"name", false},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			assert.Equal(t, tt.want, evalCondition(row, tt.cond))
		})
	}
}
