package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatementsAreIdempotent(t *testing.T) {
	for _, s := range Statements {
		assert.True(t, strings.Contains(s, "IF NOT EXISTS"), s)
	}
}
