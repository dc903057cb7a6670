package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	period := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "FAC-2024-00007", Format(DefaultConfig("FAC"), period, 7))
	assert.Equal(t, "202403-000042", Format(JournalEntryConfig(), period, 42))
}

func TestKey_ResetPeriods(t *testing.T) {
	period := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "FAC_2024", Key(DefaultConfig("FAC"), period))
	assert.Equal(t, "JE_2024_03", Key(JournalEntryConfig(), period))
	assert.Equal(t, "X", Key(Config{Prefix: "X", ResetPeriod: "never"}, period))
}
