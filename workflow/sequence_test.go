package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAllocateNextNumber_ConcurrentAllocationsAreDistinct(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, models.MigrateTable(db))
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	values := make([]int, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], errs[i] = AllocateNextNumber(ctx, db, quietLogger(), "grn", "202603")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Ints(values)
	for i, v := range values {
		assert.Equal(t, i+1, v)
	}

	var seq models.Sequence
	require.NoError(t, db.Where("seq_key = ? AND period = ?", "GRN", "202603").Take(&seq).Error)
	assert.Equal(t, workers, seq.LastValue)
}

func TestAllocateNext_PeriodsAndKeysAreIndependent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, models.MigrateTable(db))
	ctx := context.Background()

	next := func(key, period string) int {
		n, err := AllocateNextNumber(ctx, db, nil, key, period)
		require.NoError(t, err)
		return n
	}
	assert.Equal(t, 1, next("GRN", "202603"))
	assert.Equal(t, 2, next("GRN", "202603"))
	assert.Equal(t, 1, next("GRN", "202604"))
	assert.Equal(t, 1, next("JV", "202603"))
	assert.Equal(t, 3, next(" grn ", "202603"))
}

func TestAllocateNext_RolledBackNumberIsReissued(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, models.MigrateTable(db))

	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		n, err := AllocateNext(tx, "ISS", "202603")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := AllocateNextNumber(context.Background(), db, nil, "ISS", "202603")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAllocateNext_RequiresKeyAndPeriod(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, models.MigrateTable(db))

	_, err := AllocateNext(db, "", "202603")
	assert.True(t, errors.Is(err, models.ErrValidation))
	_, err = AllocateNext(db, "GRN", "")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestFormatDocumentNumber(t *testing.T) {
	date := time.Date(2026, 11, 30, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "GRN-202611-0007", FormatDocumentNumber("GRN", date, 7))
	assert.Equal(t, "JV-202611-12345", FormatDocumentNumber("JV", date, 12345))

	prefixes := SequencePrefixes{"GRN": "RCV"}
	assert.Equal(t, "RCV", prefixes.Prefix("grn"))
	assert.Equal(t, "ISS", prefixes.Prefix("iss"))
}
