package workflow

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCache struct {
	refs map[string]*AccountRef
	sets int
}

func (c *countingCache) Get(_ context.Context, code string) (*AccountRef, bool) {
	ref, ok := c.refs[code]
	return ref, ok
}

func (c *countingCache) Set(_ context.Context, code string, ref *AccountRef) {
	c.refs[code] = ref
	c.sets++
}

func TestGormAccountResolver_ResolvesRolesAndDetailAccounts(t *testing.T) {
	f := newLedgerFixture(t)

	inventory, err := f.accounts.FindAccountByRole(f.ctx, models.AccountRoleInventory)
	require.NoError(t, err)
	assert.Equal(t, "1310", inventory.Code)
	assert.Equal(t, f.accountId(t, "1310"), inventory.AccountId)
	assert.Nil(t, inventory.DetailAccountId)

	bank, err := f.accounts.FindAccountByCode(f.ctx, bankCode)
	require.NoError(t, err)
	assert.Equal(t, f.accountId(t, "1120"), bank.AccountId)
	require.NotNil(t, bank.DetailAccountId)
	assert.Equal(t, f.accountId(t, bankCode), *bank.DetailAccountId)
}

func TestGormAccountResolver_NotFound(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.accounts.FindAccountByCode(f.ctx, "9999")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	resolver := NewGormAccountResolver(f.db, f.logger, map[models.AccountRole]string{})
	_, err = resolver.FindAccountByRole(f.ctx, models.AccountRoleCash)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	inactive := models.Account{Code: "1999", Name: "Closed", DetailType: models.AccountDetailTypeCash, IsDetail: utils.NewFalse(), IsActive: utils.NewFalse()}
	require.NoError(t, f.db.Create(&inactive).Error)
	_, err = f.accounts.FindAccountByCode(f.ctx, "1999")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestGormAccountResolver_CachesFillOnMiss(t *testing.T) {
	f := newLedgerFixture(t)
	lruCache, err := NewLRUAccountCache(16)
	require.NoError(t, err)
	shared := &countingCache{refs: map[string]*AccountRef{}}
	resolver := NewGormAccountResolver(f.db, f.logger, nil, lruCache, shared)

	first, err := resolver.FindAccountByRole(f.ctx, models.AccountRoleCash)
	require.NoError(t, err)
	assert.Equal(t, 1, shared.sets)
	cached, ok := lruCache.Get(f.ctx, "1110")
	require.True(t, ok)
	assert.Equal(t, first.AccountId, cached.AccountId)

	// served from the LRU without touching the store or the shared cache
	require.NoError(t, f.db.Where("code = ?", "1110").Delete(&models.Account{}).Error)
	again, err := resolver.FindAccountByCode(f.ctx, "1110")
	require.NoError(t, err)
	assert.Equal(t, first.AccountId, again.AccountId)
	assert.Equal(t, 1, shared.sets)

	// a hit in a later cache backfills the earlier ones
	lruCache.Purge()
	_, err = resolver.FindAccountByCode(f.ctx, "1110")
	require.NoError(t, err)
	_, ok = lruCache.Get(f.ctx, "1110")
	assert.True(t, ok)
}

func TestRoleAccountCodes_Overrides(t *testing.T) {
	codes := RoleAccountCodes(map[string]string{
		"cash":      "1111",
		"INVENTORY": "",
		"NOT_A_ROLE": "42",
	})
	assert.Equal(t, "1111", codes[models.AccountRoleCash])
	assert.Equal(t, "1310", codes[models.AccountRoleInventory])
	assert.Len(t, codes, len(models.AllAccountRole))
}
