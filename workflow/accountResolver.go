package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"bitbucket.org/mmdatafocus/stock_ledger/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccountRef is what a voucher line needs to post against an account. A detail
// account posts to its parent with DetailAccountId set.
type AccountRef struct {
	AccountId       int    `json:"account_id"`
	DetailAccountId *int   `json:"detail_account_id,omitempty"`
	Code            string `json:"code"`
	Name            string `json:"name"`
}

// AccountResolver is the read-only chart-of-accounts lookup used by posting.
type AccountResolver interface {
	FindAccountByCode(ctx context.Context, code string) (*AccountRef, error)
	FindAccountByRole(ctx context.Context, role models.AccountRole) (*AccountRef, error)
}

// AccountCache stores resolved refs by account code.
type AccountCache interface {
	Get(ctx context.Context, code string) (*AccountRef, bool)
	Set(ctx context.Context, code string, ref *AccountRef)
}

// DefaultRoleAccountCodes is the chart seeded by cmd/seed-defaults.
func DefaultRoleAccountCodes() map[models.AccountRole]string {
	return map[models.AccountRole]string{
		models.AccountRoleInventory:         "1310",
		models.AccountRoleRawMaterial:       "1320",
		models.AccountRoleFinishedGoods:     "1330",
		models.AccountRoleWorkInProgress:    "1340",
		models.AccountRoleCash:              "1110",
		models.AccountRoleChequesReceivable: "1150",
		models.AccountRoleCustomer:          "1210",
		models.AccountRoleSupplier:          "2110",
		models.AccountRoleProductionCost:    "5110",
		models.AccountRoleConsumption:       "5210",
	}
}

// RoleAccountCodes layers ACCOUNT_CODE_<ROLE> overrides on the defaults.
func RoleAccountCodes(overrides map[string]string) map[models.AccountRole]string {
	codes := DefaultRoleAccountCodes()
	for role, code := range overrides {
		r := models.AccountRole(utils.NormalizeCode(role))
		if r.IsValid() && code != "" {
			codes[r] = code
		}
	}
	return codes
}

type GormAccountResolver struct {
	db        *gorm.DB
	logger    *logrus.Logger
	roleCodes map[models.AccountRole]string
	caches    []AccountCache
}

// NewGormAccountResolver reads accounts through db. Caches are consulted in
// order and filled on a miss.
func NewGormAccountResolver(db *gorm.DB, logger *logrus.Logger, roleCodes map[models.AccountRole]string, caches ...AccountCache) *GormAccountResolver {
	if roleCodes == nil {
		roleCodes = DefaultRoleAccountCodes()
	}
	return &GormAccountResolver{db: db, logger: logger, roleCodes: roleCodes, caches: caches}
}

func (r *GormAccountResolver) FindAccountByRole(ctx context.Context, role models.AccountRole) (*AccountRef, error) {
	code, ok := r.roleCodes[role]
	if !ok || code == "" {
		return nil, models.NewNotFoundError("account role", role)
	}
	return r.FindAccountByCode(ctx, code)
}

func (r *GormAccountResolver) FindAccountByCode(ctx context.Context, code string) (*AccountRef, error) {
	for i, c := range r.caches {
		if ref, ok := c.Get(ctx, code); ok {
			for _, earlier := range r.caches[:i] {
				earlier.Set(ctx, code, ref)
			}
			return ref, nil
		}
	}

	account, err := models.GetAccountByCode(r.db.WithContext(ctx), code)
	if err != nil {
		config.LogError(r.logger, "AccountResolver.go", "FindAccountByCode", "Reading account", code, err)
		return nil, err
	}
	ref := &AccountRef{AccountId: account.ID, Code: account.Code, Name: account.Name}
	if account.Detail() {
		if account.ParentAccountId <= 0 {
			return nil, models.NewValidationError("account", "detail account %s has no parent", code)
		}
		detailId := account.ID
		ref.AccountId = account.ParentAccountId
		ref.DetailAccountId = &detailId
	}
	for _, c := range r.caches {
		c.Set(ctx, code, ref)
	}
	return ref, nil
}

// LRUAccountCache keeps refs in process memory.
type LRUAccountCache struct {
	cache *lru.Cache[string, AccountRef]
}

func NewLRUAccountCache(size int) (*LRUAccountCache, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, AccountRef](size)
	if err != nil {
		return nil, err
	}
	return &LRUAccountCache{cache: c}, nil
}

func (c *LRUAccountCache) Get(_ context.Context, code string) (*AccountRef, bool) {
	ref, ok := c.cache.Get(code)
	if !ok {
		return nil, false
	}
	return &ref, true
}

func (c *LRUAccountCache) Set(_ context.Context, code string, ref *AccountRef) {
	if ref == nil {
		return
	}
	c.cache.Add(code, *ref)
}

func (c *LRUAccountCache) Purge() {
	c.cache.Purge()
}

// RedisAccountCache shares refs between instances. Errors degrade to a miss.
type RedisAccountCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisAccountCache(rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisAccountCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisAccountCache{rdb: rdb, ttl: ttl, logger: logger}
}

func redisAccountKey(code string) string {
	return fmt.Sprintf("account_ref:%s", code)
}

func (c *RedisAccountCache) Get(ctx context.Context, code string) (*AccountRef, bool) {
	var ref AccountRef
	ok, err := config.GetRedisObject(ctx, c.rdb, redisAccountKey(code), &ref)
	if err != nil {
		config.LogError(c.logger, "AccountResolver.go", "RedisAccountCache.Get", "Reading cached account", code, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &ref, true
}

func (c *RedisAccountCache) Set(ctx context.Context, code string, ref *AccountRef) {
	if ref == nil {
		return
	}
	if err := config.SetRedisObject(ctx, c.rdb, redisAccountKey(code), ref, c.ttl); err != nil {
		config.LogError(c.logger, "AccountResolver.go", "RedisAccountCache.Set", "Caching account", code, err)
	}
}
