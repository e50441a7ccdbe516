package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisdns/syncd/internal/common"
	"github.com/aegisdns/syncd/internal/kv"
	"github.com/aegisdns/syncd/internal/logging"
	"github.com/aegisdns/syncd/internal/models"
	"github.com/aegisdns/syncd/internal/notify"
)

const (
	testDebounce = 10 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

// ---- fakes ----

type fakeAccountAPI struct {
	mu          sync.Mutex
	getCalls    []string
	createCalls int

	getRet    models.Account
	getErr    error
	createRet models.Account
	createErr error
}

func (f *fakeAccountAPI) GetAccount(_ context.Context, id string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls = append(f.getCalls, id)
	if f.getErr != nil {
		return models.Account{}, f.getErr
	}
	if f.getRet.ID != "" {
		return f.getRet, nil
	}
	return models.Account{ID: id, Type: "premium"}, nil
}

func (f *fakeAccountAPI) CreateAccount(context.Context) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return models.Account{}, f.createErr
	}
	return f.createRet, nil
}

func (f *fakeAccountAPI) GetCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.getCalls...)
}

func (f *fakeAccountAPI) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

type fakeKeygen struct {
	mu sync.Mutex
	n  int
}

func (f *fakeKeygen) Generate() (models.Keypair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return models.Keypair{
		PrivateKey: fmt.Sprintf("priv-%d", f.n),
		PublicKey:  fmt.Sprintf("pub-%d", f.n),
	}, nil
}

// ---- helpers ----

func seedIdentity(t *testing.T, remote kv.Store, id string) models.AccountWithKeypair {
	t.Helper()
	ctx := context.Background()

	awk := models.AccountWithKeypair{
		Account: models.Account{ID: id, Type: "premium"},
		Keypair: models.Keypair{PrivateKey: "seed-priv", PublicKey: "seed-pub"},
	}

	acct, err := json.Marshal(awk.Account)
	require.NoError(t, err)
	require.NoError(t, remote.Set(ctx, common.AccountKey, string(acct)))

	kp, err := json.Marshal(awk.Keypair)
	require.NoError(t, err)
	require.NoError(t, remote.Set(ctx, common.KeypairKey, string(kp)))

	return awk
}

func newTestAccountStore(t *testing.T, api *fakeAccountAPI, local, remote kv.Store) (*AccountStore, *notify.Notifier) {
	t.Helper()

	n := notify.NewNotifier()
	s := NewAccountStore(AccountConfig{
		UserDebounce:    testDebounce,
		RefreshInterval: 50 * time.Millisecond,
	}, api, &fakeKeygen{}, local, remote, n, logging.Nop())
	t.Cleanup(s.Close)
	return s, n
}

func waitForAccountID(t *testing.T, s *AccountStore, id string) models.AccountWithKeypair {
	t.Helper()
	require.Eventually(t, func() bool {
		awk, err := s.CurrentAccount()
		return err == nil && awk.Account.ID == id
	}, waitFor, tick, "account %q never published", id)
	awk, err := s.CurrentAccount()
	require.NoError(t, err)
	return awk
}

// ---- bootstrap ----

func TestAccountStore_BootstrapCreatesUserOnEmptyPersistence(t *testing.T) {
	api := &fakeAccountAPI{createRet: models.Account{ID: "fresh01", Type: "trial"}}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()

	s, _ := newTestAccountStore(t, api, local, remote)

	awk := waitForAccountID(t, s, "fresh01")
	assert.NoError(t, awk.Keypair.Validate())
	assert.Equal(t, 1, api.CreateCalls())

	// Both halves must have been persisted to the synced store.
	raw, err := remote.Get(context.Background(), common.AccountKey)
	require.NoError(t, err)
	var persisted models.Account
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Equal(t, "fresh01", persisted.ID)

	_, err = remote.Get(context.Background(), common.KeypairKey)
	require.NoError(t, err)
}

func TestAccountStore_BootstrapLoadsPersistedIdentity(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seeded := seedIdentity(t, remote, "abc123")

	s, _ := newTestAccountStore(t, api, local, remote)

	awk := waitForAccountID(t, s, "abc123")
	assert.Equal(t, seeded.Keypair, awk.Keypair)
	assert.Equal(t, 0, api.CreateCalls())
}

func TestAccountStore_BootstrapMigratesLegacyKeypair(t *testing.T) {
	ctx := context.Background()
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()

	acct, err := json.Marshal(models.Account{ID: "abc123"})
	require.NoError(t, err)
	require.NoError(t, remote.Set(ctx, common.AccountKey, string(acct)))
	require.NoError(t, local.Set(ctx, common.LegacyPrivateKeyKey, "legacy-priv"))
	require.NoError(t, local.Set(ctx, common.LegacyPublicKeyKey, "legacy-pub"))

	s, _ := newTestAccountStore(t, api, local, remote)

	awk := waitForAccountID(t, s, "abc123")
	assert.Equal(t, "legacy-priv", awk.Keypair.PrivateKey)
	assert.Equal(t, "legacy-pub", awk.Keypair.PublicKey)
	assert.Equal(t, 0, api.CreateCalls())

	// The legacy pair is migrated to the synced store.
	require.Eventually(t, func() bool {
		_, err := remote.Get(ctx, common.KeypairKey)
		return err == nil
	}, waitFor, tick)
}

// ---- restore ----

func TestAccountStore_RestoreNormalizesInput(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seedIdentity(t, remote, "old000")

	s, _ := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "old000")

	s.RestoreAccount("  ABC123 \n")

	waitForAccountID(t, s, "abc123")
	calls := api.GetCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "abc123", calls[len(calls)-1])
}

func TestAccountStore_RestoreEmptyIDFailsMajor(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seedIdentity(t, remote, "abc123")

	s, n := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "abc123")

	events, cancel := n.Events()
	defer cancel()

	s.RestoreAccount("   ")

	var failed notify.Event
	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-events:
				if e.State == notify.Failed {
					failed = e
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, tick)

	assert.Equal(t, OpAccountRestore, failed.Op)
	assert.True(t, failed.Major)
	require.ErrorIs(t, failed.Err, common.ErrEmptyAccountID)
	assert.Empty(t, api.GetCalls())
}

func TestAccountStore_RestoreBurstCoalescesToLastID(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seedIdentity(t, remote, "old000")

	s, _ := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "old000")

	s.RestoreAccount("first1")
	s.RestoreAccount("second2")
	s.RestoreAccount("third3")

	waitForAccountID(t, s, "third3")
	assert.Equal(t, []string{"third3"}, api.GetCalls())
}

// ---- propose ----

func TestAccountStore_ProposeSameIDReusesKeypair(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seeded := seedIdentity(t, remote, "abc123")

	s, _ := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "abc123")

	s.ProposeAccount(models.Account{ID: "ABC123", Type: "premium_yearly"})

	require.Eventually(t, func() bool {
		awk, err := s.CurrentAccount()
		return err == nil && awk.Account.Type == "premium_yearly"
	}, waitFor, tick)

	awk, err := s.CurrentAccount()
	require.NoError(t, err)
	assert.Equal(t, "abc123", awk.Account.ID)
	assert.Equal(t, seeded.Keypair, awk.Keypair, "keypair must be reused for the same account id")
}

func TestAccountStore_ProposeDifferentIDMintsNewKeypair(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seeded := seedIdentity(t, remote, "abc123")

	s, _ := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "abc123")

	s.ProposeAccount(models.Account{ID: "xyz789"})

	awk := waitForAccountID(t, s, "xyz789")
	assert.NotEqual(t, seeded.Keypair, awk.Keypair, "keypair must be replaced for a new account id")
	assert.NoError(t, awk.Keypair.Validate())
}

func TestAccountStore_ProposeEmptyIDNeverPersistsOrPublishes(t *testing.T) {
	ctx := context.Background()
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seedIdentity(t, remote, "abc123")

	s, n := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "abc123")

	events, cancel := n.Events()
	defer cancel()

	s.ProposeAccount(models.Account{ID: "   "})

	require.Eventually(t, func() bool {
		for {
			select {
			case e := <-events:
				if e.State == notify.Failed && e.Op == OpAccountPropose {
					return true
				}
			default:
				return false
			}
		}
	}, waitFor, tick)

	// Persistence still holds the seeded identity.
	raw, err := remote.Get(ctx, common.AccountKey)
	require.NoError(t, err)
	assert.True(t, strings.Contains(raw, "abc123"))

	awk, err := s.CurrentAccount()
	require.NoError(t, err)
	assert.Equal(t, "abc123", awk.Account.ID)
}

// ---- foreground refresh ----

func TestAccountStore_ForegroundRefreshesStaleAccount(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seedIdentity(t, remote, "abc123")

	s, _ := newTestAccountStore(t, api, local, remote)
	waitForAccountID(t, s, "abc123")

	// Never refreshed yet, so the threshold is exceeded immediately.
	s.NotifyForeground()

	require.Eventually(t, func() bool {
		calls := api.GetCalls()
		return len(calls) == 1 && calls[0] == "abc123"
	}, waitFor, tick)
}

func TestAccountStore_ForegroundSkipsFreshAccount(t *testing.T) {
	api := &fakeAccountAPI{}
	local, remote := kv.NewMemoryStore(), kv.NewMemoryStore()
	seedIdentity(t, remote, "abc123")

	n := notify.NewNotifier()
	s := NewAccountStore(AccountConfig{
		UserDebounce:    testDebounce,
		RefreshInterval: time.Hour,
	}, api, &fakeKeygen{}, local, remote, n, logging.Nop())
	t.Cleanup(s.Close)
	waitForAccountID(t, s, "abc123")

	// A restore stamps the last-refresh time.
	s.RestoreAccount("abc123")
	require.Eventually(t, func() bool { return len(api.GetCalls()) == 1 }, waitFor, tick)

	s.NotifyForeground()
	time.Sleep(100 * time.Millisecond)

	assert.Len(t, api.GetCalls(), 1, "fresh account must not be re-fetched on foreground")
}

func TestAccountStore_CurrentAccountBeforeLoad(t *testing.T) {
	api := &fakeAccountAPI{createErr: common.ErrUnavailable}
	s, _ := newTestAccountStore(t, api, kv.NewMemoryStore(), kv.NewMemoryStore())

	_, err := s.CurrentAccount()
	require.ErrorIs(t, err, common.ErrNotAvailable)
}
