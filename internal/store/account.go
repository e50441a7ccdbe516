// Package store contains the reactive state machines that reconcile local
// identity/device state with the backend: AccountStore owns the canonical
// account+keypair record, DeviceStore owns the device/subscription payload.
//
// Each store runs a single event-loop goroutine fed by debounced request
// channels. Public mutators never block on I/O; they enqueue a request and
// signal completion through the shared operation notifier and the published
// value streams. Overlapping refresh chains are not sequenced against each
// other: a slow response that resolves after a newer one can overwrite the
// published value. This matches the behavior of the shipping clients and is
// deliberately left as-is.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aegisdns/syncd/internal/common"
	"github.com/aegisdns/syncd/internal/keys"
	"github.com/aegisdns/syncd/internal/kv"
	"github.com/aegisdns/syncd/internal/logging"
	"github.com/aegisdns/syncd/internal/models"
	"github.com/aegisdns/syncd/internal/notify"
	"github.com/aegisdns/syncd/internal/stream"
)

// Operation names carried on notifier events.
const (
	OpAccountRestore   = "account.restore"
	OpAccountPropose   = "account.propose"
	OpAccountRefresh   = "account.refresh"
	OpAccountBootstrap = "account.bootstrap"
)

const (
	defaultUserDebounce    = time.Second
	defaultRefreshInterval = 600 * time.Second

	requestQueue = 64
)

// AccountAPI is the backend contract the account store consumes.
type AccountAPI interface {
	GetAccount(ctx context.Context, id string) (models.Account, error)
	CreateAccount(ctx context.Context) (models.Account, error)
}

// AccountConfig tunes the account pipeline. Zero values select defaults.
type AccountConfig struct {
	// UserDebounce coalesces rapid-fire restore/propose calls.
	UserDebounce time.Duration
	// RefreshInterval is the minimum age of the current account before a
	// foreground entry triggers an implicit refresh.
	RefreshInterval time.Duration
}

func (c *AccountConfig) applyDefaults() {
	if c.UserDebounce <= 0 {
		c.UserDebounce = defaultUserDebounce
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = defaultRefreshInterval
	}
}

// proposal is one unit of work for the propose pipeline. Restores and
// periodic refreshes funnel their fetched accounts through it so keypair
// reuse, validation and persistence live in one place.
type proposal struct {
	account models.Account
	op      string
	major   bool
}

// AccountStore owns the canonical AccountWithKeypair record.
type AccountStore struct {
	cfg      AccountConfig
	api      AccountAPI
	keygen   keys.Generator
	local    kv.Store
	remote   kv.Store
	notifier *notify.Notifier
	log      logging.Logger
	now      func() time.Time

	proposals  chan proposal
	restores   chan string
	foreground chan struct{}

	account   *stream.Source[models.AccountWithKeypair]
	accountID *stream.Source[string]

	mu          sync.Mutex
	lastRefresh time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewAccountStore wires the store and starts its pipeline. Bootstrap
// (load-or-create) runs asynchronously; subscribe to AccountUpdates or poll
// CurrentAccount to observe the first value.
func NewAccountStore(cfg AccountConfig, api AccountAPI, keygen keys.Generator,
	local, remote kv.Store, notifier *notify.Notifier, log logging.Logger) *AccountStore {

	cfg.applyDefaults()

	s := &AccountStore{
		cfg:      cfg,
		api:      api,
		keygen:   keygen,
		local:    local,
		remote:   remote,
		notifier: notifier,
		log:      log.With("store", "account"),
		now:      time.Now,

		proposals:  make(chan proposal, requestQueue),
		restores:   make(chan string, requestQueue),
		foreground: make(chan struct{}, 1),

		account: stream.NewDistinctSource(func(a, b models.AccountWithKeypair) bool {
			return a == b
		}),
		accountID: stream.NewDistinctSource(func(a, b string) bool { return a == b }),

		done: make(chan struct{}),
	}

	go s.run()
	go s.bootstrap(context.Background())

	return s
}

// Close stops the pipeline. In-flight requests finish; queued ones are
// dropped.
func (s *AccountStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// RestoreAccount accepts a user-entered identifier and enqueues a restore.
// The sanitized empty case fails asynchronously through the notifier, like
// every other outcome of this call.
func (s *AccountStore) RestoreAccount(id string) {
	s.notifier.Begin(OpAccountRestore)

	normalized := models.NormalizeAccountID(id)
	if normalized == "" {
		s.notifier.Fail(OpAccountRestore, common.ErrEmptyAccountID, true)
		return
	}
	stream.Offer(s.restores, normalized)
}

// ProposeAccount enqueues an externally supplied account (e.g. from a
// payment receipt callback) into the propose pipeline.
func (s *AccountStore) ProposeAccount(account models.Account) {
	stream.Offer(s.proposals, proposal{account: account, op: OpAccountPropose, major: true})
}

// CurrentAccount returns a snapshot of the current value, or
// common.ErrNotAvailable before the first load completes.
func (s *AccountStore) CurrentAccount() (models.AccountWithKeypair, error) {
	awk, ok := s.account.Latest()
	if !ok {
		return models.AccountWithKeypair{}, common.ErrNotAvailable
	}
	return awk, nil
}

// AccountUpdates subscribes to the deduplicated account/keypair stream.
func (s *AccountStore) AccountUpdates() (<-chan models.AccountWithKeypair, func()) {
	return s.account.Subscribe()
}

// AccountIDUpdates subscribes to the deduplicated account-ID projection.
func (s *AccountStore) AccountIDUpdates() (<-chan string, func()) {
	return s.accountID.Subscribe()
}

// NotifyForeground signals an app-foreground (or wake) transition. The
// store refreshes the account when the current value is older than the
// configured interval.
func (s *AccountStore) NotifyForeground() {
	select {
	case s.foreground <- struct{}{}:
	default:
	}
}

func (s *AccountStore) run() {
	ctx := context.Background()

	proposals := stream.Debounce(s.done, s.proposals, s.cfg.UserDebounce, nil)
	restores := stream.Debounce(s.done, s.restores, s.cfg.UserDebounce,
		func(a, b string) bool { return a == b })

	for {
		select {
		case <-s.done:
			return
		case p, ok := <-proposals:
			if !ok {
				return
			}
			s.applyProposal(ctx, p)
		case id, ok := <-restores:
			if !ok {
				return
			}
			s.refreshByID(ctx, id, OpAccountRestore, true)
		case <-s.foreground:
			s.maybeRefresh(ctx)
		}
	}
}

// bootstrap loads the persisted account and keypair in parallel. An empty
// result on either side means first run: mint a new account and keypair
// instead of surfacing an error.
func (s *AccountStore) bootstrap(ctx context.Context) {
	var (
		wg      sync.WaitGroup
		account models.Account
		keypair models.Keypair
		acctErr error
		kpErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		account, acctErr = s.loadAccount(ctx)
	}()
	go func() {
		defer wg.Done()
		keypair, kpErr = s.loadKeypair(ctx)
	}()
	wg.Wait()

	if errors.Is(acctErr, common.ErrNotFound) || errors.Is(kpErr, common.ErrNotFound) {
		s.log.Info(ctx, "no persisted identity, creating a new user")
		s.createUser(ctx)
		return
	}
	if acctErr != nil {
		s.log.Error(ctx, "bootstrap account load failed", "error", acctErr)
		s.notifier.Fail(OpAccountBootstrap, acctErr, false)
		return
	}
	if kpErr != nil {
		s.log.Error(ctx, "bootstrap keypair load failed", "error", kpErr)
		s.notifier.Fail(OpAccountBootstrap, kpErr, false)
		return
	}

	awk := models.AccountWithKeypair{Account: account, Keypair: keypair}
	if err := awk.Validate(); err != nil {
		s.notifier.Fail(OpAccountBootstrap, err, false)
		return
	}
	s.publish(ctx, awk)
}

func (s *AccountStore) createUser(ctx context.Context) {
	account, err := s.api.CreateAccount(ctx)
	accountRefreshes.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.notifier.Fail(OpAccountBootstrap, err, false)
		return
	}

	keypair, err := s.keygen.Generate()
	if err != nil {
		s.notifier.Fail(OpAccountBootstrap, err, false)
		return
	}

	awk := models.AccountWithKeypair{Account: account, Keypair: keypair}
	if err := awk.Validate(); err != nil {
		s.notifier.Fail(OpAccountBootstrap, err, false)
		return
	}
	if err := s.persistPair(ctx, awk); err != nil {
		s.notifier.Fail(OpAccountBootstrap, err, false)
		return
	}

	s.setLastRefresh()
	s.publish(ctx, awk)
}

func (s *AccountStore) loadAccount(ctx context.Context) (models.Account, error) {
	raw, err := s.remote.Get(ctx, common.AccountKey)
	if err != nil {
		return models.Account{}, err
	}
	var account models.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return models.Account{}, fmt.Errorf("failed to decode persisted account: %w", err)
	}
	return account, nil
}

// loadKeypair reads the keypair from the synced store, falling back to the
// legacy split keys on the local store. A legacy hit is migrated forward.
func (s *AccountStore) loadKeypair(ctx context.Context) (models.Keypair, error) {
	raw, err := s.remote.Get(ctx, common.KeypairKey)
	if err == nil {
		var kp models.Keypair
		if uerr := json.Unmarshal([]byte(raw), &kp); uerr != nil {
			return models.Keypair{}, fmt.Errorf("failed to decode persisted keypair: %w", uerr)
		}
		return kp, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return models.Keypair{}, err
	}

	priv, err := s.local.Get(ctx, common.LegacyPrivateKeyKey)
	if err != nil {
		return models.Keypair{}, err
	}
	pub, err := s.local.Get(ctx, common.LegacyPublicKeyKey)
	if errors.Is(err, common.ErrNotFound) {
		// Very old installs stored only the private half.
		pub, err = keys.PublicFromPrivate(priv)
	}
	if err != nil {
		return models.Keypair{}, err
	}

	kp := models.Keypair{PrivateKey: priv, PublicKey: pub}
	if merr := s.persistKeypair(ctx, kp); merr != nil {
		s.log.Warn(ctx, "legacy keypair migration failed", "error", merr)
	}
	return kp, nil
}

// applyProposal decides keypair reuse, validates, persists and publishes.
// Reuse rule: same account ID keeps the existing keypair; a different ID
// gets a freshly minted one.
func (s *AccountStore) applyProposal(ctx context.Context, p proposal) {
	p.account.ID = models.NormalizeAccountID(p.account.ID)

	current, hasCurrent := s.account.Latest()

	var keypair models.Keypair
	if hasCurrent && current.Account.ID == p.account.ID {
		keypair = current.Keypair
	} else {
		kp, err := s.keygen.Generate()
		if err != nil {
			s.notifier.Fail(p.op, err, p.major)
			return
		}
		keypair = kp
	}

	awk := models.AccountWithKeypair{Account: p.account, Keypair: keypair}
	if err := awk.Validate(); err != nil {
		s.log.Warn(ctx, "rejected invalid proposal", "op", p.op, "error", err)
		s.notifier.Fail(p.op, err, p.major)
		return
	}

	if err := s.persistPair(ctx, awk); err != nil {
		s.notifier.Fail(p.op, err, p.major)
		return
	}

	s.publish(ctx, awk)
	s.notifier.Succeed(p.op)
}

// refreshByID fetches a fresh account and feeds it back into the propose
// pipeline, so refresh and propose share one validation/persistence path.
func (s *AccountStore) refreshByID(ctx context.Context, id, op string, major bool) {
	account, err := s.api.GetAccount(ctx, id)
	accountRefreshes.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.log.Error(ctx, "account fetch failed", "op", op, "error", err)
		s.notifier.Fail(op, err, major)
		return
	}

	s.setLastRefresh()
	stream.Offer(s.proposals, proposal{account: account, op: op, major: major})
}

func (s *AccountStore) maybeRefresh(ctx context.Context) {
	current, ok := s.account.Latest()
	if !ok {
		return
	}

	s.mu.Lock()
	last := s.lastRefresh
	s.mu.Unlock()

	if s.now().Sub(last) < s.cfg.RefreshInterval {
		return
	}
	s.log.Debug(ctx, "foreground refresh", "account_id", current.Account.ID)
	s.refreshByID(ctx, current.Account.ID, OpAccountRefresh, false)
}

// persistPair writes account and keypair independently; both writes must
// succeed before the pair may be published.
func (s *AccountStore) persistPair(ctx context.Context, awk models.AccountWithKeypair) error {
	raw, err := json.Marshal(awk.Account)
	if err != nil {
		return fmt.Errorf("failed to encode account: %w", err)
	}
	if err := s.remote.Set(ctx, common.AccountKey, string(raw)); err != nil {
		return fmt.Errorf("failed to persist account: %w", err)
	}
	return s.persistKeypair(ctx, awk.Keypair)
}

func (s *AccountStore) persistKeypair(ctx context.Context, kp models.Keypair) error {
	raw, err := json.Marshal(kp)
	if err != nil {
		return fmt.Errorf("failed to encode keypair: %w", err)
	}
	if err := s.remote.Set(ctx, common.KeypairKey, string(raw)); err != nil {
		return fmt.Errorf("failed to persist keypair: %w", err)
	}
	return nil
}

func (s *AccountStore) publish(ctx context.Context, awk models.AccountWithKeypair) {
	if s.account.Publish(awk) {
		accountPublishes.Inc()
		s.log.Info(ctx, "account published", "account_id", awk.Account.ID)
	}
	s.accountID.Publish(awk.Account.ID)
}

func (s *AccountStore) setLastRefresh() {
	s.mu.Lock()
	s.lastRefresh = s.now()
	s.mu.Unlock()
}
