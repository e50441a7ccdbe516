package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aegisdns/syncd/internal/dnsprofile"
	"github.com/aegisdns/syncd/internal/logging"
	"github.com/aegisdns/syncd/internal/models"
	"github.com/aegisdns/syncd/internal/notify"
	"github.com/aegisdns/syncd/internal/stream"
)

const (
	OpDeviceRefresh  = "device.refresh"
	OpRetentionWrite = "device.retention"
	OpDNSProfileSave = "device.dnsprofile"
)

const defaultRefreshDebounce = 3 * time.Second

// DeviceAPI is the backend contract the device store consumes.
type DeviceAPI interface {
	GetDevice(ctx context.Context) (models.DevicePayload, error)
	SetRetention(ctx context.Context, policy models.RetentionPolicy) error
}

// DeviceConfig tunes the device pipeline. Zero values select defaults.
type DeviceConfig struct {
	// UserDebounce coalesces rapid retention changes.
	UserDebounce time.Duration
	// RefreshDebounce coalesces refresh bursts from multiple triggers
	// (external requests, account changes, write completions).
	RefreshDebounce time.Duration
	// DeviceName is the human-readable name stamped on saved DNS profiles.
	DeviceName string
}

func (c *DeviceConfig) applyDefaults() {
	if c.UserDebounce <= 0 {
		c.UserDebounce = defaultUserDebounce
	}
	if c.RefreshDebounce <= 0 {
		c.RefreshDebounce = defaultRefreshDebounce
	}
	if c.DeviceName == "" {
		c.DeviceName = "aegisdns-device"
	}
}

// DeviceStore owns the canonical device/subscription payload and its
// derived projections. The payload is only ever fetched wholesale; the
// single client-side write path (retention) re-fetches afterwards so the
// backend stays authoritative.
type DeviceStore struct {
	cfg      DeviceConfig
	api      DeviceAPI
	dns      dnsprofile.Manager
	notifier *notify.Notifier
	log      logging.Logger

	refreshes  chan struct{}
	retentions chan models.RetentionPolicy
	foreground chan struct{}
	accountIDs <-chan string

	device     *stream.Source[models.DevicePayload]
	blocklists *stream.Source[[]models.BlocklistID]
	retention  *stream.Source[models.RetentionPolicy]
	paused     *stream.Source[bool]
	deviceTag  *stream.Source[string]
	dnsActive  *stream.Source[bool]

	done      chan struct{}
	closeOnce sync.Once
}

// NewDeviceStore wires the store and starts its pipeline. accountIDs is the
// account-ID stream from the AccountStore; every change enqueues a refresh.
// It may be nil when no account store is attached (tests).
func NewDeviceStore(cfg DeviceConfig, api DeviceAPI, dns dnsprofile.Manager,
	accountIDs <-chan string, notifier *notify.Notifier, log logging.Logger) *DeviceStore {

	cfg.applyDefaults()

	s := &DeviceStore{
		cfg:      cfg,
		api:      api,
		dns:      dns,
		notifier: notifier,
		log:      log.With("store", "device"),

		refreshes:  make(chan struct{}, requestQueue),
		retentions: make(chan models.RetentionPolicy, requestQueue),
		foreground: make(chan struct{}, 1),
		accountIDs: accountIDs,

		device: stream.NewDistinctSource(func(a, b models.DevicePayload) bool {
			return a.Equal(b)
		}),
		blocklists: stream.NewDistinctSource(func(a, b []models.BlocklistID) bool {
			return slices.Equal(a, b)
		}),
		retention: stream.NewDistinctSource(func(a, b models.RetentionPolicy) bool {
			return a == b
		}),
		paused:    stream.NewDistinctSource(func(a, b bool) bool { return a == b }),
		deviceTag: stream.NewDistinctSource(func(a, b string) bool { return a == b }),
		dnsActive: stream.NewDistinctSource(func(a, b bool) bool { return a == b }),

		done: make(chan struct{}),
	}

	go s.run()

	return s
}

// Close stops the pipeline.
func (s *DeviceStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// SetActivityRetention enqueues a retention write. Completion — success or
// failure — always triggers a device refresh so consumers converge on the
// backend's view.
func (s *DeviceStore) SetActivityRetention(policy models.RetentionPolicy) {
	s.notifier.Begin(OpRetentionWrite)
	stream.Offer(s.retentions, policy)
}

// RequestRefresh enqueues an implicit device refresh. The embedding layer
// calls this on UI surface changes (tab switches in the apps, SIGHUP in the
// daemon).
func (s *DeviceStore) RequestRefresh() {
	stream.Offer(s.refreshes, struct{}{})
}

// NotifyForeground re-queries the OS private-DNS activation status. The
// status is never persisted; it is recomputed on every foreground entry.
func (s *DeviceStore) NotifyForeground() {
	select {
	case s.foreground <- struct{}{}:
	default:
	}
}

// DeviceUpdates subscribes to the deduplicated device payload stream.
func (s *DeviceStore) DeviceUpdates() (<-chan models.DevicePayload, func()) {
	return s.device.Subscribe()
}

// BlocklistUpdates subscribes to the enabled-blocklists projection.
func (s *DeviceStore) BlocklistUpdates() (<-chan []models.BlocklistID, func()) {
	return s.blocklists.Subscribe()
}

// RetentionUpdates subscribes to the retention-policy projection.
func (s *DeviceStore) RetentionUpdates() (<-chan models.RetentionPolicy, func()) {
	return s.retention.Subscribe()
}

// PausedUpdates subscribes to the protection-paused projection.
func (s *DeviceStore) PausedUpdates() (<-chan bool, func()) {
	return s.paused.Subscribe()
}

// DeviceTagUpdates subscribes to the device-tag projection.
func (s *DeviceStore) DeviceTagUpdates() (<-chan string, func()) {
	return s.deviceTag.Subscribe()
}

// DNSProfileActiveUpdates subscribes to the private-DNS activation status.
func (s *DeviceStore) DNSProfileActiveUpdates() (<-chan bool, func()) {
	return s.dnsActive.Subscribe()
}

func (s *DeviceStore) run() {
	ctx := context.Background()

	refreshes := stream.Debounce(s.done, s.refreshes, s.cfg.RefreshDebounce, nil)
	retentions := stream.Debounce(s.done, s.retentions, s.cfg.UserDebounce, nil)

	for {
		select {
		case <-s.done:
			return
		case _, ok := <-refreshes:
			if !ok {
				return
			}
			s.refresh(ctx)
		case policy, ok := <-retentions:
			if !ok {
				return
			}
			s.writeRetention(ctx, policy)
		case <-s.foreground:
			s.refreshDNSStatus(ctx)
		case id, ok := <-s.accountIDs:
			if !ok {
				s.accountIDs = nil
				continue
			}
			s.log.Debug(ctx, "account changed, refreshing device", "account_id", id)
			stream.Offer(s.refreshes, struct{}{})
		}
	}
}

func (s *DeviceStore) refresh(ctx context.Context) {
	device, err := s.api.GetDevice(ctx)
	deviceRefreshes.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.log.Error(ctx, "device fetch failed", "error", err)
		s.notifier.Fail(OpDeviceRefresh, err, true)
		return
	}

	s.device.Publish(device)
	s.blocklists.Publish(device.Lists)
	s.retention.Publish(device.Retention)
	s.paused.Publish(device.Paused)

	if s.deviceTag.Publish(device.Tag) {
		s.saveDNSProfile(ctx, device.Tag)
	}

	s.notifier.Succeed(OpDeviceRefresh)
}

func (s *DeviceStore) writeRetention(ctx context.Context, policy models.RetentionPolicy) {
	err := s.api.SetRetention(ctx, policy)
	retentionWrites.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.log.Error(ctx, "retention write failed", "policy", string(policy), "error", err)
		s.notifier.Fail(OpRetentionWrite, err, true)
	} else {
		s.notifier.Succeed(OpRetentionWrite)
	}

	// Reconcile against authoritative state regardless of outcome.
	stream.Offer(s.refreshes, struct{}{})
}

// saveDNSProfile pushes the new tag to the OS integration. Fire-and-forget
// from the pipeline's perspective; failures surface through the notifier.
func (s *DeviceStore) saveDNSProfile(ctx context.Context, tag string) {
	err := s.dns.SaveProfile(ctx, tag, s.cfg.DeviceName)
	dnsProfileSaves.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.log.Error(ctx, "dns profile save failed", "tag", tag, "error", err)
		s.notifier.Fail(OpDNSProfileSave, err, true)
		return
	}
	s.log.Info(ctx, "dns profile saved", "tag", tag)
}

func (s *DeviceStore) refreshDNSStatus(ctx context.Context) {
	active, err := s.dns.IsProfileActive(ctx)
	if err != nil {
		s.log.Warn(ctx, "dns profile status query failed", "error", err)
		s.notifier.Fail(OpDNSProfileSave, err, false)
		return
	}
	s.dnsActive.Publish(active)
}
