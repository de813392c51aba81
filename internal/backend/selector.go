package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// FlagKey is where the storage-method flag document lives in whichever
// backend holds it.
const FlagKey = "storage-method.json"

// Flag is the durable document naming the authoritative substrate. It is
// read once at startup, before any other store operation.
type Flag struct {
	StorageMethod Method    `json:"storage-method"`
	ConfigVersion string    `json:"config-version"`
	AppVersion    string    `json:"app-version"`
	CreatedTime   time.Time `json:"created-time"`
	UpdatedTime   time.Time `json:"updated-time"`
}

// Selector decides which backend is authoritative and keeps the decision
// durable.
//
// Bootstrapping is circular on its face: a backend is needed to learn
// which backend to use. The selector breaks the cycle with an ordered
// probe: the flag is looked for on the directory backend first, then the
// flat keyed backend, and when neither yields it the selector falls back
// to a non-persistent in-memory backend and logs a degraded-mode warning.
//
// Selector methods are safe for concurrent use.
type Selector struct {
	mu       sync.Mutex
	fs       Adapter
	kv       Adapter
	log      *slog.Logger
	now      func() time.Time
	appVer   string
	cfgVer   string
	probed   bool
	active   Adapter
	degraded bool
	flag     Flag
}

// SelectorOptions configures a Selector. Zero values pick sane defaults.
type SelectorOptions struct {
	AppVersion    string
	ConfigVersion string
	Logger        *slog.Logger
	Now           func() time.Time
}

// NewSelector creates a selector over the two durable adapters. Either
// adapter may be nil when its substrate failed to open; the probe order
// simply skips it.
func NewSelector(fs, kv Adapter, opts SelectorOptions) *Selector {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Selector{
		fs:     fs,
		kv:     kv,
		log:    opts.Logger,
		now:    opts.Now,
		appVer: opts.AppVersion,
		cfgVer: opts.ConfigVersion,
	}
}

// Active returns the authoritative adapter, probing on first call.
//
// The returned error is nil even in degraded mode: a missing flag plus a
// writable backend means a fresh install, and no working backend at all
// still yields the in-memory fallback rather than failing the caller.
func (s *Selector) Active(ctx context.Context) (Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probed {
		s.bootstrap(ctx)
		s.probed = true
	}
	return s.active, nil
}

// ActiveMethod returns the method of the active adapter. Probes if needed.
func (s *Selector) ActiveMethod(ctx context.Context) Method {
	a, _ := s.Active(ctx)
	return a.Method()
}

// Degraded reports whether the selector fell back to the non-persistent
// in-memory backend.
func (s *Selector) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Flag returns a copy of the current flag document.
func (s *Selector) Flag() Flag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flag
}

// ByMethod returns the adapter for a method, or nil when its substrate
// never opened.
func (s *Selector) ByMethod(m Method) Adapter {
	switch m {
	case MethodDirectory:
		return s.fs
	case MethodFlatKeyed:
		return s.kv
	default:
		return nil
	}
}

// bootstrap runs the ordered probe. Caller holds s.mu.
func (s *Selector) bootstrap(ctx context.Context) {
	var firstWritable Adapter
	for _, ad := range []Adapter{s.fs, s.kv} {
		if ad == nil {
			continue
		}
		data, err := ad.ReadKey(ctx, FlagKey)
		switch {
		case err == nil:
			var flag Flag
			if jsonErr := json.Unmarshal(data, &flag); jsonErr != nil || !flag.StorageMethod.Valid() {
				s.log.Warn("storage-method flag unreadable, probing next backend",
					"backend", ad.Method(), "error", jsonErr)
				continue
			}
			if chosen := s.ByMethod(flag.StorageMethod); chosen != nil {
				s.flag = flag
				s.active = chosen
				return
			}
			s.log.Warn("flagged backend did not open, probing next",
				"method", flag.StorageMethod)
		case errors.Is(err, ErrKeyAbsent):
			if firstWritable == nil {
				firstWritable = ad
			}
		default:
			s.log.Warn("backend probe failed", "backend", ad.Method(), "error", err)
		}
	}

	if firstWritable != nil {
		// Fresh install: no flag anywhere but a substrate answered.
		// Default to the flat keyed backend when it opened.
		chosen := firstWritable
		if s.kv != nil {
			chosen = s.kv
		}
		now := s.now()
		s.flag = Flag{
			StorageMethod: chosen.Method(),
			ConfigVersion: s.cfgVer,
			AppVersion:    s.appVer,
			CreatedTime:   now,
			UpdatedTime:   now,
		}
		s.active = chosen
		if err := s.persistFlag(ctx); err != nil {
			s.log.Warn("could not persist initial storage-method flag", "error", err)
		}
		return
	}

	s.log.Warn("no storage backend available, running non-persistent in-memory fallback")
	s.degraded = true
	s.active = NewMemory()
	now := s.now()
	s.flag = Flag{
		StorageMethod: MethodFlatKeyed,
		ConfigVersion: s.cfgVer,
		AppVersion:    s.appVer,
		CreatedTime:   now,
		UpdatedTime:   now,
	}
}

// SetActive switches the authoritative backend to method, persisting the
// updated flag through whichever backend is writable. It returns the
// previous and new adapters so the caller can run the record migration
// between them.
func (s *Selector) SetActive(ctx context.Context, method Method) (previous, next Adapter, err error) {
	if !method.Valid() {
		return nil, nil, fmt.Errorf("unknown storage method %q", method)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.probed {
		s.bootstrap(ctx)
		s.probed = true
	}

	next = s.ByMethod(method)
	if next == nil {
		return nil, nil, fmt.Errorf("%w: %s did not open", ErrUnavailable, method)
	}

	previous = s.active
	s.active = next
	s.degraded = false
	now := s.now()
	if s.flag.CreatedTime.IsZero() {
		s.flag.CreatedTime = now
	}
	s.flag.StorageMethod = method
	s.flag.ConfigVersion = s.cfgVer
	s.flag.AppVersion = s.appVer
	s.flag.UpdatedTime = now

	if err := s.persistFlag(ctx); err != nil {
		return nil, nil, err
	}
	return previous, next, nil
}

// persistFlag writes the flag through the first writable backend in probe
// order. Caller holds s.mu.
func (s *Selector) persistFlag(ctx context.Context) error {
	data, err := json.MarshalIndent(s.flag, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal storage-method flag: %w", err)
	}

	var lastErr error
	for _, ad := range []Adapter{s.fs, s.kv} {
		if ad == nil {
			continue
		}
		if err := ad.WriteKey(ctx, FlagKey, data); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return fmt.Errorf("persist storage-method flag: %w", lastErr)
}
