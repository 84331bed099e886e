// Package user derives the stable user identity, user properties, and the
// deterministic per-user random value used for variant bucketing.
package user

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nubrick/nubrick-go/internal/config"
	"github.com/nubrick/nubrick-go/internal/storage"
	"github.com/nubrick/nubrick-go/pkg/models"
)

// Durable KV keys owned by this package.
const (
	keyUserID    = "user_id"
	keyFirstSeen = "first_seen_at"
	keyLastSeen  = "last_seen_at"
	keyBootCount = "boot_count"
)

// User holds the stable identity and property state for the current
// device/user.
type User struct {
	kv storage.KVStore

	id        string
	firstSeen time.Time

	mu     sync.RWMutex
	custom map[string]models.UserProperty
}

// New loads the user from durable storage, generating a fresh id and
// first-seen timestamp on first run.
func New(ctx context.Context, kv storage.KVStore) (*User, error) {
	id, err := kv.Get(ctx, keyUserID)
	if errors.Is(err, storage.ErrNotFound) {
		id = uuid.New().String()
		if err := kv.Set(ctx, keyUserID, id); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	firstSeen := time.Now()
	raw, err := kv.Get(ctx, keyFirstSeen)
	if errors.Is(err, storage.ErrNotFound) {
		if err := kv.Set(ctx, keyFirstSeen, strconv.FormatInt(firstSeen.Unix(), 10)); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else if unix, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
		firstSeen = time.Unix(unix, 0)
	}

	return &User{
		kv:        kv,
		id:        id,
		firstSeen: firstSeen,
		custom:    make(map[string]models.UserProperty),
	}, nil
}

// ID returns the stable user id.
func (u *User) ID() string {
	return u.id
}

// SetProperty records a custom user property used in targeting.
func (u *User) SetProperty(name, value string, typ models.UserPropertyType) {
	if name == "" {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.custom[name] = models.UserProperty{Name: name, Value: value, Type: typ}
}

// RetentionDays returns whole days since the user was first seen.
func (u *User) RetentionDays(now time.Time) int {
	d := now.Sub(u.firstSeen)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// ComeBack stamps the user as active now and returns the retention day
// count. Called whenever the user returns to the app.
func (u *User) ComeBack(ctx context.Context) int {
	now := time.Now()
	_ = u.kv.Set(ctx, keyLastSeen, strconv.FormatInt(now.Unix(), 10))
	return u.RetentionDays(now)
}

// BootCount returns the persisted number of SDK initializations and
// increments it. The first boot returns 0.
func (u *User) BootCount(ctx context.Context) (int, error) {
	count := 0
	raw, err := u.kv.Get(ctx, keyBootCount)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	if err == nil {
		if n, perr := strconv.Atoi(raw); perr == nil {
			count = n
		}
	}
	if err := u.kv.Set(ctx, keyBootCount, strconv.Itoa(count+1)); err != nil {
		return 0, err
	}
	return count, nil
}

// Properties returns the user property set evaluated for the given seed.
// The seed only affects the userRnd property, so each config can bucket
// independently.
func (u *User) Properties(seed *int) []models.UserProperty {
	now := time.Now()
	props := []models.UserProperty{
		{Name: "userId", Value: u.id, Type: models.UserPropertyTypeString},
		{Name: "userRnd", Value: strconv.FormatFloat(u.NormalizedRnd(seed), 'f', -1, 64), Type: models.UserPropertyTypeDouble},
		{Name: "retentionPeriod", Value: strconv.Itoa(u.RetentionDays(now)), Type: models.UserPropertyTypeInteger},
		{Name: "bootingTime", Value: now.Format(time.RFC3339), Type: models.UserPropertyTypeTimestampz},
		{Name: "osName", Value: runtime.GOOS, Type: models.UserPropertyTypeString},
		{Name: "sdkVersion", Value: config.Version, Type: models.UserPropertyTypeSemver},
	}

	u.mu.RLock()
	defer u.mu.RUnlock()
	names := make([]string, 0, len(u.custom))
	for name := range u.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		props = append(props, u.custom[name])
	}
	return props
}

// NormalizedRnd returns a deterministic value in [0,1) derived from the
// user id and the config seed. The same user sees the same value for the
// same seed across sessions; changing the seed re-rolls it.
func (u *User) NormalizedRnd(seed *int) float64 {
	s := 0
	if seed != nil {
		s = *seed
	}
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s:%d", u.id, s)
	return float64(h.Sum64()>>11) / float64(1<<53)
}
