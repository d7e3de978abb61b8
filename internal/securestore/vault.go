package securestore

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/oeee-cafe/oeee-client/internal/kv"
	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/oeee-cafe/oeee-client/internal/metrics"
)

// Tier names the store a namespace ended up with.
type Tier string

const (
	TierEncrypted Tier = "encrypted"
	// TierRecreated is an encrypted store whose undecryptable contents were wiped.
	TierRecreated Tier = "recreated"
	TierPlain     Tier = "plain"
)

// Vault opens encrypted namespaces with one key shared by all of them.
type Vault struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	key     []byte
}

// NewVault loads the key from the first source that holds one. Only when no
// source does, a fresh key is stored in the first source that reported it
// missing or unreadable. With no usable source every namespace opens plain.
func NewVault(log *slog.Logger, m *metrics.Metrics, sources ...KeySource) *Vault {
	log = log.With(slog.String("op", "securestore.NewVault"))

	return &Vault{log: log, metrics: m, key: loadKey(log, sources)}
}

func loadKey(log *slog.Logger, sources []KeySource) []byte {
	writable := make([]bool, len(sources))

	for idx, source := range sources {
		key, err := source.GetKey()
		if err == nil {
			return key
		}
		writable[idx] = canRegenerate(err)
		log.Debug("stored key unavailable", "source", idx, "regenerate", writable[idx], sl.Err(err))
	}

	for idx, source := range sources {
		if !writable[idx] {
			continue
		}
		key, err := source.SetKey()
		if err == nil {
			log.Info("generated a new encryption key", "source", idx)
			return key
		}
		log.Warn("key source unusable", "source", idx, sl.Err(err))
	}

	return nil
}

// canRegenerate is true when a source answered but holds no usable key.
// Transient failures must not rotate the key: that would wipe every namespace.
func canRegenerate(err error) bool {
	return errors.Is(err, keyring.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, errInvalidKey)
}

// Open never fails: it returns an encrypted view of secure when possible,
// wipes secure when its contents cannot be decrypted, and otherwise falls back
// to plain (or to memory when plain is nil or unreadable).
func (v *Vault) Open(ctx context.Context, namespace string, secure, plain kv.Store) (kv.Store, Tier) {
	log := v.log.With(slog.String("namespace", namespace))

	if v.key != nil && secure != nil {
		store, tier, err := v.openEncrypted(ctx, secure)
		if err == nil {
			return v.opened(namespace, store, tier)
		}
		log.WarnContext(ctx, "Encrypted store unusable, falling back to plain storage", sl.Err(err))
	}

	if plain == nil {
		log.WarnContext(ctx, "No plain store configured, session data will not survive a restart")
		return v.opened(namespace, kv.NewMemoryStore(), TierPlain)
	}
	if _, err := plain.All(ctx); err != nil {
		log.WarnContext(ctx, "Plain store unreadable, clearing it", sl.Err(err))
		if err = plain.Clear(ctx); err != nil {
			log.ErrorContext(ctx, "Plain store unusable, using memory", sl.Err(err))
			return v.opened(namespace, kv.NewMemoryStore(), TierPlain)
		}
	}

	return v.opened(namespace, plain, TierPlain)
}

func (v *Vault) openEncrypted(ctx context.Context, secure kv.Store) (kv.Store, Tier, error) {
	store, err := kv.NewEncryptedStore(secure, v.key)
	if err != nil {
		return nil, "", err
	}

	_, err = store.All(ctx)
	if err == nil {
		return store, TierEncrypted, nil
	}
	if !errors.Is(err, kv.ErrCorrupt) {
		return nil, "", err
	}

	v.log.WarnContext(ctx, "Encrypted store holds undecryptable data, recreating it", sl.Err(err))
	if err = secure.Clear(ctx); err != nil {
		return nil, "", err
	}

	return store, TierRecreated, nil
}

func (v *Vault) opened(namespace string, store kv.Store, tier Tier) (kv.Store, Tier) {
	if v.metrics != nil {
		v.metrics.SecureStoreTier.WithLabelValues(namespace, string(tier)).Set(1)
	}

	return store, tier
}
