package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/memo-service/internal/domain"
	"github.com/spec-kit/memo-service/internal/repository"
	apperrors "github.com/spec-kit/memo-service/pkg/util/errorutil"
)

const directoryCachePrefix = "directory:"

// IdentityResolver maps an address to a directory identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, address string) (domain.Identity, error)
	ResolveOrRaw(ctx context.Context, address string) domain.Identity
}

// DirectoryService resolves addresses against the user store, with an
// optional Redis read-through cache. Both backends may be nil.
type DirectoryService struct {
	users  repository.UserRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewDirectoryService builds the service.
func NewDirectoryService(users repository.UserRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{users: users, cache: cache, ttl: ttl, logger: logger}
}

// Resolve returns the identity for address or an *UnresolvedIdentityError.
// Suspended accounts do not resolve.
func (d *DirectoryService) Resolve(ctx context.Context, address string) (domain.Identity, error) {
	address = domain.NormalizeAddress(address)
	if !domain.ValidAddress(address) {
		return domain.Identity{}, &apperrors.UnresolvedIdentityError{Address: address}
	}
	if identity, ok := d.cached(ctx, address); ok {
		return identity, nil
	}
	if d.users == nil {
		return domain.Identity{}, &apperrors.UnresolvedIdentityError{Address: address}
	}

	user, err := d.users.GetByEmail(ctx, address)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, &apperrors.UnresolvedIdentityError{Address: address}
	}
	if err != nil {
		return domain.Identity{}, err
	}
	if user.Status == domain.UserStatusSuspended {
		return domain.Identity{}, &apperrors.UnresolvedIdentityError{Address: address}
	}

	identity := user.Identity()
	d.store(ctx, identity)
	return identity, nil
}

// ResolveOrRaw never fails: misses and backend errors fall back to the raw address.
func (d *DirectoryService) ResolveOrRaw(ctx context.Context, address string) domain.Identity {
	identity, err := d.Resolve(ctx, address)
	if err != nil {
		d.logger.Debug("directory lookup fell back to raw address",
			zap.String("address", address), zap.Error(err))
		return domain.RawIdentity(address)
	}
	return identity
}

// Invalidate drops a cached entry after the directory changes.
func (d *DirectoryService) Invalidate(ctx context.Context, address string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Del(ctx, directoryCachePrefix+domain.NormalizeAddress(address)).Err(); err != nil {
		d.logger.Warn("directory cache invalidate failed", zap.Error(err))
	}
}

func (d *DirectoryService) cached(ctx context.Context, address string) (domain.Identity, bool) {
	if d.cache == nil {
		return domain.Identity{}, false
	}
	raw, err := d.cache.Get(ctx, directoryCachePrefix+address).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.logger.Warn("directory cache read failed", zap.Error(err))
		}
		return domain.Identity{}, false
	}
	var identity domain.Identity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return domain.Identity{}, false
	}
	return identity, true
}

func (d *DirectoryService) store(ctx context.Context, identity domain.Identity) {
	if d.cache == nil || d.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(identity)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, directoryCachePrefix+identity.Email, raw, d.ttl).Err(); err != nil {
		d.logger.Warn("directory cache write failed", zap.Error(err))
	}
}
