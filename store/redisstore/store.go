package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "gi"
	maxRetries    = 4

	fieldID                 = "id"
	fieldUsername           = "username"
	fieldPasswordHash       = "password_hash"
	fieldAuthKey            = "auth_key"
	fieldAccessToken        = "access_token"
	fieldResetToken         = "password_reset_token"
	fieldStatus             = "status"
	fieldCreatedAt          = "created_at"
	fieldUpdatedAt          = "updated_at"
	fieldAllowance          = "allowance"
	fieldAllowanceUpdatedAt = "allowance_updated_at"
)

// ErrContention is returned when a transaction lost every optimistic retry.
var ErrContention = errors.New("redis transaction contention")

// Store is a Redis-backed identity store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Store using prefix for every key ("gi" when empty).
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) idKey(id string) string { return s.prefix + ":id:" + id }
func (s *Store) usernameKey(username string) string { return s.prefix + ":u:" + username }
func (s *Store) accessTokenKey(token string) string { return s.prefix + ":at:" + token }
func (s *Store) resetTokenKey(token string) string { return s.prefix + ":prt:" + token }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", goIdentity.ErrStoreUnavailable, err)
}

// FindByID returns the ACTIVE identity with id.
func (s *Store) FindByID(ctx context.Context, id string) (goIdentity.IdentityRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.idKey(id)).Result()
	if err != nil {
		return goIdentity.IdentityRecord{}, unavailable(err)
	}
	if len(fields) == 0 {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}

	rec, err := decodeRecord(fields)
	if err != nil {
		return goIdentity.IdentityRecord{}, unavailable(err)
	}
	if !rec.Active() {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}
	return rec, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (goIdentity.IdentityRecord, error) {
	return s.findByIndex(ctx, s.usernameKey(username), func(r goIdentity.IdentityRecord) bool {
		return r.Username == username
	})
}

func (s *Store) FindByAccessToken(ctx context.Context, token string) (goIdentity.IdentityRecord, error) {
	return s.findByIndex(ctx, s.accessTokenKey(token), func(r goIdentity.IdentityRecord) bool {
		return r.AccessToken == token
	})
}

func (s *Store) FindByPasswordResetToken(ctx context.Context, token string) (goIdentity.IdentityRecord, error) {
	return s.findByIndex(ctx, s.resetTokenKey(token), func(r goIdentity.IdentityRecord) bool {
		return r.PasswordResetToken == token
	})
}

// findByIndex resolves an index key and rejects records whose field no
// longer matches, so a stale index entry never resolves.
func (s *Store) findByIndex(ctx context.Context, indexKey string, matches func(goIdentity.IdentityRecord) bool) (goIdentity.IdentityRecord, error) {
	id, err := s.redis.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
		}
		return goIdentity.IdentityRecord{}, unavailable(err)
	}

	rec, err := s.FindByID(ctx, id)
	if err != nil {
		return goIdentity.IdentityRecord{}, err
	}
	if !matches(rec) {
		return goIdentity.IdentityRecord{}, goIdentity.ErrNotFound
	}
	return rec, nil
}

// Save upserts rec and moves its index keys. The allowance fields are left
// untouched. A username owned by another id yields ErrIdentityExists.
func (s *Store) Save(ctx context.Context, rec goIdentity.IdentityRecord) error {
	if rec.ID == "" || rec.Username == "" {
		return fmt.Errorf("%w: id and username required", goIdentity.ErrStoreUnavailable)
	}

	key := s.idKey(rec.ID)
	userKey := s.usernameKey(rec.Username)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			owner, err := tx.Get(ctx, userKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && owner != rec.ID {
				return goIdentity.ErrIdentityExists
			}

			prev, err := tx.HMGet(ctx, key, fieldUsername, fieldAccessToken, fieldResetToken).Result()
			if err != nil {
				return err
			}
			prevUsername, prevAccess, prevReset := str(prev[0]), str(prev[1]), str(prev[2])

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, encodeRecord(rec))

				if prevUsername != "" && prevUsername != rec.Username {
					pipe.Del(ctx, s.usernameKey(prevUsername))
				}
				pipe.Set(ctx, userKey, rec.ID, 0)

				if prevAccess != "" && prevAccess != rec.AccessToken {
					pipe.Del(ctx, s.accessTokenKey(prevAccess))
				}
				if rec.AccessToken != "" {
					pipe.Set(ctx, s.accessTokenKey(rec.AccessToken), rec.ID, 0)
				}

				if prevReset != "" && prevReset != rec.PasswordResetToken {
					pipe.Del(ctx, s.resetTokenKey(prevReset))
				}
				if rec.PasswordResetToken != "" {
					pipe.Set(ctx, s.resetTokenKey(rec.PasswordResetToken), rec.ID, 0)
				}
				return nil
			})
			return err
		}, key, userKey)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, goIdentity.ErrIdentityExists) {
				return err
			}
			return unavailable(err)
		}
		return nil
	}

	return unavailable(ErrContention)
}

// LoadAllowance reads the stored bucket. found is false until the first
// SaveAllowance.
func (s *Store) LoadAllowance(ctx context.Context, id string) (goIdentity.Allowance, bool, error) {
	vals, err := s.redis.HMGet(ctx, s.idKey(id), fieldID, fieldAllowance, fieldAllowanceUpdatedAt).Result()
	if err != nil {
		return goIdentity.Allowance{}, false, unavailable(err)
	}
	if vals[0] == nil {
		return goIdentity.Allowance{}, false, goIdentity.ErrNotFound
	}
	if vals[1] == nil || vals[2] == nil {
		return goIdentity.Allowance{}, false, nil
	}

	remaining, err := strconv.Atoi(str(vals[1]))
	if err != nil {
		return goIdentity.Allowance{}, false, unavailable(err)
	}
	updatedAt, err := strconv.ParseInt(str(vals[2]), 10, 64)
	if err != nil {
		return goIdentity.Allowance{}, false, unavailable(err)
	}
	return goIdentity.Allowance{Remaining: remaining, UpdatedAt: updatedAt}, true, nil
}

// SaveAllowance writes both allowance fields in one HSET. The identity
// must exist.
func (s *Store) SaveAllowance(ctx context.Context, id string, a goIdentity.Allowance) error {
	if a.Remaining < 0 {
		return goIdentity.ErrInvalidAllowance
	}

	key := s.idKey(id)
	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, key).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				return goIdentity.ErrNotFound
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key,
					fieldAllowance, a.Remaining,
					fieldAllowanceUpdatedAt, a.UpdatedAt,
				)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, goIdentity.ErrNotFound) {
				return err
			}
			return unavailable(err)
		}
		return nil
	}

	return unavailable(ErrContention)
}

func encodeRecord(rec goIdentity.IdentityRecord) map[string]any {
	return map[string]any{
		fieldID:           rec.ID,
		fieldUsername:     rec.Username,
		fieldPasswordHash: rec.PasswordHash,
		fieldAuthKey:      rec.AuthKey,
		fieldAccessToken:  rec.AccessToken,
		fieldResetToken:   rec.PasswordResetToken,
		fieldStatus:       strconv.Itoa(int(rec.Status)),
		fieldCreatedAt:    strconv.FormatInt(rec.CreatedAt, 10),
		fieldUpdatedAt:    strconv.FormatInt(rec.UpdatedAt, 10),
	}
}

func decodeRecord(fields map[string]string) (goIdentity.IdentityRecord, error) {
	status, err := strconv.ParseUint(fields[fieldStatus], 10, 8)
	if err != nil {
		return goIdentity.IdentityRecord{}, fmt.Errorf("decode status: %w", err)
	}
	createdAt, err := parseInt(fields[fieldCreatedAt])
	if err != nil {
		return goIdentity.IdentityRecord{}, fmt.Errorf("decode created_at: %w", err)
	}
	updatedAt, err := parseInt(fields[fieldUpdatedAt])
	if err != nil {
		return goIdentity.IdentityRecord{}, fmt.Errorf("decode updated_at: %w", err)
	}

	rec := goIdentity.IdentityRecord{
		ID:                 fields[fieldID],
		Username:           fields[fieldUsername],
		PasswordHash:       fields[fieldPasswordHash],
		AuthKey:            fields[fieldAuthKey],
		AccessToken:        fields[fieldAccessToken],
		PasswordResetToken: fields[fieldResetToken],
		Status:             goIdentity.Status(status),
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}

	remaining, okRemaining := fields[fieldAllowance]
	stamp, okStamp := fields[fieldAllowanceUpdatedAt]
	if okRemaining && okStamp {
		r, err := strconv.Atoi(remaining)
		if err != nil {
			return goIdentity.IdentityRecord{}, fmt.Errorf("decode allowance: %w", err)
		}
		ts, err := parseInt(stamp)
		if err != nil {
			return goIdentity.IdentityRecord{}, fmt.Errorf("decode allowance_updated_at: %w", err)
		}
		rec.Allowance = &goIdentity.Allowance{Remaining: r, UpdatedAt: ts}
	}
	return rec, nil
}

func parseInt(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
