package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	challengeKeyPrefix       = "otpc"
	challengeRecordVersionV1 = 1
	maxConsumeRetries        = 4
)

var (
	ErrChallengeNotFound         = errors.New("challenge not found")
	ErrChallengeCodeMismatch     = errors.New("challenge code mismatch")
	ErrChallengeAttemptsExceeded = errors.New("challenge attempts exceeded")
	ErrChallengeRedisUnavailable = errors.New("challenge redis unavailable")
)

// ChallengeRecord is one issued one-time code. Only the code hash is stored.
type ChallengeRecord struct {
	Purpose   uint8
	Phone     string
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
}

// ChallengeStore keeps issued challenges in Redis until they are consumed,
// burned by too many wrong codes, or expire.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = challengeKeyPrefix
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock returns a copy of s reading time from now.
func (s *ChallengeStore) WithClock(now func() time.Time) *ChallengeStore {
	cp := *s
	if now != nil {
		cp.now = now
	}
	return &cp
}

func (s *ChallengeStore) key(challengeID string) string {
	return s.prefix + ":" + challengeID
}

func (s *ChallengeStore) Save(ctx context.Context, challengeID string, record *ChallengeRecord, ttl time.Duration) error {
	encoded, err := encodeChallengeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(challengeID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

func (s *ChallengeStore) Delete(ctx context.Context, challengeID string) error {
	if err := s.redis.Del(ctx, s.key(challengeID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
	}
	return nil
}

// Consume checks providedHash against the challenge and deletes it on success.
//
// A challenge issued for another purpose or phone is burned. A wrong code bumps the
// attempt counter and keeps the remaining TTL; reaching maxAttempts burns it.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	challengeID string,
	purpose uint8,
	phone string,
	providedHash [32]byte,
	maxAttempts int,
) (*ChallengeRecord, error) {
	key := s.key(challengeID)

	for i := 0; i < maxConsumeRetries; i++ {
		var matched *ChallengeRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrChallengeNotFound
				}
				return err
			}

			record, err := decodeChallengeRecord(data)
			if err != nil {
				if delErr := burn(ctx, tx, key); delErr != nil {
					return delErr
				}
				return ErrChallengeNotFound
			}

			now := s.now()
			if now.Unix() > record.ExpiresAt {
				if err := burn(ctx, tx, key); err != nil {
					return err
				}
				return ErrChallengeNotFound
			}

			if record.Purpose != purpose || subtle.ConstantTimeCompare([]byte(record.Phone), []byte(phone)) != 1 {
				if err := burn(ctx, tx, key); err != nil {
					return err
				}
				return ErrChallengeNotFound
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					if err := burn(ctx, tx, key); err != nil {
						return err
					}
					return ErrChallengeAttemptsExceeded
				}

				ttl := time.Unix(record.ExpiresAt, 0).Sub(now)
				if ttl <= 0 {
					if err := burn(ctx, tx, key); err != nil {
						return err
					}
					return ErrChallengeNotFound
				}

				updated, err := encodeChallengeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrChallengeCodeMismatch
			}

			if err := burn(ctx, tx, key); err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, ErrChallengeNotFound),
				errors.Is(err, ErrChallengeCodeMismatch),
				errors.Is(err, ErrChallengeAttemptsExceeded):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrChallengeRedisUnavailable, err)
			}
		}
		return matched, nil
	}

	return nil, ErrChallengeNotFound
}

func burn(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodeChallengeRecord(record *ChallengeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(challengeRecordVersionV1)
	buf.WriteByte(record.Purpose)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Phone) > 255 {
		return nil, errors.New("challenge record phone too long")
	}
	buf.WriteByte(byte(len(record.Phone)))
	buf.WriteString(record.Phone)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeChallengeRecord(data []byte) (*ChallengeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersionV1 {
		return nil, errors.New("invalid challenge record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record := &ChallengeRecord{Purpose: purpose}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	phoneLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	phone := make([]byte, phoneLen)
	if _, err := io.ReadFull(reader, phone); err != nil {
		return nil, err
	}
	record.Phone = string(phone)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in challenge record")
	}
	return record, nil
}
