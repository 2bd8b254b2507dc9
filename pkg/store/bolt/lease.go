package bolt

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Leases live in the same graph as the data, on their own label, so that a
// lock survives worker restarts and is visible to every harvester sharing
// the backend.

const tryLeaseQuery = `
MERGE (l:RicgraphLease {key: $key})
WITH l, (l.token IS NULL OR l.token = $token OR l.expires < $now) AS free
SET l.token = CASE WHEN free THEN $token ELSE l.token END,
    l.expires = CASE WHEN free THEN $expires ELSE l.expires END
RETURN free AS acquired
`

func (s *Store) TryLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := time.Now()
	records, err := s.run(ctx, tryLeaseQuery, map[string]any{
		"key":     key,
		"token":   token,
		"now":     now.UnixMilli(),
		"expires": now.Add(ttl).UnixMilli(),
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}
	acquired, _, err := neo4j.GetRecordValue[bool](records[0], "acquired")
	if err != nil {
		return false, err
	}
	return acquired, nil
}

const renewLeaseQuery = `
MATCH (l:RicgraphLease {key: $key})
WHERE l.token = $token
SET l.expires = $expires
RETURN l.key
`

func (s *Store) RenewLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	records, err := s.run(ctx, renewLeaseQuery, map[string]any{
		"key":     key,
		"token":   token,
		"expires": time.Now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

const releaseLeaseQuery = `
MATCH (l:RicgraphLease {key: $key})
WHERE l.token = $token
DELETE l
`

func (s *Store) ReleaseLease(ctx context.Context, key, token string) error {
	_, err := s.run(ctx, releaseLeaseQuery, map[string]any{
		"key":   key,
		"token": token,
	})
	return err
}
