package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alumnet-hq/alumnet/modules/enrollment/domain/aggregates/capacity"
)

const (
	remainingKeyPrefix = "slot:remaining:"
	capacityKeyPrefix  = "slot:capacity:"
)

// Check-and-decrement in one script; Redis executes scripts atomically, so
// concurrent reservations cannot both see the last seat.
var reserveScript = redis.NewScript(`
local remaining = redis.call('GET', KEYS[1])
if not remaining then
	return -1
end
if tonumber(remaining) > 0 then
	redis.call('DECRBY', KEYS[1], 1)
	return 1
end
return 0
`)

// Release refills one seat, capped at the primed capacity.
var releaseScript = redis.NewScript(`
local remaining = redis.call('GET', KEYS[1])
local cap = redis.call('GET', KEYS[2])
if not remaining or not cap then
	return -1
end
if tonumber(remaining) < tonumber(cap) then
	redis.call('INCRBY', KEYS[1], 1)
end
return 1
`)

// RedisCapacityGate keeps the seat counter in Redis for hot registration
// paths. Unlike the Postgres gate it cannot join the request transaction,
// so the admission service compensates a failed insert with Release.
type RedisCapacityGate struct {
	client *redis.Client
}

func NewRedisCapacityGate(client *redis.Client) *RedisCapacityGate {
	return &RedisCapacityGate{client: client}
}

// Prime seeds the counters for a slot. Called when an offering slot is
// published or resynced from Postgres.
func (g *RedisCapacityGate) Prime(ctx context.Context, slotID uuid.UUID, totalCapacity, reserved int) error {
	remaining := totalCapacity - reserved
	if remaining < 0 {
		remaining = 0
	}
	if err := g.client.Set(ctx, remainingKeyPrefix+slotID.String(), remaining, 0).Err(); err != nil {
		return err
	}
	return g.client.Set(ctx, capacityKeyPrefix+slotID.String(), totalCapacity, 0).Err()
}

func (g *RedisCapacityGate) TryReserve(ctx context.Context, slotID uuid.UUID) (bool, error) {
	result, err := reserveScript.Run(ctx, g.client, []string{remainingKeyPrefix + slotID.String()}).Int()
	if err != nil {
		return false, fmt.Errorf("redis reserve: %w", err)
	}
	if result == -1 {
		return false, capacity.ErrPoolNotFound
	}
	return result == 1, nil
}

func (g *RedisCapacityGate) Release(ctx context.Context, slotID uuid.UUID) error {
	result, err := releaseScript.Run(ctx, g.client,
		[]string{remainingKeyPrefix + slotID.String(), capacityKeyPrefix + slotID.String()},
	).Int()
	if err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	if result == -1 {
		return capacity.ErrPoolNotFound
	}
	return nil
}
