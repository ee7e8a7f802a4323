package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHotel struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func setupTestCache() (*Cache, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return New(db, zap.NewNop()), mock
}

func TestGetJSONHitAndMiss(t *testing.T) {
	c, mock := setupTestCache()
	defer mock.ClearExpect()

	ctx := context.Background()
	stored, _ := json.Marshal(fakeHotel{ID: 7, Name: "Seaside"})

	mock.ExpectGet("hotel:7").RedisNil()
	var miss fakeHotel
	assert.False(t, c.GetJSON(ctx, "hotel:7", &miss))

	mock.ExpectGet("hotel:7").SetVal(string(stored))
	var hit fakeHotel
	require.True(t, c.GetJSON(ctx, "hotel:7", &hit))
	assert.Equal(t, uint(7), hit.ID)
	assert.Equal(t, "Seaside", hit.Name)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJSONTreatsErrorsAsMiss(t *testing.T) {
	c, mock := setupTestCache()
	defer mock.ClearExpect()

	mock.ExpectGet("hotel:1").SetErr(errors.New("connection refused"))
	var dest fakeHotel
	assert.False(t, c.GetJSON(context.Background(), "hotel:1", &dest))

	mock.ExpectGet("hotel:2").SetVal("{not json")
	assert.False(t, c.GetJSON(context.Background(), "hotel:2", &dest))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetJSON(t *testing.T) {
	c, mock := setupTestCache()
	defer mock.ClearExpect()

	val := fakeHotel{ID: 3, Name: "Alpine"}
	raw, _ := json.Marshal(val)

	mock.ExpectSet("hotel:3", raw, DetailTTL).SetVal("OK")
	c.SetJSON(context.Background(), "hotel:3", val, DetailTTL)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidatePrefix(t *testing.T) {
	c, mock := setupTestCache()
	defer mock.ClearExpect()

	mock.ExpectScan(0, "hotels:*", 100).SetVal([]string{"hotels:rome:1:20", "hotels:rome:2:20"}, 0)
	mock.ExpectDel("hotels:rome:1:20", "hotels:rome:2:20").SetVal(2)

	c.InvalidatePrefix(context.Background(), "hotels:")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var dest fakeHotel
	assert.False(t, c.GetJSON(ctx, "hotel:1", &dest))
	c.SetJSON(ctx, "hotel:1", dest, time.Minute)
	c.Delete(ctx, "hotel:1")
	c.InvalidatePrefix(ctx, "hotels:")
}

func TestListKeysEmbedFilters(t *testing.T) {
	assert.NotEqual(t, HotelListKey("rome", 1, 20), HotelListKey("rome", 2, 20))
	assert.NotEqual(t, HotelListKey("rome", 1, 20), HotelListKey("paris", 1, 20))
	assert.Equal(t, "hotel:12", HotelKey(12))
}
