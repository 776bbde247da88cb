package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbsent = errors.New("absent")

type shopFixture struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestLoadFixtureJSON(t *testing.T) {
	path := WriteTempFile(t, "shops.json", []byte(`[{"id":1,"name":"Tea House"},{"id":2,"name":"Noodle Bar"}]`))

	var shops []shopFixture
	LoadFixtureJSON(t, path, &shops)

	require.Len(t, shops, 2)
	assert.Equal(t, "Noodle Bar", shops[1].Name)
}

func TestFixturePath(t *testing.T) {
	assert.Equal(t, "testdata/shops.json", FixturePath("shops.json"))
}

func TestCountingLoader_CountsCalls(t *testing.T) {
	loader := NewCountingLoader[int64, shopFixture](errAbsent)
	loader.Put(1, shopFixture{ID: 1, Name: "Tea House"})

	ctx := context.Background()
	rec, err := loader.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Tea House", rec.Name)

	_, err = loader.Load(ctx, 42)
	assert.ErrorIs(t, err, errAbsent)

	assert.Equal(t, 1, loader.Calls(1))
	assert.Equal(t, 1, loader.Calls(42))
	assert.Equal(t, 2, loader.Total())
}

func TestCountingLoader_FailWith(t *testing.T) {
	loader := NewCountingLoader[int64, shopFixture](errAbsent)
	loader.Put(1, shopFixture{ID: 1})

	boom := errors.New("db down")
	loader.FailWith(boom)
	_, err := loader.Load(context.Background(), 1)
	assert.ErrorIs(t, err, boom)

	loader.FailWith(nil)
	_, err = loader.Load(context.Background(), 1)
	assert.NoError(t, err)
}

func TestCountingLoader_Hold(t *testing.T) {
	loader := NewCountingLoader[int64, shopFixture](errAbsent)
	loader.Put(1, shopFixture{ID: 1})
	release := loader.Hold()

	done := make(chan error, 1)
	go func() {
		_, err := loader.Load(context.Background(), 1)
		done <- err
	}()

	select {
	case id := <-loader.Entered():
		assert.EqualValues(t, 1, id)
	case <-time.After(time.Second):
		t.Fatal("load never started")
	}

	select {
	case <-done:
		t.Fatal("load returned while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	assert.NoError(t, <-done)
}

func TestCountingLoader_HoldHonoursContext(t *testing.T) {
	loader := NewCountingLoader[int64, shopFixture](errAbsent)
	defer loader.Hold()()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loader.Load(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewClock(start)
	clock.Advance(30 * time.Second)

	assert.True(t, clock.Now().Equal(start.Add(30*time.Second)))
}

func TestNewRedis(t *testing.T) {
	client, mr := NewRedis(t)

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}
