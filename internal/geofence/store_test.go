package geofence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/geofence-agent/internal/models"
	"github.com/benmeehan/geofence-agent/internal/state_managers"
	"github.com/benmeehan/geofence-agent/pkg/file"
	"github.com/benmeehan/geofence-agent/tests/mocks"
)

func newFileStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geofence.json")
	sm, err := state_managers.NewFileStateManager(path, file.NewFileService(), zerolog.Nop())
	require.NoError(t, err)
	return NewStore(sm, zerolog.Nop()), path
}

// orderedKV records the order of single-key writes.
type orderedKV struct {
	mu     sync.Mutex
	values map[string]string
	writes []string
	failOn string
}

func newOrderedKV() *orderedKV {
	return &orderedKV{values: make(map[string]string)}
}

func (o *orderedKV) Get(_ context.Context, key string) (string, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.values[key]
	return v, ok, nil
}

func (o *orderedKV) Set(_ context.Context, key, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if key == o.failOn {
		return errors.New("write failed")
	}
	o.values[key] = value
	o.writes = append(o.writes, key+"="+value)
	return nil
}

func TestStore_LoadNeverConfigured(t *testing.T) {
	store, _ := newFileStore(t)

	region, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	want := NewRegion(models.Coordinates{Latitude: 37.7749, Longitude: -122.4194}, 500)

	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestStore_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	region := NewRegion(models.Coordinates{Latitude: 1.25, Longitude: 2.5}, 75)

	require.NoError(t, store.Save(ctx, region))
	require.NoError(t, store.Save(ctx, region))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, region, *got)
}

func TestStore_LastSaveWins(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	a := NewRegion(models.Coordinates{Latitude: 10, Longitude: 20}, 100)
	b := NewRegion(models.Coordinates{Latitude: -33.8688, Longitude: 151.2093}, 2500)

	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, *got)
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)
	region := NewRegion(models.Coordinates{Latitude: 48.1173, Longitude: 11.516666}, 42.5)
	require.NoError(t, store.Save(ctx, region))

	sm, err := state_managers.NewFileStateManager(path, file.NewFileService(), zerolog.Nop())
	require.NoError(t, err)
	got, err := NewStore(sm, zerolog.Nop()).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, region, *got)
}

func TestStore_SaveRejectsInvalidRegion(t *testing.T) {
	kv := new(mocks.MockKeyValueStore)
	store := NewStore(kv, zerolog.Nop())

	err := store.Save(context.Background(), NewRegion(models.Coordinates{Latitude: 91}, 10))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonOutOfRange, verr.Reason)
	kv.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_FlagWrittenLastWithoutBatch(t *testing.T) {
	kv := newOrderedKV()
	store := NewStore(kv, zerolog.Nop())

	require.NoError(t, store.Save(context.Background(), NewRegion(models.Coordinates{Latitude: 1, Longitude: 2}, 3)))

	assert.Equal(t, []string{
		"is_location_available=false",
		"latitude=1",
		"longitude=2",
		"radius_of_geofence=3",
		"is_location_available=true",
	}, kv.writes)
}

func TestStore_InterruptedSaveReadsAsUnconfigured(t *testing.T) {
	ctx := context.Background()
	kv := newOrderedKV()
	store := NewStore(kv, zerolog.Nop())
	require.NoError(t, store.Save(ctx, NewRegion(models.Coordinates{Latitude: 1, Longitude: 2}, 3)))

	kv.failOn = "radius_of_geofence"
	err := store.Save(ctx, NewRegion(models.Coordinates{Latitude: 5, Longitude: 6}, 7))
	require.Error(t, err)

	region, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestStore_LoadFlagFalse(t *testing.T) {
	kv := new(mocks.MockKeyValueStore)
	kv.On("Get", mock.Anything, "is_location_available").Return("false", true, nil)

	region, err := NewStore(kv, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, region)
	kv.AssertNumberOfCalls(t, "Get", 1)
}

func TestStore_LoadCorruptValues(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"bad flag", map[string]string{"is_location_available": "maybe"}},
		{"missing latitude", map[string]string{"is_location_available": "true", "longitude": "1", "radius_of_geofence": "1"}},
		{"non-numeric longitude", map[string]string{"is_location_available": "true", "latitude": "1", "longitude": "east", "radius_of_geofence": "1"}},
		{"zero radius", map[string]string{"is_location_available": "true", "latitude": "1", "longitude": "1", "radius_of_geofence": "0"}},
		{"latitude out of range", map[string]string{"is_location_available": "true", "latitude": "120", "longitude": "1", "radius_of_geofence": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := newOrderedKV()
			kv.values = tt.values

			region, err := NewStore(kv, zerolog.Nop()).Load(context.Background())
			assert.Nil(t, region)
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestStore_LoadBackendError(t *testing.T) {
	kv := new(mocks.MockKeyValueStore)
	kv.On("Get", mock.Anything, "is_location_available").Return("", false, errors.New("connection reset"))

	_, err := NewStore(kv, zerolog.Nop()).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorruptState)
}

func TestStore_UsesBatchWriter(t *testing.T) {
	sm := new(mocks.MockStateManager)
	sm.On("SetAll", mock.Anything, map[string]string{
		"latitude":              "37.7749",
		"longitude":             "-122.4194",
		"radius_of_geofence":    "500",
		"is_location_available": "true",
	}).Return(nil)

	err := NewStore(sm, zerolog.Nop()).Save(context.Background(), NewRegion(models.Coordinates{Latitude: 37.7749, Longitude: -122.4194}, 500))
	require.NoError(t, err)
	sm.AssertExpectations(t)
	sm.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestStore_ConcurrentLoadsNeverSeeMixedRegion(t *testing.T) {
	ctx := context.Background()
	store, _ := newFileStore(t)
	a := NewRegion(models.Coordinates{Latitude: 10, Longitude: 10}, 10)
	b := NewRegion(models.Coordinates{Latitude: 20, Longitude: 20}, 20)
	require.NoError(t, store.Save(ctx, a))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if i%2 == 0 {
				assert.NoError(t, store.Save(ctx, b))
			} else {
				assert.NoError(t, store.Save(ctx, a))
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got, err := store.Load(ctx)
			if !assert.NoError(t, err) || !assert.NotNil(t, got) {
				return
			}
			assert.True(t, got.Equal(a) || got.Equal(b), "mixed region %+v", *got)
		}
	}()
	wg.Wait()
}
