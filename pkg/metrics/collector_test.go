package metrics

import (
	"testing"

	"github.com/cuemby/gpubox/pkg/storage"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCollect(t *testing.T) {
	resetHealth()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.CreateContainer(&types.Container{Name: "a", SSHPort: 20000, JupyterPort: 20001}))
	require.NoError(t, store.CreateContainer(&types.Container{Name: "b", SSHPort: 20002, JupyterPort: 20003}))

	c := NewCollector(store)
	c.collect()

	assert.Equal(t, float64(2), testutil.ToFloat64(ContainersTotal))
	assert.Equal(t, float64(4), testutil.ToFloat64(PortsClaimed))
	assert.True(t, healthChecker.components[ComponentStore].Healthy)
}
