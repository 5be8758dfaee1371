package mesh_test

import (
	"testing"

	"github.com/gomlx/taskgraph/types/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceMesh(t *testing.T) {
	t.Run("NewDeviceMesh_Errors", func(t *testing.T) {
		tests := []struct {
			name      string
			sizes     []int
			axisNames []string
			wantErr   string
		}{
			{"mismatched lengths", []int{2, 4}, []string{"x"}, "must have the same length"},
			{"empty", []int{}, []string{}, "cannot be empty"},
			{"empty axis name", []int{4}, []string{""}, "axis name at index 0 cannot be empty"},
			{"duplicate axis names", []int{2, 4}, []string{"x", "x"}, `axis name "x" is duplicated`},
			{"zero size", []int{2, 0}, []string{"x", "y"}, "positive size"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m, err := mesh.NewDeviceMesh("mesh", tt.sizes, tt.axisNames)
				require.Error(t, err)
				assert.Nil(t, m)
				assert.Contains(t, err.Error(), tt.wantErr)
			})
		}
	})

	t.Run("ClusterMesh", func(t *testing.T) {
		m, err := mesh.NewClusterMesh("cluster", 2, 4)
		require.NoError(t, err)
		assert.Equal(t, 8, m.NumDevices())
		assert.Equal(t, 2, m.Rank())
		assert.Equal(t, []string{mesh.MachineAxis, mesh.DeviceAxis}, m.AxesNames())
		size, err := m.AxisSize(mesh.DeviceAxis)
		require.NoError(t, err)
		assert.Equal(t, 4, size)
		_, err = m.AxisSize("model")
		require.Error(t, err)
		assert.Equal(t, "DeviceMesh(cluster, {machine: 2, device: 4})", m.String())

		coords, err := m.Coordinates(6)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, coords)
		_, err = m.Coordinates(8)
		require.Error(t, err)
	})

	t.Run("ReduceGroups", func(t *testing.T) {
		m, err := mesh.NewClusterMesh("cluster", 2, 2)
		require.NoError(t, err)
		groups, err := m.ReduceGroups([]string{mesh.DeviceAxis})
		require.NoError(t, err)
		assert.Equal(t, [][]int{{0, 1}, {2, 3}}, groups)
		groups, err = m.ReduceGroups([]string{mesh.MachineAxis})
		require.NoError(t, err)
		assert.Equal(t, [][]int{{0, 2}, {1, 3}}, groups)
		groups, err = m.ReduceGroups([]string{mesh.MachineAxis, mesh.DeviceAxis})
		require.NoError(t, err)
		assert.Equal(t, [][]int{{0, 1, 2, 3}}, groups)
		_, err = m.ReduceGroups([]string{"device", "device"})
		require.Error(t, err)
	})

	t.Run("ParallelIDs", func(t *testing.T) {
		m, err := mesh.NewClusterMesh("cluster", 1, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, m.ParallelID(2))
		require.NoError(t, m.SetParallelIDs(2, 0, 1))
		assert.Equal(t, 1, m.ParallelID(2))
		require.Error(t, m.SetParallelIDs(0, 0, 1))
		require.Error(t, m.SetParallelIDs(0, 1))
		require.Error(t, m.SetParallelIDs(0, 1, 3))
		require.NoError(t, m.SetParallelIDs())
		assert.Equal(t, 2, m.ParallelID(2))
	})
}
