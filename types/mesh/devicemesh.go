// Package mesh lays out the participants of a collective over a cluster of machines and devices.
//
// A DeviceMesh is a logical N-dimensional grid of participants, typically with axes
// {"machine", "device"}. The reduction groups along some axes are computed with DeviceMesh.ReduceGroups,
// and each group becomes one ring all-reduce.
package mesh

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/taskgraph/internal/utils"
	"github.com/pkg/errors"
)

// Default axis names used by the ring planner.
const (
	MachineAxis = "machine"
	DeviceAxis  = "device"
)

// DeviceMesh defines the logical topology of the participants of a collective.
type DeviceMesh struct {
	name       string
	axesNames  []string
	axesSizes  []int
	nameToAxis map[string]int
	numDevices int

	// parallelIDs maps the flat position in the mesh to the participant's parallel id.
	// If nil, the assignment is sequential.
	parallelIDs []int
}

// NewDeviceMesh creates a new logical topology.
//
//   - name: the name of the mesh, it must be a valid identifier (see utils.NormalizeIdentifier).
//   - axesSizes: the number of participants along each mesh axis, one value per axis.
//   - axesNames: the names of the mesh axes, one value per axis.
func NewDeviceMesh(name string, axesSizes []int, axesNames []string) (*DeviceMesh, error) {
	if len(axesSizes) != len(axesNames) {
		return nil, errors.Errorf("axesSizes and axesNames must have the same length, got %d and %d",
			len(axesSizes), len(axesNames))
	}
	if len(axesSizes) == 0 {
		return nil, errors.New("DeviceMesh axesSizes cannot be empty")
	}
	if name != utils.NormalizeIdentifier(name) {
		return nil, errors.Errorf("DeviceMesh name %q is not a valid identifier, suggestion %q",
			name, utils.NormalizeIdentifier(name))
	}

	numDevices := 1
	nameToAxis := make(map[string]int, len(axesSizes))
	for i, axisName := range axesNames {
		if axisName == "" {
			return nil, errors.Errorf("DeviceMesh axis name at index %d cannot be empty", i)
		}
		if _, found := nameToAxis[axisName]; found {
			return nil, errors.Errorf("DeviceMesh axis name %q is duplicated", axisName)
		}
		if axesSizes[i] <= 0 {
			return nil, errors.Errorf("DeviceMesh axis %q must have a positive size, got %d", axisName, axesSizes[i])
		}
		nameToAxis[axisName] = i
		numDevices *= axesSizes[i]
	}
	return &DeviceMesh{
		name:       name,
		axesNames:  slices.Clone(axesNames),
		axesSizes:  slices.Clone(axesSizes),
		nameToAxis: nameToAxis,
		numDevices: numDevices,
	}, nil
}

// NewClusterMesh creates a mesh with the axes {MachineAxis, DeviceAxis}.
func NewClusterMesh(name string, numMachines, devicesPerMachine int) (*DeviceMesh, error) {
	return NewDeviceMesh(name, []int{numMachines, devicesPerMachine}, []string{MachineAxis, DeviceAxis})
}

func (m *DeviceMesh) Name() string {
	return m.name
}

// NumDevices returns the total number of participants in the mesh.
func (m *DeviceMesh) NumDevices() int {
	return m.numDevices
}

// Rank returns the number of axes in the mesh.
func (m *DeviceMesh) Rank() int {
	return len(m.axesSizes)
}

// AxesNames returns a copy of the mesh's axis names.
func (m *DeviceMesh) AxesNames() []string {
	return slices.Clone(m.axesNames)
}

// AxisSize returns the number of participants along the given mesh axis.
func (m *DeviceMesh) AxisSize(axisName string) (int, error) {
	idx, found := m.nameToAxis[axisName]
	if !found {
		return 0, errors.Errorf("mesh axis %q not found", axisName)
	}
	return m.axesSizes[idx], nil
}

// String implements the fmt.Stringer interface.
func (m *DeviceMesh) String() string {
	var sb strings.Builder
	sb.WriteString("DeviceMesh(")
	sb.WriteString(m.name)
	sb.WriteString(", {")
	for i, name := range m.axesNames {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%s: %d", name, m.axesSizes[i])
	}
	sb.WriteString("})")
	return sb.String()
}

// SetParallelIDs sets the parallel id of each position of the mesh.
//
// It must be a permutation of 0..NumDevices()-1. An empty list resets to the sequential assignment.
func (m *DeviceMesh) SetParallelIDs(ids ...int) error {
	if len(ids) == 0 {
		m.parallelIDs = nil
		return nil
	}
	if len(ids) != m.numDevices {
		return errors.Errorf("parallel ids must have %d elements, got %d", m.numDevices, len(ids))
	}
	seen := utils.MakeSet[int](m.numDevices)
	for _, id := range ids {
		if id < 0 || id >= m.numDevices {
			return errors.Errorf("parallel ids must be between 0 and %d, got %d", m.numDevices-1, id)
		}
		if seen.Has(id) {
			return errors.Errorf("parallel id #%d is duplicated", id)
		}
		seen.Insert(id)
	}
	m.parallelIDs = slices.Clone(ids)
	return nil
}

// ParallelID returns the parallel id of the participant at the flat position flatIdx.
func (m *DeviceMesh) ParallelID(flatIdx int) int {
	if m.parallelIDs == nil {
		return flatIdx
	}
	return m.parallelIDs[flatIdx]
}

// Coordinates converts a flat position in the mesh to its per-axis indices.
func (m *DeviceMesh) Coordinates(flatIdx int) ([]int, error) {
	if flatIdx < 0 || flatIdx >= m.numDevices {
		return nil, errors.Errorf("flat index %d out of range for %s", flatIdx, m)
	}
	indices := make([]int, len(m.axesSizes))
	remaining := flatIdx
	for i := len(m.axesSizes) - 1; i >= 0; i-- {
		indices[i] = remaining % m.axesSizes[i]
		remaining /= m.axesSizes[i]
	}
	return indices, nil
}

// ReduceGroups returns the groups of flat positions that reduce together along the given axes.
//
// The other axes are split into different groups.
//
// Example:
//
//	m := NewClusterMesh("cluster", 2, 2)
//	perMachine, _ := m.ReduceGroups([]string{"device"})             // -> [][]int{{0, 1}, {2, 3}}
//	crossMachine, _ := m.ReduceGroups([]string{"machine"})          // -> [][]int{{0, 2}, {1, 3}}
//	global, _ := m.ReduceGroups([]string{"machine", "device"})      // -> [][]int{{0, 1, 2, 3}}
func (m *DeviceMesh) ReduceGroups(axes []string) ([][]int, error) {
	axisIndices := make([]int, 0, len(axes))
	axisSet := utils.MakeSet[int](len(axes))
	for _, axis := range axes {
		idx, found := m.nameToAxis[axis]
		if !found {
			return nil, errors.Errorf("axis %q not found in mesh", axis)
		}
		if axisSet.Has(idx) {
			return nil, errors.Errorf("axis %q is duplicated: each axis can only appear once", axis)
		}
		axisIndices = append(axisIndices, idx)
		axisSet.Insert(idx)
	}
	nonAxisIndices := make([]int, 0, len(m.axesSizes)-len(axisIndices))
	for i := range m.axesSizes {
		if !axisSet.Has(i) {
			nonAxisIndices = append(nonAxisIndices, i)
		}
	}

	groupSize := 1
	for _, idx := range axisIndices {
		groupSize *= m.axesSizes[idx]
	}
	groups := make([][]int, m.numDevices/groupSize)
	for i := range groups {
		groups[i] = make([]int, groupSize)
	}

	for flatIdx := 0; flatIdx < m.numDevices; flatIdx++ {
		indices, _ := m.Coordinates(flatIdx)
		groupIdx := 0
		multiplier := 1
		for i := len(nonAxisIndices) - 1; i >= 0; i-- {
			axisIdx := nonAxisIndices[i]
			groupIdx += indices[axisIdx] * multiplier
			multiplier *= m.axesSizes[axisIdx]
		}
		posInGroup := 0
		multiplier = 1
		for i := len(axisIndices) - 1; i >= 0; i-- {
			axisIdx := axisIndices[i]
			posInGroup += indices[axisIdx] * multiplier
			multiplier *= m.axesSizes[axisIdx]
		}
		groups[groupIdx][posInGroup] = flatIdx
	}
	return groups, nil
}
