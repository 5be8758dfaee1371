package taskgraph

import (
	"fmt"
	"slices"

	"github.com/gomlx/taskgraph/types"
	"github.com/pkg/errors"
)

// TaskEdge connects two task nodes and carries the registers the source hands to the destination.
type TaskEdge struct {
	src, dst TaskNode
	kind     types.EdgeKind

	registers map[string]*Register
	roles     []string
}

// Src returns the source (producer side) of the edge.
func (e *TaskEdge) Src() TaskNode { return e.src }

// Dst returns the destination (consumer side) of the edge.
func (e *TaskEdge) Dst() TaskNode { return e.dst }

// Kind returns whether the edge is a generic data edge or a ring link.
func (e *TaskEdge) Kind() types.EdgeKind { return e.kind }

// AddRegister binds the register to the edge under the producer's role name.
func (e *TaskEdge) AddRegister(role string, r *Register) error {
	if existing, found := e.registers[role]; found {
		if existing == r {
			return nil
		}
		return errors.Errorf("edge %s already carries %s as %q, can't add %s", e, existing, role, r)
	}
	e.registers[role] = r
	e.roles = append(e.roles, role)
	return nil
}

// GetRegister returns the register bound under role, or nil.
func (e *TaskEdge) GetRegister(role string) *Register {
	return e.registers[role]
}

// Roles returns the role names of the registers bound to the edge, in the order they were added.
func (e *TaskEdge) Roles() []string {
	return slices.Clone(e.roles)
}

// GetSoleRegister returns the only register bound to the edge.
func (e *TaskEdge) GetSoleRegister() (*Register, error) {
	if len(e.roles) != 1 {
		return nil, errors.Errorf("edge %s carries %d registers, expected exactly one", e, len(e.roles))
	}
	return e.registers[e.roles[0]], nil
}

// String implements fmt.Stringer.
func (e *TaskEdge) String() string {
	return fmt.Sprintf("%s->%s(%s)", e.src.Name(), e.dst.Name(), e.kind)
}
