// ringplan compiles the task graph of ring all-reduces over a simulated cluster and reports the registers of
// every ring participant.
//
// Example:
//
//	ringplan -machines=2 -devices=4 -reduce_axes=device -tensors=1024,16x32 -links=2 -slice_factor=4 -p2p
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/taskgraph"
	"github.com/gomlx/taskgraph/config"
	"github.com/gomlx/taskgraph/hardware"
	"github.com/gomlx/taskgraph/internal/ringplan"
	"github.com/gomlx/taskgraph/types"
	"github.com/gomlx/taskgraph/types/mesh"
	"github.com/gomlx/taskgraph/types/shapes"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig      = flag.String("config", "", "YAML job configuration file. If empty the default configuration is used.")
	flagMachines    = flag.Int("machines", 1, "Number of machines in the cluster.")
	flagDevices     = flag.Int("devices", 4, "Number of accelerators per machine.")
	flagDeviceType  = flag.String("device_type", "gpu", "Device type of the participants: \"gpu\" or \"cpu\".")
	flagReduceAxes  = flag.String("reduce_axes", "", "Comma-separated mesh axes (\"machine\", \"device\") reduced together. Empty reduces all.")
	flagTensors     = flag.String("tensors", "1024", "Comma-separated tensors to reduce, each with dimensions separated by \"x\", e.g. \"1024,16x32\".")
	flagDType       = flag.String("dtype", "Float32", "DType of the tensors to reduce.")
	flagLinks       = flag.Int("links", 0, "Number of ring links. 0 uses the configuration value.")
	flagSliceFactor = flag.Int("slice_factor", 0, "Slices per rank segment and link. 0 uses the configuration value.")
	flagP2P         = flag.Bool("p2p", false, "Enable accelerator peer-to-peer send buffers. Overrides the configuration if set.")
	flagMemSize     = flag.String("reduce_mem_size", "", "Size of the shared arena of each reduction group participant, e.g. \"64MiB\". Overrides the configuration if set.")
	flagDump        = flag.Bool("dump", false, "Print the full compiled task graph.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(); err != nil {
		klog.Errorf("ringplan failed: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		cfg, err = config.Load(*flagConfig)
		if err != nil {
			return err
		}
	}
	var setFlags []string
	flag.Visit(func(f *flag.Flag) { setFlags = append(setFlags, f.Name) })
	if slices.Contains(setFlags, "p2p") {
		cfg.RingAllReduceEnableP2P = *flagP2P
	}
	if slices.Contains(setFlags, "reduce_mem_size") {
		memSize, err := parseMemSize(*flagMemSize)
		if err != nil {
			return err
		}
		cfg.ReduceMemSize = memSize
	}
	if *flagLinks > 0 {
		cfg.RingAllReduceNumLinks = *flagLinks
	}
	if *flagSliceFactor > 0 {
		cfg.RingAllReduceSliceFactor = *flagSliceFactor
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	deviceType, err := types.DeviceTypeString(*flagDeviceType)
	if err != nil {
		return errors.Wrapf(err, "invalid -device_type")
	}
	dtype, err := dtypes.DTypeString(*flagDType)
	if err != nil {
		return errors.Wrapf(err, "invalid -dtype")
	}
	tensors, err := parseTensors(*flagTensors, dtype)
	if err != nil {
		return err
	}
	var reduceAxes []string
	if *flagReduceAxes != "" {
		reduceAxes = strings.Split(*flagReduceAxes, ",")
	}

	deviceMesh, err := mesh.NewClusterMesh("cluster", *flagMachines, *flagDevices)
	if err != nil {
		return err
	}
	g, rings, err := ringplan.BuildAllReduceGraph(ringplan.Options{
		Name:        "ring_all_reduce",
		Mesh:        deviceMesh,
		ReduceAxes:  reduceAxes,
		Tensors:     tensors,
		NumLinks:    cfg.RingAllReduceNumLinks,
		SliceFactor: cfg.RingAllReduceSliceFactor,
		DeviceType:  deviceType,
	})
	if err != nil {
		return err
	}
	err = g.Compile(taskgraph.CompileOptions{
		Config: cfg,
		Device: hardware.NewSimulated(*flagDevices, true),
	})
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Ring all-reduce over %s: %d reduction groups", deviceMesh, len(rings))))
	for _, ring := range rings {
		fmt.Println(titleStyle.Render(fmt.Sprintf("Reduction group #%d (%d ranks)", ring.GroupID, len(ring.Nodes))))
		fmt.Println(ringTable(ring))
	}
	if *flagDump {
		fmt.Println(string(must.M1(g.Dump())))
	}
	return nil
}

// parseMemSize parses a human readable size, e.g. "64MiB" or "1GB".
func parseMemSize(size string) (int64, error) {
	memSize, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid -reduce_mem_size")
	}
	return int64(memSize), nil
}

// parseTensors parses a comma-separated list of shapes, each with dimensions separated by "x".
func parseTensors(list string, dtype dtypes.DType) ([]shapes.Shape, error) {
	var tensors []shapes.Shape
	for _, tensor := range strings.Split(list, ",") {
		tensor = strings.TrimSpace(tensor)
		if tensor == "" {
			continue
		}
		var dims []int
		for _, dimStr := range strings.Split(tensor, "x") {
			dim, err := strconv.Atoi(dimStr)
			if err != nil || dim < 1 {
				return nil, errors.Errorf("invalid dimension %q in tensor %q", dimStr, tensor)
			}
			dims = append(dims, dim)
		}
		tensors = append(tensors, shapes.Make(dtype, dims...))
	}
	if len(tensors) == 0 {
		return nil, errors.Errorf("no tensors to reduce in %q", list)
	}
	return tensors, nil
}

// ringTable lists the registers produced and consumed by each node of the ring.
func ringTable(ring ringplan.Ring) string {
	table := newPlainTable(true, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right, lipgloss.Left,
		lipgloss.Left, lipgloss.Right, lipgloss.Left)
	table.Headers("Node", "Placement", "Register", "Slots", "Memory", "Blob", "Size", "Shared")
	for _, node := range ring.Nodes {
		where := fmt.Sprintf("m%d/%s:%d", node.MachineID(), node.DeviceType(), node.DeviceID())
		addRow := func(role string, r *taskgraph.Register) {
			blob := "?"
			if shape, err := r.SoleBlobDesc(); err == nil {
				blob = shape.String()
			}
			shared := "-"
			if r.MemSharedID() >= 0 {
				shared = fmt.Sprintf("#%d+%s", r.MemSharedID(), humanize.IBytes(uint64(r.MemSharedOffset())))
			}
			table.Row(node.Name(), where, fmt.Sprintf("%s %s", role, r),
				fmt.Sprintf("%d..%d", r.MinRegisterNum(), r.MaxRegisterNum()), r.MemCase().String(),
				blob, humanize.IBytes(uint64(r.ByteSize())), shared)
		}
		for _, name := range node.ProducedRegisterNames() {
			addRow("produced", node.GetProducedRegister(name))
		}
		for _, name := range node.ConsumedRegisterNames() {
			for _, r := range node.ConsumedRegisters(name) {
				addRow("consumed "+name, r)
			}
		}
	}
	return table.Render()
}
