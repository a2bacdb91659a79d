// Package rastermath applies per-block functions to large rasters without
// loading them into memory. The engine tiles the raster extent into windows,
// classifies each window against an optional mask, reads only the valid
// pixels of each block, hands them to user functions sequentially or through
// a worker pool, and scatters the results back into one or more output
// rasters, flushing periodically to bound memory.
package rastermath

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"rastermath/internal/sysinfo"
	"rastermath/pkg/raster"
)

// State tracks the engine life cycle. Completed and Failed are terminal;
// further runs need a fresh instance.
type State int

const (
	StateConfigured State = iota
	StatePlanned
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StatePlanned:
		return "planned"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Params configures an engine instance.
type Params struct {
	// BlockSize pins a square block side in pixels. Zero lets the memory
	// budget choose, bounded by the native tiling and DefaultBlockSize.
	BlockSize int

	// Workers is the compute pool size. Zero or negative means all cores
	// minus one, at least one. With one worker execution is sequential.
	Workers int

	// FlushInterval is the number of block writes between output flushes.
	// Zero means DefaultFlushInterval.
	FlushInterval int

	// ForceNativeBlocks makes the plan follow the input's native tiling even
	// when the memory budget would pick a smaller block.
	ForceNativeBlocks bool

	// FilterNoData drops pixel rows whose first band equals the input
	// nodata value, in addition to the mask.
	FilterNoData bool

	// Verbose enables progress logging.
	Verbose bool

	// Memory supplies the available-memory query. Nil means the system
	// provider.
	Memory MemoryProvider
}

// Block is one unit of work surfaced by the pull-style iterator. Batch is
// nil for skip blocks and for partial blocks whose every row was filtered
// out. Positions maps batch rows to offsets within the window; nil means the
// identity mapping.
type Block struct {
	Index     int
	Window    Window
	Class     BlockClass
	Batch     *mat.Dense
	Positions []int
}

// RasterParameters is the introspection snapshot collaborators use to size
// their own outputs. Block fields are zero before planning.
type RasterParameters struct {
	Width, Height int
	Bands         int // stacked across all inputs
	DataType      raster.DataType
	NoData        float64
	GeoTransform  raster.GeoTransform
	Projection    string
	BlockWidth    int
	BlockHeight   int
	Blocks        int
}

// RasterMath owns the raster handles, block plan, mask plan and worker pool
// for one processing run.
type RasterMath struct {
	params Params
	inputs []raster.Dataset
	bands  int

	mask      raster.Dataset
	maskValid ValidRange

	ops []operation

	state    State
	plan     []Window
	maskPlan MaskPlan
	blockW   int
	blockH   int
	cursor   int

	reader *blockReader
	writer *blockWriter
	memory MemoryProvider
}

// New validates that all inputs share the same geometry and returns an
// engine in the configured state. The engine owns the handles until Close.
func New(params Params, inputs ...raster.Dataset) (*RasterMath, error) {
	if len(inputs) == 0 {
		return nil, configErrorf("at least one input raster is required")
	}
	ref := inputs[0]
	if ref.Width() <= 0 || ref.Height() <= 0 {
		return nil, configErrorf("invalid raster dimensions %dx%d", ref.Width(), ref.Height())
	}
	bands := 0
	for i, ds := range inputs {
		if err := checkGeometry(ref, ds, fmt.Sprintf("input %d", i)); err != nil {
			return nil, err
		}
		bands += ds.Bands()
	}
	if params.Workers <= 0 {
		params.Workers = max(1, runtime.NumCPU()-1)
	}
	if params.FlushInterval <= 0 {
		params.FlushInterval = DefaultFlushInterval
	}
	mem := params.Memory
	if mem == nil {
		mem = sysinfo.SystemMemory{}
	}
	return &RasterMath{
		params: params,
		inputs: inputs,
		bands:  bands,
		state:  StateConfigured,
		memory: mem,
	}, nil
}

func checkGeometry(ref, ds raster.Dataset, label string) error {
	if ds.Width() != ref.Width() || ds.Height() != ref.Height() {
		return geometryErrorf("%s is %dx%d, expected %dx%d",
			label, ds.Width(), ds.Height(), ref.Width(), ref.Height())
	}
	if !ds.GeoTransform().ApproxEqual(ref.GeoTransform()) {
		return geometryErrorf("%s geotransform %v differs from %v",
			label, ds.GeoTransform(), ref.GeoTransform())
	}
	if p, rp := ds.Projection(), ref.Projection(); p != "" && rp != "" && p != rp {
		return geometryErrorf("%s projection %q differs from %q", label, p, rp)
	}
	return nil
}

// State returns the current life-cycle state.
func (rm *RasterMath) State() State { return rm.state }

// SetMask attaches a mask raster. Pixels whose mask value falls inside valid
// participate in processing; everything else is excluded. The mask must
// share the input geometry exactly.
func (rm *RasterMath) SetMask(mask raster.Dataset, valid ValidRange) error {
	if rm.state != StateConfigured {
		return configErrorf("mask must be attached before planning (state %s)", rm.state)
	}
	if err := checkGeometry(rm.inputs[0], mask, "mask"); err != nil {
		return err
	}
	rm.mask = mask
	rm.maskValid = valid
	return nil
}

// AddFunction registers a block function together with the raster it writes
// to. The output must share the input geometry, and the spec must agree with
// the output raster's own band count and data type.
func (rm *RasterMath) AddFunction(fn BlockFunc, out raster.Dataset, spec OutputSpec) error {
	if rm.state != StateConfigured {
		return configErrorf("functions must be added before planning (state %s)", rm.state)
	}
	if fn == nil {
		return configErrorf("nil block function")
	}
	if spec.Bands <= 0 {
		return configErrorf("output spec declares %d bands", spec.Bands)
	}
	if out.Bands() != spec.Bands {
		return configErrorf("output raster has %d bands, spec declares %d", out.Bands(), spec.Bands)
	}
	if out.DataType() != spec.DataType {
		return configErrorf("output raster is %v, spec declares %v", out.DataType(), spec.DataType)
	}
	if err := checkGeometry(rm.inputs[0], out, fmt.Sprintf("output %d", len(rm.ops))); err != nil {
		return err
	}
	rm.ops = append(rm.ops, operation{fn: fn, out: out, spec: spec})
	return nil
}

// Plan computes the block plan and mask plan. It is entered once; Reset
// returns to the configured state if the mask or block size must change.
func (rm *RasterMath) Plan() error {
	if rm.state != StateConfigured {
		return configErrorf("already planned (state %s)", rm.state)
	}
	ref := rm.inputs[0]
	rm.blockW, rm.blockH = rm.chooseBlockDims()
	plan, err := PlanBlocks(ref.Width(), ref.Height(), rm.blockW, rm.blockH)
	if err != nil {
		return err
	}
	rm.plan = plan

	if rm.mask != nil {
		mp, err := buildMaskPlan(rm.mask, plan, rm.maskValid)
		if err != nil {
			return err
		}
		rm.maskPlan = mp
	} else {
		rm.maskPlan = allFullPlan(len(plan))
	}

	rm.reader = &blockReader{
		inputs:       rm.inputs,
		bands:        rm.bands,
		filterNoData: rm.params.FilterNoData,
		nodata:       ref.NoData(),
	}
	rm.writer = &blockWriter{flushEvery: rm.params.FlushInterval}
	rm.cursor = 0
	rm.state = StatePlanned

	rm.logf("planned %d blocks of %dx%d over %dx%d (%d skipped by mask)",
		len(plan), rm.blockW, rm.blockH, ref.Width(), ref.Height(), rm.skipCount())
	return nil
}

// Reset discards the plan and returns to the configured state so the mask,
// outputs or block size can change before replanning.
func (rm *RasterMath) Reset() error {
	if rm.state != StatePlanned {
		return configErrorf("reset requires a planned engine (state %s)", rm.state)
	}
	rm.plan = nil
	rm.maskPlan = nil
	rm.reader = nil
	rm.writer = nil
	rm.cursor = 0
	rm.state = StateConfigured
	return nil
}

func (rm *RasterMath) skipCount() int {
	n := 0
	for _, e := range rm.maskPlan {
		if e.Class == BlockSkip {
			n++
		}
	}
	return n
}

// chooseBlockDims resolves the block size: an explicit size wins, then the
// native tiling when forced, otherwise the memory budget bounded by
// max(DefaultBlockSize, native tile side). Memory safety deliberately beats
// native tiling in the unforced case.
func (rm *RasterMath) chooseBlockDims() (int, int) {
	if rm.params.BlockSize > 0 {
		return rm.params.BlockSize, rm.params.BlockSize
	}
	nw, nh := rm.inputs[0].BlockSize()
	if rm.params.ForceNativeBlocks && nw > 0 && nh > 0 {
		return nw, nh
	}
	fallback := max(DefaultBlockSize, nw, nh)
	var avail uint64
	if a, err := rm.memory.AvailableBytes(); err == nil {
		avail = a
	} else {
		rm.logf("memory query failed (%v), using fallback block size %d", err, fallback)
	}
	side := ChooseBlockSize(avail, rm.bytesPerPixel(), rm.params.Workers, fallback)
	return side, side
}

// bytesPerPixel is the in-memory cost of one pixel across every batch column
// and output scatter buffer, all held as float64.
func (rm *RasterMath) bytesPerPixel() int {
	bands := rm.bands
	for _, op := range rm.ops {
		bands += op.spec.Bands
	}
	return bands * 8
}

// CreateOutputGrid creates a file-backed output raster matching the input
// geometry, copying the geotransform and projection. The caller registers it
// with AddFunction and the engine closes it with the other handles on Close.
func (rm *RasterMath) CreateOutputGrid(path string, bands int, dtype raster.DataType, nodata float64) (*raster.GridDataset, error) {
	ref := rm.inputs[0]
	gt := ref.GeoTransform()
	bw, bh := ref.BlockSize()
	return raster.CreateGrid(path, ref.Width(), ref.Height(), bands, dtype, &raster.GridOptions{
		NoData:       &nodata,
		GeoTransform: &gt,
		Projection:   ref.Projection(),
		BlockW:       bw,
		BlockH:       bh,
	})
}

// Parameters returns the introspection snapshot for the stacked inputs.
func (rm *RasterMath) Parameters() RasterParameters {
	ref := rm.inputs[0]
	return RasterParameters{
		Width:        ref.Width(),
		Height:       ref.Height(),
		Bands:        rm.bands,
		DataType:     ref.DataType(),
		NoData:       ref.NoData(),
		GeoTransform: ref.GeoTransform(),
		Projection:   ref.Projection(),
		BlockWidth:   rm.blockW,
		BlockHeight:  rm.blockH,
		Blocks:       len(rm.plan),
	}
}

// Run processes every block with the registered functions, writing each
// result to its output raster. Fully-masked blocks are written as nodata
// without touching the inputs. Planning happens implicitly if needed.
// On the first error the run cancels outstanding work and moves to the
// failed state; blocks already written remain on disk.
func (rm *RasterMath) Run(ctx context.Context) error {
	if rm.state == StateConfigured {
		if err := rm.Plan(); err != nil {
			return err
		}
	}
	if rm.state != StatePlanned {
		return configErrorf("run requires a planned engine (state %s)", rm.state)
	}
	if len(rm.ops) == 0 {
		return configErrorf("no functions registered")
	}
	rm.state = StateRunning

	var err error
	if rm.params.Workers <= 1 {
		err = rm.runSequential(ctx)
	} else {
		err = rm.runParallelBlocks(ctx)
	}
	if err != nil {
		rm.state = StateFailed
		return err
	}
	if err := rm.flushOutputs(); err != nil {
		rm.state = StateFailed
		return err
	}
	rm.state = StateCompleted
	rm.logf("completed %d blocks across %d outputs", len(rm.plan), len(rm.ops))
	return nil
}

func (rm *RasterMath) runSequential(ctx context.Context) error {
	for i, win := range rm.plan {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := rm.maskPlan[i]
		if entry.Class == BlockSkip {
			// Fully-masked block: write nodata without reading any input.
			res, _ := applyOperations(rm.ops, job{index: i, window: win})
			if err := rm.writeResult(res); err != nil {
				return err
			}
			continue
		}
		batch, pos, err := rm.reader.read(i, win, entry)
		if err != nil {
			return err
		}
		res, err := applyOperations(rm.ops, job{index: i, window: win, batch: batch, positions: pos})
		if err != nil {
			return err
		}
		if err := rm.writeResult(res); err != nil {
			return err
		}
	}
	return nil
}

func (rm *RasterMath) runParallelBlocks(ctx context.Context) error {
	produce := func(ctx context.Context, jobs chan<- job) error {
		for i, win := range rm.plan {
			entry := rm.maskPlan[i]
			if entry.Class == BlockSkip {
				if err := sendJob(ctx, jobs, job{index: i, window: win}); err != nil {
					return err
				}
				continue
			}
			batch, pos, err := rm.reader.read(i, win, entry)
			if err != nil {
				return err
			}
			if err := sendJob(ctx, jobs, job{index: i, window: win, batch: batch, positions: pos}); err != nil {
				return err
			}
		}
		return nil
	}
	apply := func(jb job) (result, error) {
		return applyOperations(rm.ops, jb)
	}
	return runParallel(ctx, rm.params.Workers, produce, apply, rm.writeResult)
}

// writeResult scatters one block's outputs. Only the controlling goroutine
// calls this, so output handles never see concurrent writes.
func (rm *RasterMath) writeResult(res result) error {
	for k, op := range rm.ops {
		if err := rm.writer.writeBlock(op.out, op.spec, res.index, res.window, res.positions, res.outs[k]); err != nil {
			return err
		}
	}
	return nil
}

// HasNext reports whether the pull iterator has another non-skip block.
// Planning happens implicitly on the first call; if it fails, HasNext
// reports true so the error surfaces from NextBlock instead of looking
// like normal exhaustion.
func (rm *RasterMath) HasNext() bool {
	if rm.state == StateConfigured {
		if err := rm.Plan(); err != nil {
			return true
		}
	}
	if rm.state != StatePlanned && rm.state != StateRunning {
		return false
	}
	for i := rm.cursor; i < len(rm.plan); i++ {
		if rm.maskPlan[i].Class != BlockSkip {
			return true
		}
	}
	return false
}

// NextBlock returns the next non-skip block and advances the cursor. The
// first call moves the engine to the running state; planning happens
// implicitly if needed.
func (rm *RasterMath) NextBlock() (*Block, error) {
	if rm.state == StateConfigured {
		if err := rm.Plan(); err != nil {
			return nil, err
		}
	}
	if rm.state != StatePlanned && rm.state != StateRunning {
		return nil, configErrorf("iteration requires a planned engine (state %s)", rm.state)
	}
	rm.state = StateRunning
	for rm.cursor < len(rm.plan) {
		i := rm.cursor
		rm.cursor++
		if rm.maskPlan[i].Class == BlockSkip {
			continue
		}
		return rm.loadBlock(i)
	}
	return nil, configErrorf("block iterator exhausted")
}

// GetBlock returns block i without touching the iterator cursor. Skip blocks
// come back classified but empty, without any raster read.
func (rm *RasterMath) GetBlock(i int) (*Block, error) {
	if rm.state == StateConfigured {
		if err := rm.Plan(); err != nil {
			return nil, err
		}
	}
	if i < 0 || i >= len(rm.plan) {
		return nil, configErrorf("block index %d out of range [0,%d)", i, len(rm.plan))
	}
	if rm.maskPlan[i].Class == BlockSkip {
		return &Block{Index: i, Window: rm.plan[i], Class: BlockSkip}, nil
	}
	return rm.loadBlock(i)
}

func (rm *RasterMath) loadBlock(i int) (*Block, error) {
	entry := rm.maskPlan[i]
	batch, pos, err := rm.reader.read(i, rm.plan[i], entry)
	if err != nil {
		rm.state = StateFailed
		return nil, err
	}
	return &Block{Index: i, Window: rm.plan[i], Class: entry.Class, Batch: batch, Positions: pos}, nil
}

// GetRandomBlock returns the batch of one uniformly-random non-skip block.
// The same seed always selects the same block, which keeps sampling
// reproducible across runs.
func (rm *RasterMath) GetRandomBlock(seed uint64) (*mat.Dense, error) {
	if rm.state == StateConfigured {
		if err := rm.Plan(); err != nil {
			return nil, err
		}
	}
	candidates := make([]int, 0, len(rm.plan))
	for i, e := range rm.maskPlan {
		if e.Class != BlockSkip {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, configErrorf("every block is masked out")
	}
	rng := rand.New(rand.NewSource(seed))
	blk, err := rm.loadBlock(candidates[rng.Intn(len(candidates))])
	if err != nil {
		return nil, err
	}
	return blk.Batch, nil
}

// WriteBlock writes user-computed results for a pulled block, one matrix per
// registered function, in registration order.
func (rm *RasterMath) WriteBlock(b *Block, results []*mat.Dense) error {
	if rm.state != StateRunning && rm.state != StatePlanned {
		return configErrorf("write requires an active run (state %s)", rm.state)
	}
	if len(results) != len(rm.ops) {
		return configErrorf("got %d results for %d registered functions", len(results), len(rm.ops))
	}
	rm.state = StateRunning
	rows := 0
	if b.Batch != nil {
		rows, _ = b.Batch.Dims()
	}
	for k, res := range results {
		if res != nil {
			gotRows, gotCols := res.Dims()
			if gotRows != rows || gotCols != rm.ops[k].spec.Bands {
				return &ComputeError{Block: b.Index, Window: b.Window,
					Err: fmt.Errorf("result %d is %dx%d, expected %dx%d", k, gotRows, gotCols, rows, rm.ops[k].spec.Bands)}
			}
		}
		if err := rm.writer.writeBlock(rm.ops[k].out, rm.ops[k].spec, b.Index, b.Window, b.Positions, res); err != nil {
			rm.state = StateFailed
			return err
		}
	}
	return nil
}

// Complete finishes a pull-style run: outputs are flushed and the engine
// moves to the completed state.
func (rm *RasterMath) Complete() error {
	if rm.state != StateRunning && rm.state != StatePlanned {
		return configErrorf("complete requires an active run (state %s)", rm.state)
	}
	if err := rm.flushOutputs(); err != nil {
		rm.state = StateFailed
		return err
	}
	rm.state = StateCompleted
	return nil
}

func (rm *RasterMath) flushOutputs() error {
	for _, op := range rm.ops {
		if err := op.out.Flush(); err != nil {
			return &IOError{Op: "flush", Block: -1, Err: err}
		}
	}
	return nil
}

// Close releases every raster handle the engine owns: inputs, mask and
// outputs. Outputs of a completed run have already been flushed; a failed
// run's partial outputs are left as written.
func (rm *RasterMath) Close() error {
	var first error
	for _, op := range rm.ops {
		if err := op.out.Close(); err != nil && first == nil {
			first = err
		}
	}
	if rm.mask != nil {
		if err := rm.mask.Close(); err != nil && first == nil {
			first = err
		}
	}
	for _, ds := range rm.inputs {
		if err := ds.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (rm *RasterMath) logf(format string, args ...any) {
	if rm.params.Verbose {
		log.Printf("rastermath: "+format, args...)
	}
}
