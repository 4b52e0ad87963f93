package bench

import "github.com/emelcore/emel/alloc"

// AllocateCase names one synthetic tensor graph shape, grounded on
// original_source/tools/bench/buffer_allocator_bench.cpp's single-input/
// single-output graph, scaled up to exercise multi-chunk partitioning.
type AllocateCase struct {
	Name          string
	TensorCount   int
	TensorSize    int64
	Alignment     int64
	MaxBufferSize int64
}

func DefaultAllocateCases() []AllocateCase {
	return []AllocateCase{
		{Name: "allocate/single_chunk", TensorCount: 8, TensorSize: 256, Alignment: alloc.MinAlignment, MaxBufferSize: 1 << 20},
		{Name: "allocate/multi_chunk", TensorCount: 512, TensorSize: 4096, Alignment: alloc.MinAlignment, MaxBufferSize: 1 << 16},
	}
}

// ChunkReport is the supplemented allocator telemetry (chunk_sizes_out /
// total_bytes) original_source's buffer_allocator_bench.cpp reports per
// run, surfaced here for partition-quality inspection rather than folded
// into the timing Result.
type ChunkReport struct {
	ChunkCount int
	ChunkSizes []int64
	TotalBytes int64
}

// RunAllocateCase times cfg.Runs*cfg.Iterations Allocate+Release cycles
// and returns the timing summary plus the chunk report from the final run.
func RunAllocateCase(ac AllocateCase, cfg Config) (Result, ChunkReport) {
	descs := make([]alloc.TensorDesc, ac.TensorCount)
	for i := range descs {
		descs[i] = alloc.TensorDesc{
			ID:        int32(i),
			AllocSize: ac.TensorSize,
			SrcTensorIDs: [4]int32{
				alloc.NoViewSrc, alloc.NoViewSrc, alloc.NoViewSrc, alloc.NoViewSrc,
			},
			ViewSrcID: alloc.NoViewSrc,
			IsInput:   i == 0,
			IsOutput:  i == len(descs)-1,
		}
	}

	var report ChunkReport
	result := Measure(ac.Name, cfg, func() {
		a := alloc.New()
		res, err := a.Allocate(descs, ac.Alignment, ac.MaxBufferSize, false)
		if err != nil {
			a.Release()
			return
		}
		report = ChunkReport{
			ChunkCount: len(res.ChunkSizes),
			ChunkSizes: res.ChunkSizes,
			TotalBytes: res.TotalBytes,
		}
		a.Release()
	})

	return result, report
}
