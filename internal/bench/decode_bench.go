package bench

import (
	"github.com/emelcore/emel/decode"
	"github.com/emelcore/emel/errs"
	"github.com/emelcore/emel/executor"
	"github.com/emelcore/emel/kv"
	"github.com/emelcore/emel/memory"
)

// DecodeCase names one synthetic decode request shape, grounded on
// original_source/tools/bench/batch_splitter_bench.cpp's simple/equal/seq
// case triple.
type DecodeCase struct {
	Name    string
	NTokens int
	NUbatch int64
	KVSize  int32
	NStream int32
}

// DefaultDecodeCases returns three request shapes of increasing size, all
// driven through the full decode pipeline rather than the splitter alone.
// Every case uses the splitter's default simple mode; equal and seq modes
// are not exercised here.
func DefaultDecodeCases() []DecodeCase {
	return []DecodeCase{
		{Name: "decode/single_token", NTokens: 1, NUbatch: 1, KVSize: 64, NStream: 1},
		{Name: "decode/small_batch", NTokens: 32, NUbatch: 8, KVSize: 256, NStream: 1},
		{Name: "decode/large_batch", NTokens: 128, NUbatch: 32, KVSize: 1024, NStream: 1},
	}
}

// RunDecodeCase times cfg.Runs*cfg.Iterations full decode calls against a
// freshly built KV cache and an always-succeeding compute/memory backend,
// isolating decoder/executor/KV overhead from a real compute backend.
func RunDecodeCase(dc DecodeCase, cfg Config) Result {
	tokens := make([]int32, dc.NTokens)
	for i := range tokens {
		tokens[i] = int32(i)
	}

	return Measure(dc.Name, cfg, func() {
		cache := kv.New(dc.NStream, dc.KVSize)
		cache.BindSeq(0, 0)
		mem := memory.New(memory.Backend{
			Prepare: func(memory.Request) (memory.Status, *errs.Error) { return memory.StatusSuccess, nil },
		})
		d := &decode.Decoder{
			KV:     cache,
			Memory: mem,
			Compute: func(int32) executor.ComputeFuncs {
				return executor.ComputeFuncs{
					ExtractOutputs: func(int32) (int32, *errs.Error) { return 1, nil },
				}
			},
		}
		d.Decode(decode.Request{
			TokenIDs: tokens,
			NUbatch:  dc.NUbatch,
			Dispatch: func(decode.Event) {},
		})
	})
}
