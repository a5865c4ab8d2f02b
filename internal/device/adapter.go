package device

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-latency/measure/capture"
)

const bytesPerSample = 4

// Adapter converts the interleaved 32-bit float buffers of a duplex device
// callback into per-channel blocks for a capture.BlockProcessor.
//
// Callbacks longer than the block size are split into several blocks.
// A missing or short capture buffer is forwarded as a nil input so that the
// processor can skip the block. Process never allocates.
type Adapter struct {
	proc      capture.BlockProcessor
	inputs    int
	outputs   int
	blockSize int

	in     [][]float32
	inView [][]float32
	out    []float32

	missing atomic.Uint64
}

// NewAdapter creates an adapter for inputs capture and outputs playback
// channels. The processor's output block is written to playback channel 0;
// other playback channels are silent.
func NewAdapter(proc capture.BlockProcessor, inputs, outputs, blockSize int) *Adapter {
	inputs = max(inputs, 1)
	outputs = max(outputs, 1)
	blockSize = max(blockSize, 1)

	in := make([][]float32, inputs)
	for ch := range in {
		in[ch] = make([]float32, blockSize)
	}

	return &Adapter{
		proc:      proc,
		inputs:    inputs,
		outputs:   outputs,
		blockSize: blockSize,
		in:        in,
		inView:    make([][]float32, inputs),
		out:       make([]float32, blockSize),
	}
}

// MissingInputs returns the number of blocks forwarded without input.
func (a *Adapter) MissingInputs() uint64 {
	return a.missing.Load()
}

// Process is a malgo data callback.
func (a *Adapter) Process(pOutput, pInput []byte, frameCount uint32) {
	frames := int(frameCount)

	for off := 0; off < frames; off += a.blockSize {
		a.processBlock(pOutput, pInput, off, min(a.blockSize, frames-off))
	}
}

func (a *Adapter) processBlock(pOutput, pInput []byte, off, n int) {
	in := a.deinterleave(pInput, off, n)
	if in == nil {
		a.missing.Add(1)
	}

	out := a.out[:n]
	a.proc.ProcessBlock(out, in)

	if pOutput == nil || len(pOutput) < (off+n)*a.outputs*bytesPerSample {
		return
	}

	for f, v := range out {
		frame := (off + f) * a.outputs * bytesPerSample
		binary.LittleEndian.PutUint32(pOutput[frame:], math.Float32bits(v))

		for ch := 1; ch < a.outputs; ch++ {
			binary.LittleEndian.PutUint32(pOutput[frame+ch*bytesPerSample:], 0)
		}
	}
}

func (a *Adapter) deinterleave(pInput []byte, off, n int) [][]float32 {
	if len(pInput) < (off+n)*a.inputs*bytesPerSample {
		return nil
	}

	for ch := range a.inputs {
		buf := a.in[ch][:n]
		for f := range buf {
			idx := ((off+f)*a.inputs + ch) * bytesPerSample
			buf[f] = math.Float32frombits(binary.LittleEndian.Uint32(pInput[idx:]))
		}

		a.inView[ch] = buf
	}

	return a.inView
}
