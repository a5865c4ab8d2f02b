package sweep_test

import (
	"fmt"

	"github.com/cwbudde/algo-latency/measure/sweep"
)

func ExampleGenerate() {
	p := sweep.FromHz(20, 24000, 48000, 1<<18)

	ess, err := sweep.Generate(p)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Sweep length: %d samples (%.2f s)\n", ess.Len(), float64(ess.Len())/48000)
	fmt.Printf("First sample: %.6f\n", ess.Excitation()[0])
	fmt.Printf("Analysis length: %d\n", len(ess.Analysis()))

	// Output:
	// Sweep length: 262144 samples (5.46 s)
	// First sample: 0.000000
	// Analysis length: 262144
}
