package smalloc_test

import (
	"fmt"
	"log"

	"github.com/hupe1980/smalloc"
)

// Example demonstrates raw allocation with a paired size.
func Example() {
	a, err := smalloc.New()
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	b, err := a.AllocBytes(16)
	if err != nil {
		log.Fatal(err)
	}
	copy(b, "small object")
	fmt.Println(string(b[:12]))

	if err := a.FreeBytes(b); err != nil {
		log.Fatal(err)
	}
	// Output: small object
}

// Example_typed demonstrates the typed helpers.
func Example_typed() {
	type vec3 struct{ X, Y, Z float32 }

	a, err := smalloc.New(smalloc.WithLiveTracking(true))
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	v, err := smalloc.NewObject[vec3](a)
	if err != nil {
		log.Fatal(err)
	}
	v.X, v.Y, v.Z = 1, 2, 3
	fmt.Println(*v)

	if err := smalloc.DeleteObject(a, v); err != nil {
		log.Fatal(err)
	}
	fmt.Println(a.Stats().LiveBlocks())
	// Output:
	// {1 2 3}
	// 0
}

// Example_metrics demonstrates collecting pool statistics.
func Example_metrics() {
	metrics := &smalloc.BasicMetricsCollector{}
	a, err := smalloc.New(smalloc.WithMetricsCollector(metrics), smalloc.WithPoolBytes(64))
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	for i := 0; i < 5; i++ {
		if _, err := a.Allocate(16); err != nil {
			log.Fatal(err)
		}
	}

	stats := metrics.GetStats()
	fmt.Printf("allocations: %d, pools: %d\n", stats.AllocCount, stats.PoolsCreated)
	// Output: allocations: 5, pools: 2
}
