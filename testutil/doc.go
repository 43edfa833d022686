// Package testutil provides testing utilities for imgcache.
//
// This package is intended for use in tests and benchmarks only.
// It provides deterministic and random test images, encoders for them, a
// decoder whose calls can be held open to stage races, and an in-memory
// fetcher.
//
//	data := testutil.PNG(testutil.Gradient(400, 300))
//
//	dec := testutil.NewGatedDecoder(nil)
//	dec.Gate(data)    // decodes of data now block
//	<-dec.Entered(data)
//	dec.Release(data)
package testutil
