package memstore_test

import (
	"testing"

	"github.com/meridiandb/meridian/pkg/kvstore/memstore"
	"github.com/meridiandb/meridian/pkg/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	testsuite.RunTests(t, memstore.New())
}

func BenchmarkSuite(b *testing.B) {
	testsuite.RunBenchmarks(b, memstore.New())
}
