package flatcoll

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
	"github.com/cockroachdb/flatcoll/storage"
)

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=hashTable", func(b *testing.B) {
		b.Run("t=Int", benchSizes(benchmarkHashTableIter[int64], genKeys[int64]))
	})
}

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetHit[int32], genKeys[int32]))
	})
	b.Run("impl=hashTable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashTableGetHit[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashTableGetHit[int32], genKeys[int32]))
	})
	b.Run("impl=tree", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTreeGetHit[int64], genKeys[int64]))
	})
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkRuntimeMapGetMiss[int32], genKeys[int32]))
	})
	b.Run("impl=hashTable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashTableGetMiss[int64], genKeys[int64]))
		b.Run("t=Int32", benchSizes(benchmarkHashTableGetMiss[int32], genKeys[int32]))
	})
}

func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
	})
	for _, s := range []storage.Strategy{storage.Heap, storage.Native} {
		b.Run("impl=hashTable/strategy="+s.String(), func(b *testing.B) {
			b.Run("t=Int64", benchSizes(benchmarkHashTablePutGrow[int64](s), genKeys[int64]))
		})
		b.Run("impl=tree/strategy="+s.String(), func(b *testing.B) {
			b.Run("t=Int64", benchSizes(benchmarkTreePutGrow[int64](s), genKeys[int64]))
		})
	}
}

func BenchmarkMapPutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutPreAllocate[int64], genKeys[int64]))
	})
	b.Run("impl=hashTable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashTablePutPreAllocate[int64], genKeys[int64]))
	})
}

func BenchmarkMapPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
	})
	b.Run("impl=hashTable", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkHashTablePutDelete[int64], genKeys[int64]))
	})
	b.Run("impl=tree", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkTreePutDelete[int64], genKeys[int64]))
	})
}

type benchTypes interface {
	int32 | int64
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	keys := make([]T, end-start)
	for i := range keys {
		keys[i] = T(start + i)
	}
	return keys
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func newBenchTable[T benchTypes](b *testing.B, n int, options ...Option[T]) *HashTable[T, T] {
	m, err := NewHashTable[T, T](n, append(options, WithValues[T]())...)
	if err != nil {
		b.Fatal(err)
	}
	return m
}

func benchmarkHashTableIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		i, _ := m.Insert(k)
		_ = m.SetValueAt(i, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m.All() {
			tmp += k + v
		}
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkHashTableGetMiss[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, 0)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for j := range keys {
		_, _ = m.Insert(keys[j])
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = m.Contains(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkHashTableGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = m.Insert(k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = m.Contains(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkTreeGetHit[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	tr, err := NewTree[T, T](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = tr.Insert(k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		ok = tr.Contains(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkHashTablePutGrow[T benchTypes](
	s storage.Strategy,
) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		keys := genKeys(0, n)
		b.ResetTimer()
		perfbench.Open(b)
		for i := 0; i < b.N; i++ {
			m := newBenchTable[T](b, 0, WithStrategy[T](s))
			for _, k := range keys {
				_, _ = m.Insert(k)
			}
			_ = m.Close()
		}
	}
}

func benchmarkTreePutGrow[T benchTypes](
	s storage.Strategy,
) func(b *testing.B, n int, genKeys func(start, end int) []T) {
	return func(b *testing.B, n int, genKeys func(start, end int) []T) {
		keys := genKeys(0, n)
		b.ResetTimer()
		perfbench.Open(b)
		for i := 0; i < b.N; i++ {
			tr, err := NewTree[T, T](0, WithStrategy[T](s))
			if err != nil {
				b.Fatal(err)
			}
			for _, k := range keys {
				_, _ = tr.Insert(k)
			}
			_ = tr.Close()
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[T]T, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkHashTablePutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := newBenchTable[T](b, n)
		for _, k := range keys {
			_, _ = m.Insert(k)
		}
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkHashTablePutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchTable[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = m.Insert(k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Remove(keys[j])
		_, _ = m.Insert(keys[j])
	}
}

func benchmarkTreePutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	tr, err := NewTree[T, T](n)
	if err != nil {
		b.Fatal(err)
	}
	keys := genKeys(0, n)
	for _, k := range keys {
		_, _ = tr.Insert(k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		j := i % n
		tr.Remove(keys[j])
		_, _ = tr.Insert(keys[j])
	}
}
