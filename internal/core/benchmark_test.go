package core

import (
	"fmt"
	"testing"
)

// ============================================================================
// Normalization Benchmarks
// ============================================================================

// BenchmarkClean covers the cell cleaning applied to every value.
func BenchmarkClean(b *testing.B) {
	testCases := []string{
		"Ann",
		"  padded  ",
		"nan",
		"",
		" non-breaking ",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			Clean(tc)
		}
	}
}

// BenchmarkNormalizeRow is the per-row hot path of a sync.
func BenchmarkNormalizeRow(b *testing.B) {
	columns := []string{"Email", "Name", "Surname", "City", "Country", "Phone"}
	values := []string{" Ann@Example.com ", "Ann", "Lee", "Paris", "FR", "nan"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NormalizeRow(columns, values, "Email", true)
	}
}

// BenchmarkNormalizeRow_EmailOnly measures the common single-column sheet.
func BenchmarkNormalizeRow_EmailOnly(b *testing.B) {
	columns := []string{"Email"}
	values := []string{"ann@example.com"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NormalizeRow(columns, values, "Email", false)
	}
}

func BenchmarkDetectEmailColumn(b *testing.B) {
	columns := make([]string, 50)
	for i := range columns {
		columns[i] = fmt.Sprintf("Column %d", i)
	}
	columns[49] = "E-mail Address"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = DetectEmailColumn(columns)
	}
}

// ============================================================================
// Reconciliation Benchmarks
// ============================================================================

func emailSet(n, offset int) map[string]struct{} {
	set := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		set[fmt.Sprintf("user%d@example.com", i+offset)] = struct{}{}
	}
	return set
}

// BenchmarkUnsubscribeTargets diffs two 50k sets with half overlap.
func BenchmarkUnsubscribeTargets(b *testing.B) {
	active := emailSet(50000, 0)
	sheet := emailSet(50000, 25000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		UnsubscribeTargets(active, sheet)
	}
}

// ============================================================================
// Batching Benchmarks
// ============================================================================

func BenchmarkBatches(b *testing.B) {
	subs := make([]int, 100000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Batches(subs, 1000)
	}
}

// ============================================================================
// Invalid Store Benchmarks
// ============================================================================

func BenchmarkInvalidStore_Add(b *testing.B) {
	store := NewInvalidStore()
	rec := InvalidRecord{Email: "bad@", Reason: "Invalid Email Address"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%1000 == 0 {
			store.Reset("bench")
		}
		store.Add("bench", rec)
	}
}
