package fingerprint

import "testing"

func BenchmarkExtractFeatures(b *testing.B) {
	calc := NewCalculator(DefaultWeights)
	components := sampleComponents()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = calc.ExtractFeatures(components)
	}
}

func BenchmarkJaccardSimilarity(b *testing.B) {
	calc := NewCalculator(DefaultWeights)
	v1 := calc.ExtractFeatures(sampleComponents())
	v2 := calc.ExtractFeatures(sampleComponents())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = calc.JaccardSimilarity(v1, v2)
	}
}

func BenchmarkHashComponents(b *testing.B) {
	components := sampleComponents()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = hashComponents(components)
	}
}
