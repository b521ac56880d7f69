package proptest

// OneOf returns one of the provided values at random.
// Panics if no values are provided.
func OneOf[T any](g *Generator, values ...T) T {
	if len(values) == 0 {
		panic("proptest: OneOf requires at least one value")
	}
	return values[g.Intn(len(values))]
}

// OneOfFunc calls one of the provided generator functions at random.
func OneOfFunc[T any](g *Generator, fns ...func(*Generator) T) T {
	if len(fns) == 0 {
		panic("proptest: OneOfFunc requires at least one function")
	}
	return fns[g.Intn(len(fns))](g)
}

// SliceN generates a slice with length in [minLen, maxLen].
func SliceN[T any](g *Generator, minLen, maxLen int, gen func(*Generator) T) []T {
	length := g.IntRange(minLen, maxLen)
	result := make([]T, length)
	for i := range result {
		result[i] = gen(g)
	}
	return result
}

// Sample returns n distinct elements of slice in their original order.
func Sample[T any](g *Generator, slice []T, n int) []T {
	if n >= len(slice) {
		return append([]T(nil), slice...)
	}
	picked := make([]bool, len(slice))
	for count := 0; count < n; {
		i := g.Intn(len(slice))
		if !picked[i] {
			picked[i] = true
			count++
		}
	}
	result := make([]T, 0, n)
	for i, ok := range picked {
		if ok {
			result = append(result, slice[i])
		}
	}
	return result
}

const (
	identStart = "abcdefghijklmnopqrstuvwxyz_"
	identBody  = "abcdefghijklmnopqrstuvwxyz0123456789_"
)

// IdentifierLower returns a valid lowercase identifier of length [1, maxLen].
func (g *Generator) IdentifierLower(maxLen int) string {
	if maxLen <= 0 {
		maxLen = 1
	}
	length := g.IntRange(1, maxLen)
	b := make([]byte, length)
	b[0] = identStart[g.Intn(len(identStart))]
	for i := 1; i < length; i++ {
		b[i] = identBody[g.Intn(len(identBody))]
	}
	return string(b)
}

// UniqueIdentifiers generates up to n unique identifiers.
func (g *Generator) UniqueIdentifiers(n, maxLen int) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, n)

	maxAttempts := n * 10
	for i := 0; i < maxAttempts && len(result) < n; i++ {
		s := g.IdentifierLower(maxLen)
		if !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	return result
}
