package fuzzer

import (
	"math/rand"
	"sort"
)

const (
	letters        = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	surrogateStart = 0xD800
	surrogateEnd   = 0xDFFF
)

// mutate produces one mutated variation of a seed input, per the
// type-specific rule in the campaign generation contract.
func mutate(rng *rand.Rand, input interface{}) interface{} {
	switch v := input.(type) {
	case float64:
		delta := rng.Float64()*200 - 100
		return v + delta
	case int:
		return float64(v) + (rng.Float64()*200 - 100)
	case string:
		if v == "" {
			return randomString(rng, 10)
		}
		runes := []rune(v)
		idx := rng.Intn(len(runes))
		runes[idx] = randomRune(rng)
		return string(runes)
	case []interface{}:
		if len(v) == 0 {
			return randomValue(rng, 0)
		}
		out := make([]interface{}, len(v))
		copy(out, v)
		idx := rng.Intn(len(out))
		out[idx] = randomValue(rng, 1)
		return out
	case map[string]interface{}:
		if len(v) == 0 {
			return randomValue(rng, 0)
		}
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		sort.Strings(keys) // map iteration order is random; keep the pick seed-determined
		key := keys[rng.Intn(len(keys))]
		out[key] = randomValue(rng, 1)
		return out
	default:
		return randomValue(rng, 0)
	}
}

// randomValue generates a fully random JSON-compatible value. depth bounds
// recursion for array/object generation.
func randomValue(rng *rand.Rand, depth int) interface{} {
	kinds := 3
	if depth < 3 {
		kinds = 5
	}
	switch rng.Intn(kinds) {
	case 0:
		return rng.Int63n(1_000_000)
	case 1:
		return rng.Float64() * 1_000_000
	case 2:
		return randomString(rng, rng.Intn(50))
	case 3:
		n := rng.Intn(10)
		arr := make([]interface{}, n)
		for i := range arr {
			arr[i] = randomValue(rng, depth+1)
		}
		return arr
	default:
		n := rng.Intn(5)
		obj := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			key := randomString(rng, 1+rng.Intn(9))
			obj[key] = randomValue(rng, depth+1)
		}
		return obj
	}
}

func randomString(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return string(b)
}

// randomRune avoids the UTF-16 surrogate range, which is not a valid scalar
// value on its own.
func randomRune(rng *rand.Rand) rune {
	for {
		r := rune(rng.Intn(0x10FFFF + 1))
		if r < surrogateStart || r > surrogateEnd {
			return r
		}
	}
}
