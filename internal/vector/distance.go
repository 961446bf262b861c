package vector

import (
	"math"

	"github.com/helixdb/helixdb/internal/herrors"
)

// CosineDistance returns 1 - cosine_similarity(a, b), in [0, 2] with 0
// meaning identical direction. The inner product and magnitude loops are
// 8-way unrolled; Go has no portable SIMD intrinsic, so the unrolled scalar
// kernel runs on every host.
func CosineDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, herrors.ErrInvalidVectorLength
	}
	n := len(a)
	var dot, magA, magB float64
	i := 0
	for ; i+8 <= n; i += 8 {
		dot += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3] +
			a[i+4]*b[i+4] + a[i+5]*b[i+5] + a[i+6]*b[i+6] + a[i+7]*b[i+7]
		magA += a[i]*a[i] + a[i+1]*a[i+1] + a[i+2]*a[i+2] + a[i+3]*a[i+3] +
			a[i+4]*a[i+4] + a[i+5]*a[i+5] + a[i+6]*a[i+6] + a[i+7]*a[i+7]
		magB += b[i]*b[i] + b[i+1]*b[i+1] + b[i+2]*b[i+2] + b[i+3]*b[i+3] +
			b[i+4]*b[i+4] + b[i+5]*b[i+5] + b[i+6]*b[i+6] + b[i+7]*b[i+7]
	}
	for ; i < n; i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 1, nil // undefined direction; treat as orthogonal
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos, nil
}
