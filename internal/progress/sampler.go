package progress

// DefaultBucketSize is the sampling granularity in percent.
const DefaultBucketSize = 10

// Sampler thins progress samples for logging: it reports true only when the
// percentage enters a new bucket.
type Sampler struct {
	bucketSize float64
	lastBucket int
}

// NewSampler constructs a sampler with the given bucket size in percent.
// Non-positive sizes fall back to DefaultBucketSize.
func NewSampler(bucketSize float64) *Sampler {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	return &Sampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether percent crossed into a bucket not seen before.
func (s *Sampler) ShouldLog(percent float64) bool {
	if s == nil {
		return true
	}
	if percent < 0 {
		return false
	}
	bucket := int(percent / s.bucketSize)
	if percent >= 100 {
		bucket = int(100 / s.bucketSize)
	}
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		return true
	}
	return false
}

