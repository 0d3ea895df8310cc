package flow

// Bucket is a sentiment range with its own closing reply.
type Bucket int

const (
	BucketPositive Bucket = iota
	BucketConcern
	BucketMild
	BucketModerate
)

// Bucket boundaries. Each upper bound is inclusive.
const (
	ConcernUpperBound  = 0.01
	MildUpperBound     = 0.49
	ModerateUpperBound = 0.85
)

func (b Bucket) String() string {
	switch b {
	case BucketConcern:
		return "concern"
	case BucketMild:
		return "mild"
	case BucketModerate:
		return "moderate"
	default:
		return "positive"
	}
}

// Classify maps a score to its bucket. Scores outside [0, ModerateUpperBound],
// including NaN, fall through to BucketPositive.
func Classify(score float64) Bucket {
	switch {
	case score >= 0 && score <= ConcernUpperBound:
		return BucketConcern
	case score > ConcernUpperBound && score <= MildUpperBound:
		return BucketMild
	case score > MildUpperBound && score <= ModerateUpperBound:
		return BucketModerate
	default:
		return BucketPositive
	}
}
