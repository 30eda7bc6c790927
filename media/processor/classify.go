package processor

// BucketOf places bounds into a resolution bucket. Comparisons are strict, so
// an axis exactly at the target edge falls into BucketMixed.
func BucketOf(bounds ImageBounds, targetEdge Pixels) Bucket {
	t := uint32(targetEdge)
	switch {
	case bounds.Width < t && bounds.Height < t:
		return BucketBelow
	case bounds.Width > t && bounds.Height > t:
		return BucketAbove
	default:
		return BucketMixed
	}
}

// Classify decides whether an encoded candidate needs further compression.
// The bucket ceiling is inclusive.
func Classify(bounds ImageBounds, encoded ByteSize, class SizeClass) Ratio {
	ratio, _ := classify(bounds, encoded, class)
	return ratio
}

func classify(bounds ImageBounds, encoded ByteSize, class SizeClass) (Ratio, Bucket) {
	bucket := BucketOf(bounds, class.TargetEdge())
	if encoded <= class.Ceiling(bucket) {
		return RatioKeep, bucket
	}
	return RatioCompress, bucket
}
