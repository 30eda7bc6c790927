package processor

// SelectSampleSize picks the power-of-two subsampling factor for a target box.
//
// The factor doubles while either axis divided by it is still larger than
// targetEdge, then backs off one halving step. Subsampling therefore never
// lands below the box; exact sizing is left to the rescaler.
func SelectSampleSize(bounds ImageBounds, targetEdge Pixels) uint32 {
	if targetEdge == 0 {
		return 1
	}
	target := uint32(targetEdge)

	factor := uint32(1)
	for bounds.Height/factor > target || bounds.Width/factor > target {
		factor *= 2
	}
	if factor > 1 {
		return factor / 2
	}
	return factor
}
