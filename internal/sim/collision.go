package sim

// Collision runs in unwrapped space: a projectile's path for one batch is the
// segment from its pre-advance to post-advance position before wrapping, and
// player hitboxes are tested at their nine toroidal translations so paths
// crossing the world seam still connect.

var imageOffsets = [9]Vec{
	{X: 0, Y: 0},
	{X: -worldWidthFixed, Y: 0},
	{X: worldWidthFixed, Y: 0},
	{X: 0, Y: -worldHeightFixed},
	{X: 0, Y: worldHeightFixed},
	{X: -worldWidthFixed, Y: -worldHeightFixed},
	{X: -worldWidthFixed, Y: worldHeightFixed},
	{X: worldWidthFixed, Y: -worldHeightFixed},
	{X: worldWidthFixed, Y: worldHeightFixed},
}

// pathHits reports whether a projectile path touches any toroidal image of
// the hitbox.
func pathHits(path Segment, box Rect) bool {
	for _, offset := range imageOffsets {
		shifted := Rect{
			MinX: box.MinX + offset.X,
			MinY: box.MinY + offset.Y,
			MaxX: box.MaxX + offset.X,
			MaxY: box.MaxY + offset.Y,
		}
		if SegmentIntersectsRect(path, shifted) {
			return true
		}
	}
	return false
}
