// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package compositor

import "image"

// newAtlas creates an allocator for a width by height texture with
// the given padding between regions.
func newAtlas(width, height, padding int) *atlas {
	return &atlas{
		width:   width,
		height:  height,
		padding: padding,
	}
}

// atlas hands out rectangular regions of one texture using shelf
// packing: regions sit left to right on horizontal shelves, a new
// shelf opens below the last when nothing fits. Regions are never
// returned one by one, the atlas resets as a whole when its backing
// texture is rebuilt.
type atlas struct {
	width   int
	height  int
	padding int
	shelves []shelf
	used    int
}

// shelf is a horizontal strip of the atlas. x is the next free slot.
type shelf struct {
	y      int
	height int
	x      int
}

// allocate finds room for a size.X by size.Y region and returns its
// top left corner. ok is false when the atlas cannot fit the region.
func (a *atlas) allocate(size image.Point) (image.Point, bool) {
	if size.X <= 0 || size.Y <= 0 {
		return image.Point{}, false
	}
	paddedW := size.X + a.padding
	paddedH := size.Y + a.padding

	for i := range a.shelves {
		sh := &a.shelves[i]
		if sh.x+paddedW > a.width {
			continue
		}
		if size.Y > sh.height {
			// Taller than the shelf. Only the bottom shelf can
			// grow, and only while there is room below it.
			if i == len(a.shelves)-1 && sh.y+paddedH <= a.height {
				sh.height = size.Y
				origin := image.Pt(sh.x, sh.y)
				sh.x += paddedW
				a.used += size.X * size.Y
				return origin, true
			}
			continue
		}
		origin := image.Pt(sh.x, sh.y)
		sh.x += paddedW
		a.used += size.X * size.Y
		return origin, true
	}

	newY := 0
	if len(a.shelves) > 0 {
		last := a.shelves[len(a.shelves)-1]
		newY = last.y + last.height + a.padding
	}
	if newY+paddedH > a.height || paddedW > a.width {
		return image.Point{}, false
	}

	a.shelves = append(a.shelves, shelf{y: newY, height: size.Y, x: paddedW})
	a.used += size.X * size.Y
	return image.Pt(0, newY), true
}

// reset abandons every region, keeping shelf capacity.
func (a *atlas) reset() {
	a.shelves = a.shelves[:0]
	a.used = 0
}

// utilization reports the used fraction of the atlas area.
func (a *atlas) utilization() float64 {
	if a.width <= 0 || a.height <= 0 {
		return 0
	}
	return float64(a.used) / float64(a.width*a.height)
}
