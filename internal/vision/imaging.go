package vision

import (
	"image"
	"image/color"
	"math"
)

// Pixel-level primitives backing the detection strategies. Everything here is
// a pure function over stdlib image types; there is no shared state.

// rgbToHSV converts an 8-bit RGB triple to the OpenCV HSV convention:
// H in [0,179], S and V in [0,255].
func rgbToHSV(r, g, b uint8) (int, int, int) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var h float64
	switch {
	case delta == 0:
		h = 0
	case max == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if max > 0 {
		s = delta / max
	}
	return int(h / 2), int(s * 255), int(max * 255)
}

// MaskInRange builds a binary mask selecting pixels whose HSV value lies
// inside the inclusive [lower, upper] range.
func MaskInRange(img image.Image, lower, upper [3]int) *image.Gray {
	b := img.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			h, s, v := rgbToHSV(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			if h >= lower[0] && h <= upper[0] &&
				s >= lower[1] && s <= upper[1] &&
				v >= lower[2] && v <= upper[2] {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

// Contour is one connected foreground region of a binary mask.
type Contour struct {
	Bounds image.Rectangle
	// Area is the number of foreground pixels in the region.
	Area int
}

// FindContours labels 4-connected foreground components of a binary mask and
// returns one contour per component. Only external regions exist under this
// scheme; holes are not reported separately.
func FindContours(mask *image.Gray) []Contour {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)
	var contours []Contour

	idx := func(x, y int) int { return (y-b.Min.Y)*w + (x - b.Min.X) }
	fg := func(x, y int) bool { return mask.GrayAt(x, y).Y > 0 }

	var stack []image.Point
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !fg(x, y) || visited[idx(x, y)] {
				continue
			}
			// Flood fill one component, tracking its extent.
			area := 0
			minX, minY, maxX, maxY := x, y, x, y
			stack = append(stack[:0], image.Pt(x, y))
			visited[idx(x, y)] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				area++
				if p.X < minX {
					minX = p.X
				}
				if p.X > maxX {
					maxX = p.X
				}
				if p.Y < minY {
					minY = p.Y
				}
				if p.Y > maxY {
					maxY = p.Y
				}
				for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := p.X+d.X, p.Y+d.Y
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					if fg(nx, ny) && !visited[idx(nx, ny)] {
						visited[idx(nx, ny)] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}
			contours = append(contours, Contour{
				Bounds: image.Rect(minX, minY, maxX+1, maxY+1),
				Area:   area,
			})
		}
	}
	return contours
}

// Grayscale converts any image to 8-bit grayscale.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// GaussianBlur applies a separable 5x5 Gaussian kernel.
func GaussianBlur(src *image.Gray) *image.Gray {
	// Binomial approximation of a sigma~1 Gaussian.
	kernel := [5]int{1, 4, 6, 4, 1}
	const ksum = 16

	b := src.Bounds()
	tmp := image.NewGray(b)
	out := image.NewGray(b)

	clampX := func(x int) int {
		if x < b.Min.X {
			return b.Min.X
		}
		if x >= b.Max.X {
			return b.Max.X - 1
		}
		return x
	}
	clampY := func(y int) int {
		if y < b.Min.Y {
			return b.Min.Y
		}
		if y >= b.Max.Y {
			return b.Max.Y - 1
		}
		return y
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * int(src.GrayAt(clampX(x+k), y).Y)
			}
			tmp.SetGray(x, y, color.Gray{Y: uint8(sum / ksum)})
		}
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += kernel[k+2] * int(tmp.GrayAt(x, clampY(y+k)).Y)
			}
			out.SetGray(x, y, color.Gray{Y: uint8(sum / ksum)})
		}
	}
	return out
}

// AdaptiveThreshold binarizes against a local mean over a blockSize window,
// offset by c. Pixels brighter than (mean - c) become white.
func AdaptiveThreshold(src *image.Gray, blockSize, c int) *image.Gray {
	if blockSize%2 == 0 {
		blockSize++
	}
	half := blockSize / 2
	b := src.Bounds()
	out := image.NewGray(b)
	// Summed-area table for O(1) window means.
	w, h := b.Dx(), b.Dy()
	sat := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + rowSum
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := x-half, y-half
			x1, y1 := x+half+1, y+half+1
			if x0 < 0 {
				x0 = 0
			}
			if y0 < 0 {
				y0 = 0
			}
			if x1 > w {
				x1 = w
			}
			if y1 > h {
				y1 = h
			}
			n := (x1 - x0) * (y1 - y0)
			sum := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			mean := sum / n
			if int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y) > mean-c {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// Dilate grows foreground regions by one pixel per iteration using a 3x3
// structuring element.
func Dilate(src *image.Gray, iterations int) *image.Gray {
	b := src.Bounds()
	cur := src
	for i := 0; i < iterations; i++ {
		next := image.NewGray(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				on := false
				for dy := -1; dy <= 1 && !on; dy++ {
					for dx := -1; dx <= 1 && !on; dx++ {
						nx, ny := x+dx, y+dy
						if nx >= b.Min.X && nx < b.Max.X && ny >= b.Min.Y && ny < b.Max.Y && cur.GrayAt(nx, ny).Y > 0 {
							on = true
						}
					}
				}
				if on {
					next.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		cur = next
	}
	return cur
}

// MatchTemplate slides tpl over img computing zero-mean normalized
// cross-correlation and returns the best location with its score in [-1,1].
// A negative score means the template did not fit anywhere.
func MatchTemplate(img, tpl *image.Gray) (image.Point, float64) {
	ib, tb := img.Bounds(), tpl.Bounds()
	iw, ih := ib.Dx(), ib.Dy()
	tw, th := tb.Dx(), tb.Dy()
	if tw > iw || th > ih || tw == 0 || th == 0 {
		return image.Point{}, -1
	}

	// Template statistics are loop-invariant.
	tMean := 0.0
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			tMean += float64(tpl.GrayAt(tb.Min.X+x, tb.Min.Y+y).Y)
		}
	}
	n := float64(tw * th)
	tMean /= n
	tNorm := 0.0
	tvals := make([]float64, tw*th)
	for y := 0; y < th; y++ {
		for x := 0; x < tw; x++ {
			v := float64(tpl.GrayAt(tb.Min.X+x, tb.Min.Y+y).Y) - tMean
			tvals[y*tw+x] = v
			tNorm += v * v
		}
	}
	tNorm = math.Sqrt(tNorm)

	best := image.Point{}
	bestScore := -1.0
	for oy := 0; oy <= ih-th; oy++ {
		for ox := 0; ox <= iw-tw; ox++ {
			iMean := 0.0
			for y := 0; y < th; y++ {
				for x := 0; x < tw; x++ {
					iMean += float64(img.GrayAt(ib.Min.X+ox+x, ib.Min.Y+oy+y).Y)
				}
			}
			iMean /= n
			num, den := 0.0, 0.0
			for y := 0; y < th; y++ {
				for x := 0; x < tw; x++ {
					iv := float64(img.GrayAt(ib.Min.X+ox+x, ib.Min.Y+oy+y).Y) - iMean
					num += iv * tvals[y*tw+x]
					den += iv * iv
				}
			}
			den = math.Sqrt(den) * tNorm
			if den == 0 {
				continue
			}
			score := num / den
			if score > bestScore {
				bestScore = score
				best = image.Pt(ox, oy)
			}
		}
	}
	return best, bestScore
}
