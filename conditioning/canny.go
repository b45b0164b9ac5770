package conditioning

import "fmt"

const (
	// DefaultLowThreshold and DefaultHighThreshold are the hysteresis bounds
	// used when the caller does not supply any.
	DefaultLowThreshold  = 100
	DefaultHighThreshold = 200

	// MaxThreshold is the largest L1 Sobel magnitude an 8-bit image can reach.
	MaxThreshold = 1020

	// tan(22.5°) in Q15.
	tg22 = 13573

	edgeNone   = 0
	edgeWeak   = 1
	edgeStrong = 2
)

// NormalizeThresholds validates low/high and swaps them when inverted.
func NormalizeThresholds(low, high int) (int, int, error) {
	if low < 0 || high < 0 || low > MaxThreshold || high > MaxThreshold {
		return 0, 0, fmt.Errorf("%w: low=%d high=%d (must be in [0,%d])", ErrInvalidThresholds, low, high, MaxThreshold)
	}
	if low > high {
		low, high = high, low
	}
	return low, high, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// sobel computes the 3x3 Sobel derivatives with a replicated border.
func sobel(src *Buffer) (dx, dy []int) {
	w, h := src.Width, src.Height
	dx = make([]int, w*h)
	dy = make([]int, w*h)

	px := func(x, y int) int {
		return int(src.Pix[clampIndex(y, h)*w+clampIndex(x, w)])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tl, tc, tr := px(x-1, y-1), px(x, y-1), px(x+1, y-1)
			ml, mr := px(x-1, y), px(x+1, y)
			bl, bc, br := px(x-1, y+1), px(x, y+1), px(x+1, y+1)

			dx[y*w+x] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			dy[y*w+x] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return dx, dy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Canny detects edges in a 1-channel buffer. Output pixels are 255 on an
// edge and 0 elsewhere. Thresholds are compared against the L1 gradient
// magnitude; inverted thresholds are swapped.
func Canny(src *Buffer, low, high int) (*Buffer, error) {
	if src == nil || src.Width <= 0 || src.Height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if src.Channels != 1 {
		return nil, ErrUnsupportedChannels
	}
	low, high, err := NormalizeThresholds(low, high)
	if err != nil {
		return nil, err
	}

	w, h := src.Width, src.Height
	dx, dy := sobel(src)

	mag := make([]int, w*h)
	for i := range mag {
		mag[i] = abs(dx[i]) + abs(dy[i])
	}
	magAt := func(x, y int) int {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	state := make([]uint8, w*h)
	stack := make([]int, 0, w*h/8+1)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}

			xs, ys := dx[i], dy[i]
			ax, ay := abs(xs), abs(ys)
			tg22x := ax * tg22
			yv := ay << 15

			var isMax bool
			if yv < tg22x {
				isMax = m > magAt(x-1, y) && m >= magAt(x+1, y)
			} else {
				tg67x := tg22x + (ax << 16)
				if yv > tg67x {
					isMax = m > magAt(x, y-1) && m >= magAt(x, y+1)
				} else {
					s := 1
					if (xs ^ ys) < 0 {
						s = -1
					}
					isMax = m > magAt(x-s, y-1) && m > magAt(x+s, y+1)
				}
			}
			if !isMax {
				continue
			}

			if m > high {
				state[i] = edgeStrong
				stack = append(stack, i)
			} else {
				state[i] = edgeWeak
			}
		}
	}

	// Hysteresis: promote weak pixels 8-connected to a strong one.
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			if ny < 0 || ny >= h {
				continue
			}
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || nx >= w {
					continue
				}
				j := ny*w + nx
				if state[j] == edgeWeak {
					state[j] = edgeStrong
					stack = append(stack, j)
				}
			}
		}
	}

	out := &Buffer{Width: w, Height: h, Channels: 1, Pix: make([]uint8, w*h)}
	for i, s := range state {
		if s == edgeStrong {
			out.Pix[i] = 255
		}
	}
	return out, nil
}
