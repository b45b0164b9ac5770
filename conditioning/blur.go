package conditioning

// gaussianKernel is the 5-tap binomial kernel; its 2D sum is 256.
var gaussianKernel = [5]int{1, 4, 6, 4, 1}

// reflect101 maps an out-of-range index back into [0, n) by mirroring
// around the edge pixel without repeating it (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// GaussianBlur5 applies a separable 5x5 Gaussian blur to a 1-channel buffer.
func GaussianBlur5(src *Buffer) (*Buffer, error) {
	if src == nil || src.Width <= 0 || src.Height <= 0 {
		return nil, ErrInvalidDimensions
	}
	if src.Channels != 1 {
		return nil, ErrUnsupportedChannels
	}

	w, h := src.Width, src.Height
	tmp := make([]int, w*h)

	// Horizontal pass keeps full precision (sum of weights 16).
	for y := 0; y < h; y++ {
		row := src.Pix[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += gaussianKernel[k+2] * int(row[reflect101(x+k, w)])
			}
			tmp[y*w+x] = sum
		}
	}

	out := &Buffer{Width: w, Height: h, Channels: 1, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for k := -2; k <= 2; k++ {
				sum += gaussianKernel[k+2] * tmp[reflect101(y+k, h)*w+x]
			}
			out.Pix[y*w+x] = uint8((sum + 128) >> 8)
		}
	}
	return out, nil
}
