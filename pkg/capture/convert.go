package capture

// ConvertRGBAtoRGB packs width*height RGBA pixels into RGB in place and returns
// the RGB prefix of buf. Alpha is dropped.
func ConvertRGBAtoRGB(buf []byte, width, height int) []byte {
	n := width * height
	for i := 0; i < n; i++ {
		copy(buf[i*3:i*3+3], buf[i*4:i*4+3])
	}
	return buf[:n*3]
}
