package imagedec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
)

var (
	radianceMagic = []byte("#?RADIANCE\n")
	rgbeMagic     = []byte("#?RGBE\n")
)

// RadianceType is the filetype kind Identify reports for Radiance files
var RadianceType = filetype.NewType("hdr", "image/vnd.radiance")

// RadianceFormat registers the Radiance RGBE decoder. Output is always linear.
var RadianceFormat = Format{
	Name:            "radiance",
	Magics:          [][]byte{radianceMagic, rgbeMagic},
	New:             func(r io.Reader) Decoder { return NewRadianceDecoder(r) },
	ForceColorSpace: true,
	ColorSpace:      ColorSpaceLinear,
}

func init() {
	filetype.AddMatcher(RadianceType, RadianceFormat.Matches)
}

const (
	maxRadianceDimension = 1 << 15
	minRLEWidth          = 8
	maxRLEWidth          = 0x7fff
)

var errMalformedRadiance = errors.New("malformed radiance image")

// RadianceDecoder decodes run-length encoded RGBE images
type RadianceDecoder struct {
	r     io.Reader
	space ColorSpace
}

// NewRadianceDecoder binds a decoder to a stream positioned at the signature
func NewRadianceDecoder(r io.Reader) *RadianceDecoder {
	return &RadianceDecoder{r: r, space: ColorSpaceLinear}
}

// SetColorSpace sets the transform applied to decoded samples
func (d *RadianceDecoder) SetColorSpace(space ColorSpace) {
	d.space = space
}

// Decode reads the whole image. Malformed input returns an empty image.
func (d *RadianceDecoder) Decode() LinearImage {
	img, err := d.decode()
	if err != nil {
		slog.Debug("imagedec: radiance decode failed", "error", err)
		return LinearImage{}
	}
	return img
}

func (d *RadianceDecoder) decode() (LinearImage, error) {
	br := bufio.NewReader(d.r)

	exposure, err := readRadianceHeader(br)
	if err != nil {
		return LinearImage{}, err
	}

	width, height, err := readRadianceResolution(br)
	if err != nil {
		return LinearImage{}, err
	}

	img := NewLinearImage(width, height, 3)
	scanline := make([]byte, width*4)
	for y := 0; y < height; y++ {
		if err := readRadianceScanline(br, scanline); err != nil {
			return LinearImage{}, fmt.Errorf("scanline %d: %w", y, err)
		}
		for x := 0; x < width; x++ {
			r, g, b := rgbeToFloat(scanline[x*4:x*4+4], exposure)
			if d.space == ColorSpaceSRGB {
				r, g, b = srgbToLinear(r), srgbToLinear(g), srgbToLinear(b)
			}
			img.SetRGB(x, y, r, g, b)
		}
	}
	return img, nil
}

// readRadianceHeader consumes the text header up to the blank separator line.
// It returns the accumulated EXPOSURE factor.
func readRadianceHeader(br *bufio.Reader) (float32, error) {
	first, err := br.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("%w: header: %v", errMalformedRadiance, err)
	}
	if !strings.HasPrefix(first, "#?") {
		return 0, fmt.Errorf("%w: missing signature", errMalformedRadiance)
	}

	exposure := float32(1)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("%w: header: %v", errMalformedRadiance, err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return exposure, nil
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "FORMAT":
			if v := strings.TrimSpace(value); v != "32-bit_rle_rgbe" {
				return 0, fmt.Errorf("%w: unsupported format %q", errMalformedRadiance, v)
			}
		case "EXPOSURE":
			e, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
			if err != nil || e <= 0 {
				return 0, fmt.Errorf("%w: bad exposure %q", errMalformedRadiance, value)
			}
			exposure *= float32(e)
		}
	}
}

// readRadianceResolution parses the standard "-Y height +X width" orientation line
func readRadianceResolution(br *bufio.Reader) (int, int, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return 0, 0, fmt.Errorf("%w: resolution: %v", errMalformedRadiance, err)
	}
	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != "-Y" || fields[2] != "+X" {
		return 0, 0, fmt.Errorf("%w: unsupported orientation %q", errMalformedRadiance, strings.TrimSpace(line))
	}
	height, errH := strconv.Atoi(fields[1])
	width, errW := strconv.Atoi(fields[3])
	if errH != nil || errW != nil {
		return 0, 0, fmt.Errorf("%w: bad resolution %q", errMalformedRadiance, strings.TrimSpace(line))
	}
	if width <= 0 || height <= 0 || width > maxRadianceDimension || height > maxRadianceDimension {
		return 0, 0, fmt.Errorf("%w: resolution %dx%d out of range", errMalformedRadiance, width, height)
	}
	return width, height, nil
}

// readRadianceScanline fills dst (width*4 RGBE bytes) from either a new-style
// run-length encoded scanline or a flat/old-style scanline
func readRadianceScanline(br *bufio.Reader, dst []byte) error {
	width := len(dst) / 4

	var head [4]byte
	if _, err := io.ReadFull(br, head[:]); err != nil {
		return err
	}

	if width < minRLEWidth || width > maxRLEWidth || head[0] != 2 || head[1] != 2 || head[2]&0x80 != 0 {
		copy(dst, head[:])
		return readFlatScanline(br, dst, 1)
	}

	if int(head[2])<<8|int(head[3]) != width {
		return fmt.Errorf("%w: scanline width mismatch", errMalformedRadiance)
	}

	// Each channel is stored separately as runs and literal dumps.
	for c := 0; c < 4; c++ {
		for x := 0; x < width; {
			count, err := br.ReadByte()
			if err != nil {
				return err
			}
			if count > 128 {
				n := int(count) - 128
				if x+n > width {
					return fmt.Errorf("%w: run overflows scanline", errMalformedRadiance)
				}
				v, err := br.ReadByte()
				if err != nil {
					return err
				}
				for ; n > 0; n-- {
					dst[x*4+c] = v
					x++
				}
				continue
			}
			n := int(count)
			if n == 0 || x+n > width {
				return fmt.Errorf("%w: bad literal run", errMalformedRadiance)
			}
			for ; n > 0; n-- {
				v, err := br.ReadByte()
				if err != nil {
					return err
				}
				dst[x*4+c] = v
				x++
			}
		}
	}
	return nil
}

// readFlatScanline reads uncompressed pixels starting at pixel index start,
// expanding old-style (1,1,1,n) repeat markers
func readFlatScanline(br *bufio.Reader, dst []byte, start int) error {
	width := len(dst) / 4
	shift := uint(0)

	x := start
	for x < width {
		var px [4]byte
		if _, err := io.ReadFull(br, px[:]); err != nil {
			return err
		}
		if isOldRun(px[:]) {
			if x == 0 {
				return fmt.Errorf("%w: repeat marker without previous pixel", errMalformedRadiance)
			}
			n := int(px[3]) << shift
			if x+n > width {
				return fmt.Errorf("%w: repeat overflows scanline", errMalformedRadiance)
			}
			prev := dst[(x-1)*4 : x*4]
			for ; n > 0; n-- {
				copy(dst[x*4:x*4+4], prev)
				x++
			}
			shift += 8
			continue
		}
		copy(dst[x*4:x*4+4], px[:])
		x++
		shift = 0
	}
	return nil
}

func isOldRun(px []byte) bool {
	return px[0] == 1 && px[1] == 1 && px[2] == 1
}

// rgbeToFloat expands a shared-exponent pixel
func rgbeToFloat(px []byte, exposure float32) (r, g, b float32) {
	if px[3] == 0 {
		return 0, 0, 0
	}
	f := float32(math.Ldexp(1, int(px[3])-(128+8))) / exposure
	return (float32(px[0]) + 0.5) * f, (float32(px[1]) + 0.5) * f, (float32(px[2]) + 0.5) * f
}
