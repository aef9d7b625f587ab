// pkg/register/icon.go - converts the package logo into an .ico for Add/Remove Programs.

package register

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// IconSize is the edge length of the generated icon.
const IconSize = 48

type iconDir struct {
	Reserved uint16
	Type     uint16
	Count    uint16
}

type iconDirEntry struct {
	Width       uint8
	Height      uint8
	ColorCount  uint8
	Reserved    uint8
	Planes      uint16
	BitCount    uint16
	BytesInRes  uint32
	ImageOffset uint32
}

// EncodeIcon decodes a PNG or JPEG logo, scales it to size x size and wraps
// the result as a single-image PNG-compressed .ico.
func EncodeIcon(logo []byte, size int) ([]byte, error) {
	if size <= 0 || size > 256 {
		return nil, fmt.Errorf("icon size %d out of range", size)
	}
	src, _, err := image.Decode(bytes.NewReader(logo))
	if err != nil {
		return nil, fmt.Errorf("decoding logo: %w", err)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var img bytes.Buffer
	if err := png.Encode(&img, dst); err != nil {
		return nil, fmt.Errorf("encoding icon image: %w", err)
	}

	// A 256 pixel edge is stored as 0.
	edge := uint8(size % 256)
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, iconDir{Type: 1, Count: 1})
	binary.Write(&out, binary.LittleEndian, iconDirEntry{
		Width:       edge,
		Height:      edge,
		Planes:      1,
		BitCount:    32,
		BytesInRes:  uint32(img.Len()),
		ImageOffset: uint32(binary.Size(iconDir{}) + binary.Size(iconDirEntry{})),
	})
	out.Write(img.Bytes())
	return out.Bytes(), nil
}
