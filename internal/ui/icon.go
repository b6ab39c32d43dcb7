package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

const iconSize = 32

var (
	iconOnce sync.Once
	iconData []byte
)

// iconBytes renders the tray icon once: a dark tile with a red record dot.
func iconBytes() []byte {
	iconOnce.Do(func() {
		img := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
		tile := color.NRGBA{R: 0x22, G: 0x26, B: 0x2e, A: 0xff}
		dot := color.NRGBA{R: 0xe5, G: 0x39, B: 0x35, A: 0xff}

		c := iconSize / 2
		r2 := (iconSize / 4) * (iconSize / 4)
		for y := 2; y < iconSize-2; y++ {
			for x := 2; x < iconSize-2; x++ {
				dx, dy := x-c, y-c
				if dx*dx+dy*dy <= r2 {
					img.SetNRGBA(x, y, dot)
				} else {
					img.SetNRGBA(x, y, tile)
				}
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			iconData = buf.Bytes()
		}
	})
	return iconData
}
