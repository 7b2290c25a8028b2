// mjpeggen writes a synthetic MJPEG stream to stdout: color-bar JPEG frames
// with a frame counter and timestamp overlay. It stands in for a camera
// capture pipeline when exercising the streaming server:
//
//	mjpeggen -fps 15 | streameye -p 8080
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	frameCount = flag.Int("count", 0, "number of frames to generate (0 = unlimited)")
	fps        = flag.Int("fps", 15, "frames per second (0 = no pacing)")
	width      = flag.Int("width", 640, "frame width")
	height     = flag.Int("height", 480, "frame height")
	quality    = flag.Int("quality", 75, "jpeg quality")
	separator  = flag.String("s", "", "separator to write between frames")
)

var barColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255}, // White
	{R: 255, G: 255, B: 0, A: 255},   // Yellow
	{R: 0, G: 255, B: 255, A: 255},   // Cyan
	{R: 0, G: 255, B: 0, A: 255},     // Green
	{R: 255, G: 0, B: 255, A: 255},   // Magenta
	{R: 255, G: 0, B: 0, A: 255},     // Red
	{R: 0, G: 0, B: 255, A: 255},     // Blue
	{R: 0, G: 0, B: 0, A: 255},       // Black
}

func drawBars(img *image.RGBA) {
	b := img.Bounds()
	barWidth := b.Dx() / len(barColors)
	if barWidth == 0 {
		barWidth = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			barIndex := x / barWidth
			if barIndex >= len(barColors) {
				barIndex = len(barColors) - 1
			}
			img.Set(x, y, barColors[barIndex])
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, label string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(label)
}

func main() {
	flag.Parse()

	out := bufio.NewWriterSize(os.Stdout, 256*1024)
	defer out.Flush()

	img := image.NewRGBA(image.Rect(0, 0, *width, *height))
	opts := &jpeg.Options{Quality: *quality}

	var interval time.Duration
	if *fps > 0 {
		interval = time.Second / time.Duration(*fps)
	}

	for n := 0; *frameCount == 0 || n < *frameCount; n++ {
		start := time.Now()

		drawBars(img)
		label := fmt.Sprintf("frame %d  %s", n, start.Format("15:04:05"))
		drawLabel(img, 10, 20, label)

		if n > 0 && *separator != "" {
			if _, err := out.WriteString(*separator); err != nil {
				fmt.Fprintf(os.Stderr, "mjpeggen: write failed: %v\n", err)
				os.Exit(1)
			}
		}
		if err := jpeg.Encode(out, img, opts); err != nil {
			fmt.Fprintf(os.Stderr, "mjpeggen: encode failed: %v\n", err)
			os.Exit(1)
		}
		if err := out.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "mjpeggen: write failed: %v\n", err)
			os.Exit(1)
		}

		if interval > 0 {
			if elapsed := time.Since(start); elapsed < interval {
				time.Sleep(interval - elapsed)
			}
		}
	}
}
