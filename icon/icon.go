/*
Copyright 2025, 2026 the gather authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package icon generates deterministic avatars for actors without one.
package icon

import (
	"bytes"
	"crypto/sha256"
	"image"
	"image/color"
	"image/draw"
	"image/gif"

	xdraw "golang.org/x/image/draw"
)

const (
	MediaType         = "image/gif"
	FileNameExtension = ".gif"

	grid = 8
)

// Generate renders a size x size avatar derived from an actor ID.
// The same ID always yields the same image.
func Generate(id string, size int) ([]byte, error) {
	hash := sha256.Sum256([]byte(id))

	fg := color.RGBA{128 + hash[0]%128, 128 + hash[1]%128, 128 + hash[2]%128, 255}
	bg := color.RGBA{255 - fg.R, 255 - fg.G, 255 - fg.B, 255}

	m := image.NewPaletted(image.Rect(0, 0, grid, grid), color.Palette{bg, fg})
	draw.Draw(m, m.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	// fill the left half from hash bits and mirror it
	for y := range grid {
		for x := range grid / 2 {
			if hash[y*grid/2+x]&1 == 1 {
				m.Set(x, y, fg)
				m.Set(grid-1-x, y, fg)
			}
		}
	}

	var out image.Image = m
	if size > grid {
		scaled := image.NewPaletted(image.Rect(0, 0, size, size), m.Palette)
		xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), m, m.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := gif.Encode(&buf, out, &gif.Options{NumColors: 2}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
