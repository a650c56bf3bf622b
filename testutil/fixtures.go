package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"gorm.io/gorm"
)

// CreateFixtures inserts each model into the database.
func CreateFixtures(t *testing.T, db *gorm.DB, models ...interface{}) {
	t.Helper()

	for _, model := range models {
		if err := db.Create(model).Error; err != nil {
			t.Fatalf("failed to create fixture: %v", err)
		}
	}
}

// SolidPNG encodes a w x h PNG filled with c.
func SolidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return encode(t, img)
}

// SplitPNG encodes a w x h PNG whose left half is left and right half is right.
func SplitPNG(t *testing.T, w, h int, left, right color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return encode(t, img)
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}
