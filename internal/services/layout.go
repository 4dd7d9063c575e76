package services

import "github.com/maxmoniot/DiaporamaMp4/internal/models"

// Resolve maps a resolution tier and output format to a pixel target size.
// Anything unrecognized falls back to 1080p horizontal.
func Resolve(resolution models.Resolution, format models.Format) (width, height int) {
	type key struct {
		res    models.Resolution
		format models.Format
	}

	sizes := map[key][2]int{
		{models.Resolution720p, models.FormatHorizontal}:  {1280, 720},
		{models.Resolution720p, models.FormatVertical}:    {720, 1280},
		{models.Resolution1080p, models.FormatHorizontal}: {1920, 1080},
		{models.Resolution1080p, models.FormatVertical}:   {1080, 1920},
	}

	if size, ok := sizes[key{resolution, format}]; ok {
		return size[0], size[1]
	}
	return 1920, 1080
}

// PreviewSize is the web preview target for a format (16:9 or 9:16, reduced).
func PreviewSize(format models.Format) (width, height int) {
	if format == models.FormatVertical {
		return 540, 960
	}
	return 960, 540
}
