// Package export turns a storyboard into editor-friendly artifacts,
// currently a CMX 3600 style EDL cut list.
package export

import (
	"fmt"

	"github.com/reelboard/reelboard-agent/internal/storyboard"
)

// Clip is one storyboard scene flattened for export. Source timecode
// always starts at zero because each rendered clip is a standalone file.
type Clip struct {
	SceneID    string
	ClipName   string
	DurationMs int
	MediaPath  string
	Rendered   bool
}

// BuildClips maps scenes to clips in storyboard order. Scenes without a
// rendered video keep a placeholder media path so the timeline stays
// complete.
func BuildClips(scenes []*storyboard.Scene) []Clip {
	clips := make([]Clip, 0, len(scenes))
	for i, sc := range scenes {
		clip := Clip{
			SceneID:    sc.ID,
			ClipName:   fmt.Sprintf("Scene %02d", i+1),
			DurationMs: sc.Duration * 1000,
			MediaPath:  sc.VideoPath,
			Rendered:   sc.VideoStatus == storyboard.VideoDone && sc.VideoPath != "",
		}
		if !clip.Rendered {
			clip.MediaPath = fmt.Sprintf("<not rendered: %s>", sc.ID)
		}
		clips = append(clips, clip)
	}
	return clips
}
