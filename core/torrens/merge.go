package torrens

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

const pngDataURLPrefix = "data:image/png;base64,"

// MergeText applies the textual parts of in to ans.
// Text tasks take the posted text as is. For the other types, the posted text (when the task allows it)
// is appended to the existing text, newline joined.
func MergeText(task Task, ans Answer, in AnswerInput) Answer {
	switch task.ResponseType {
	case ResponseText:
		ans.TextAnswer = strings.TrimSpace(in.Text)
	case ResponseList:
		ans.ListAnswer = SplitIdeas(in.List)
	}
	if task.AllowText && task.ResponseType != ResponseText {
		ans.TextAnswer = AppendText(ans.TextAnswer, in.Text)
	}
	return ans
}

func AppendText(existing, extra string) string {
	existing = strings.TrimSpace(existing)
	extra = strings.TrimSpace(extra)
	switch {
	case extra == "":
		return existing
	case existing == "":
		return extra
	}
	return existing + "\n" + extra
}

// SplitIdeas splits raw into trimmed, non blank lines.
func SplitIdeas(raw string) []string {
	raw = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(raw)
	ideas := []string{}
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ideas = append(ideas, line)
		}
	}
	return ideas
}

// DecodeDrawing decodes a canvas PNG data URL. ok is false when dataURL is not a PNG data URL.
func DecodeDrawing(dataURL string) (png []byte, ok bool, err error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, false, nil
	}
	png, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, true, errors.Wrap(err, "decoding drawing")
	}
	return png, true, nil
}

// KeepImages truncates files to the task cap. capped reports that the cap was reached.
func KeepImages(task Task, files []core.Upload) (kept []core.Upload, capped bool) {
	max := task.MaxImages
	if max < 0 {
		max = 0
	}
	if len(files) > max {
		files = files[:max]
	}
	return files, task.MaxImages > 0 && len(files) >= task.MaxImages
}
