package quiz

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/trezcool/darslik/core"
)

// answersSchema describes the raw answers payload:
// {"<question id>": [<choice id>, ...] | <choice id> | "<free text>"}
const answersSchema = `{
	"type": "object",
	"patternProperties": {
		"^[0-9]+$": {
			"oneOf": [
				{"type": "array", "items": {"type": "integer", "minimum": 1}},
				{"type": "integer", "minimum": 1},
				{"type": "string"}
			]
		}
	},
	"additionalProperties": false
}`

var answersSchemaLoader = gojsonschema.NewStringLoader(answersSchema)

// Answer is a learner's answer to one question.
type Answer struct {
	ChoiceIDs []int64
	Text      string
}

// Answers maps question IDs to answers.
type Answers map[int64]Answer

func isEmptyPayload(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseAnswers validates and decodes a raw answers payload. An empty or null payload means no answers.
func ParseAnswers(raw []byte) (Answers, error) {
	answers := make(Answers)
	if isEmptyPayload(raw) {
		return answers, nil
	}

	res, err := gojsonschema.Validate(answersSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, core.NewFieldError("answers", "malformed answers payload")
	}
	if !res.Valid() {
		msg := "invalid answers payload"
		if errs := res.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		return nil, core.NewFieldError("answers", msg)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.Wrap(err, "decoding answers")
	}
	for key, val := range payload {
		qid, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue // guarded by the schema
		}
		var (
			ans  Answer
			ids  []int64
			id   int64
			text string
		)
		switch {
		case json.Unmarshal(val, &ids) == nil:
			ans.ChoiceIDs = ids
		case json.Unmarshal(val, &id) == nil:
			ans.ChoiceIDs = []int64{id}
		case json.Unmarshal(val, &text) == nil:
			ans.Text = text
		}
		answers[qid] = ans
	}
	return answers, nil
}

// Score is the outcome of an automatically scored attempt.
type Score struct {
	PointsGained float64
	PointsTotal  float64
	Percent      float64
	Advice       string
	Passed       bool
}

// ScoreAttempt scores the answers of the questions with the given ids (unknown ids are ignored).
// Choice questions earn their points only when the selected choices exactly match the correct ones.
// Text questions count towards the total only: they are graded manually.
func ScoreAttempt(qz Quiz, questions []Question, ids []int64, answers Answers) Score {
	byID := make(map[int64]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	var gained, total float64
	for _, id := range ValidIDs(questions, ids) {
		q := byID[id]
		pts := float64(q.Points)
		total += pts

		switch q.Type {
		case TypeSingle, TypeMulti:
			if correct := q.CorrectChoiceIDs(); len(correct) > 0 && sameChoices(answers[id].ChoiceIDs, correct) {
				gained += pts
			}
		}
	}

	// bands and the pass mark compare the exact ratio, only the stored percent is rounded
	var exact float64
	if total > 0 {
		exact = gained / total * 100
	}
	return Score{
		PointsGained: gained,
		PointsTotal:  total,
		Percent:      round2(exact),
		Advice:       PickAdvice(qz, exact),
		Passed:       qz.PassPercent == 0 || exact >= float64(qz.PassPercent),
	}
}

func sameChoices(selected []int64, correct map[int64]struct{}) bool {
	set := make(map[int64]struct{}, len(selected))
	for _, id := range selected {
		set[id] = struct{}{}
	}
	if len(set) != len(correct) {
		return false
	}
	for id := range correct {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// PickAdvice returns the advice band text for percent: high first, then mid, else low.
// Zero thresholds use the defaults (50, 80); an empty band text falls through to the next band.
func PickAdvice(qz Quiz, percent float64) string {
	midMin, highMin := qz.AdviceMidMin, qz.AdviceHighMin
	if midMin == 0 {
		midMin = DefaultAdviceMidMin
	}
	if highMin == 0 {
		highMin = DefaultAdviceHighMin
	}

	if percent >= float64(highMin) && qz.AdviceHigh != "" {
		return qz.AdviceHigh
	}
	if percent >= float64(midMin) && qz.AdviceMid != "" {
		return qz.AdviceMid
	}
	if qz.AdviceLow != "" {
		return qz.AdviceLow
	}
	return fallbackAdvice
}
