package itla

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type telemetryFrame struct {
	Freq  *float64 `json:"freq"`
	Power *float64 `json:"power"`
	Temp  *float64 `json:"temp"`
}

// Classify turns one raw line into a Telemetry, LogText or Malformed event.
// It never fails: a corrupt telemetry frame becomes Malformed.
func Classify(raw string) Event {
	return classifyAt(raw, time.Now())
}

func classifyAt(raw string, now time.Time) Event {
	line := strings.TrimRight(raw, "\r\n")
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		return Event{Kind: EventLogText, Text: line}
	}

	var frame telemetryFrame
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		return malformed(line, err)
	}

	var missing []string
	if frame.Freq == nil {
		missing = append(missing, "freq")
	}
	if frame.Power == nil {
		missing = append(missing, "power")
	}
	if frame.Temp == nil {
		missing = append(missing, "temp")
	}
	if len(missing) > 0 {
		return malformed(line, errors.New("missing "+strings.Join(missing, ", ")))
	}

	return Event{
		Kind: EventTelemetry,
		Telemetry: TelemetrySample{
			FrequencyTHz: *frame.Freq,
			PowerDBm:     *frame.Power,
			TemperatureC: *frame.Temp,
			ObservedAt:   now,
		},
	}
}

func malformed(line string, err error) Event {
	return Event{
		Kind: EventMalformed,
		Text: line,
		Err:  &DecodeError{Line: line, Err: err},
	}
}
