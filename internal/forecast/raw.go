package forecast

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RawForecast is the hourly payload of the primary provider:
//
//	{"data":[{"dt":1751868000,"rain":{"1h":0.2},"wind":{"speed":12,"gust":30},
//	  "T":{"value":17.5},"rain_probability":40,"thunderstorm_probability":10}]}
type RawForecast struct {
	Data []RawHour `json:"data"`
}

// RawHour is one entry of RawForecast.Data.
type RawHour struct {
	Dt                      int64              `json:"dt"`
	Rain                    map[string]float64 `json:"rain,omitempty"`
	Wind                    *RawWind           `json:"wind,omitempty"`
	T                       *RawTemperature    `json:"T,omitempty"`
	RainProbability         *float64           `json:"rain_probability,omitempty"`
	ThunderstormProbability *float64           `json:"thunderstorm_probability,omitempty"`
}

type RawWind struct {
	Speed *float64 `json:"speed,omitempty"`
	Gust  *float64 `json:"gust,omitempty"`
}

type RawTemperature struct {
	Value *float64 `json:"value,omitempty"`
}

// DecodeRaw parses a RawForecast document.
func DecodeRaw(data []byte, loc *time.Location) ([]HourlyRecord, error) {
	var raw RawForecast
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode forecast: %w", err)
	}
	return raw.Records(loc), nil
}

// Records converts the payload into records sorted by time. Missing amounts
// become zero, missing probabilities and temperature stay nil.
func (r RawForecast) Records(loc *time.Location) []HourlyRecord {
	if loc == nil {
		loc = time.UTC
	}
	records := make([]HourlyRecord, 0, len(r.Data))
	for _, h := range r.Data {
		rec := HourlyRecord{
			Timestamp:               time.Unix(h.Dt, 0).In(loc),
			RainAmount:              h.Rain["1h"],
			RainProbability:         h.RainProbability,
			ThunderstormProbability: h.ThunderstormProbability,
		}
		if h.Wind != nil {
			if h.Wind.Speed != nil {
				rec.WindSpeed = *h.Wind.Speed
			}
			if h.Wind.Gust != nil {
				rec.WindGusts = *h.Wind.Gust
			}
		}
		if h.T != nil {
			rec.Temperature = h.T.Value
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

// RawFromRecords is the inverse of Records, used to publish and replay the
// exact input of a report.
func RawFromRecords(records []HourlyRecord) RawForecast {
	raw := RawForecast{Data: make([]RawHour, 0, len(records))}
	for _, rec := range records {
		h := RawHour{
			Dt:                      rec.Timestamp.Unix(),
			Rain:                    map[string]float64{"1h": rec.RainAmount},
			Wind:                    &RawWind{Speed: ptr(rec.WindSpeed), Gust: ptr(rec.WindGusts)},
			RainProbability:         rec.RainProbability,
			ThunderstormProbability: rec.ThunderstormProbability,
		}
		if rec.Temperature != nil {
			h.T = &RawTemperature{Value: rec.Temperature}
		}
		raw.Data = append(raw.Data, h)
	}
	return raw
}
