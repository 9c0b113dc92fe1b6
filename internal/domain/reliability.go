package domain

import (
	"math"

	"github.com/couchcryptid/balloon-reliability-service/internal/geo"
)

// EdgeKind marks which side of a gap a MissingEdge sits on.
type EdgeKind string

const (
	GapStart EdgeKind = "gap_start"
	GapEnd   EdgeKind = "gap_end"
)

// TeleportEvent records a pair of consecutive valid samples whose implied
// speed exceeds the teleport threshold. HourOffset is the later sample's slot.
type TeleportEvent struct {
	HourOffset   int       `json:"hourOffset"`
	From         geo.Point `json:"from"`
	To           geo.Point `json:"to"`
	ElapsedHours int       `json:"dtHours"`
	SpeedKmH     float64   `json:"speed"`
}

// MissingEdge is the valid position bracketing a run of gaps.
type MissingEdge struct {
	HourOffset int      `json:"hourOffset"`
	Kind       EdgeKind `json:"kind"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
}

// TeleportBuckets tallies legs by speed tier. The tiers are mutually exclusive.
type TeleportBuckets struct {
	MaxSpeed float64 `json:"maxSpeed"`
	Gt200    int     `json:"gt200"`
	Gt350    int     `json:"gt350"`
	Gt600    int     `json:"gt600"`
}

// TurnBuckets tallies turn angles by tier.
type TurnBuckets struct {
	Gt90  int `json:"gt90"`
	Gt135 int `json:"gt135"`
}

// AltitudeBuckets tallies altitude deltas by tier.
type AltitudeBuckets struct {
	MaxDelta float64 `json:"maxAlt"`
	Gt5      int     `json:"gt5"`
	Gt10     int     `json:"gt10"`
}

// Evidence is the structured explanation stored alongside a score.
type Evidence struct {
	MaxSpeed        float64         `json:"maxSpeed"`
	TeleportBuckets TeleportBuckets `json:"teleports"`
	TeleportEvents  []TeleportEvent `json:"teleportEvents"`
	TurnBuckets     TurnBuckets     `json:"turns"`
	MissingEdges    []MissingEdge   `json:"missingEdges"`
	AltitudeBuckets AltitudeBuckets `json:"alts"`
}

// ReliabilityRecord is the score of one tracked object for one run.
type ReliabilityRecord struct {
	ObjectID      int      `json:"objectId"`
	Score         float64  `json:"score"`
	MissingCount  int      `json:"missingCount"`
	TeleportCount int      `json:"teleportCount"`
	MaxGap        int      `json:"maxGap"`
	Evidence      Evidence `json:"reasons"`
}

// Score evaluates a series with DefaultThresholds.
func Score(objectID int, s Series) ReliabilityRecord {
	return ScoreWith(objectID, s, DefaultThresholds())
}

// ScoreWith walks the series once, detecting gaps, teleports, sharp turns and
// altitude jumps, and folds them into a score in [0, 100]. It never fails:
// an all-gap series simply scores low.
func ScoreWith(objectID int, s Series, th Thresholds) ReliabilityRecord {
	rec := ReliabilityRecord{
		ObjectID: objectID,
		Evidence: Evidence{
			TeleportEvents: []TeleportEvent{},
			MissingEdges:   []MissingEdge{},
		},
	}
	ev := &rec.Evidence

	var (
		prev, prevPrev *Position
		prevHour       int
		prevBearing    float64
		elapsed        = 1
		gap            int
		inGap          bool
	)

	for hour, cur := range s {
		if cur == nil {
			if !inGap && prev != nil {
				ev.MissingEdges = append(ev.MissingEdges, MissingEdge{
					HourOffset: prevHour, Kind: GapStart, Lat: prev.Lat, Lon: prev.Lon,
				})
			}
			inGap = true
			rec.MissingCount++
			gap++
			elapsed++
			continue
		}

		if inGap {
			ev.MissingEdges = append(ev.MissingEdges, MissingEdge{
				HourOffset: hour, Kind: GapEnd, Lat: cur.Lat, Lon: cur.Lon,
			})
			inGap = false
		}
		rec.MaxGap = max(rec.MaxGap, gap)
		gap = 0

		if prev != nil {
			speed := geo.HaversineSpeed(prev.Point(), cur.Point(), elapsed)
			ev.MaxSpeed = math.Max(ev.MaxSpeed, speed)
			ev.TeleportBuckets.MaxSpeed = ev.MaxSpeed

			if speed > th.TeleportSpeed {
				rec.TeleportCount++
				ev.TeleportEvents = append(ev.TeleportEvents, TeleportEvent{
					HourOffset:   hour,
					From:         prev.Point(),
					To:           cur.Point(),
					ElapsedHours: elapsed,
					SpeedKmH:     speed,
				})
			}
			switch {
			case speed > th.SpeedHigh:
				ev.TeleportBuckets.Gt600++
			case speed > th.TeleportSpeed:
				ev.TeleportBuckets.Gt350++
			case speed > th.SpeedLow:
				ev.TeleportBuckets.Gt200++
			}

			if prev.Alt != nil && cur.Alt != nil {
				dAlt := math.Abs(*prev.Alt - *cur.Alt)
				ev.AltitudeBuckets.MaxDelta = math.Max(ev.AltitudeBuckets.MaxDelta, dAlt)
				switch {
				case dAlt > th.AltHigh:
					ev.AltitudeBuckets.Gt10++
				case dAlt > th.AltLow:
					ev.AltitudeBuckets.Gt5++
				}
			}

			b := geo.Bearing(prev.Point(), cur.Point())
			if prevPrev != nil {
				turn := geo.AngularDifference(prevBearing, b)
				switch {
				case turn > th.TurnHigh:
					ev.TurnBuckets.Gt135++
				case turn > th.TurnLow:
					ev.TurnBuckets.Gt90++
				}
			}
			prevBearing = b
		}

		prevPrev = prev
		prev = cur
		prevHour = hour
		elapsed = 1
	}

	// A trailing gap has no closing edge but still counts toward maxGap.
	rec.MaxGap = max(rec.MaxGap, gap)
	rec.Score = computeScore(rec, th)
	return rec
}

func computeScore(rec ReliabilityRecord, th Thresholds) float64 {
	ev := rec.Evidence
	missing := th.MissingWeight*float64(rec.MissingCount) + th.MaxGapWeight*float64(rec.MaxGap)
	teleport := math.Min(th.TeleportCap,
		th.SpeedLowWeight*math.Sqrt(float64(ev.TeleportBuckets.Gt200))+
			th.SpeedMidWeight*math.Sqrt(float64(ev.TeleportBuckets.Gt350))+
			th.SpeedHighWeight*math.Sqrt(float64(ev.TeleportBuckets.Gt600)))
	turn := th.TurnHighWeight*float64(ev.TurnBuckets.Gt135) + th.TurnLowWeight*float64(ev.TurnBuckets.Gt90)
	alt := th.AltHighWeight*float64(ev.AltitudeBuckets.Gt10) + th.AltLowWeight*float64(ev.AltitudeBuckets.Gt5)

	return math.Max(0, math.Min(100, 100-missing-teleport-turn-alt))
}
