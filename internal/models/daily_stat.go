package models

import "time"

// DateLayout is the calendar-date key used for daily aggregates.
const DateLayout = "2006-01-02"

// StatKey identifies one DailyStat.
type StatKey struct {
	NodeID string
	Date   string // YYYY-MM-DD
}

// DailyStat is the running min/max aggregate of one node over one calendar day.
type DailyStat struct {
	Date   string `json:"date"`
	NodeID string `json:"nodeId"`

	TempMax     float64   `json:"tempMax"`
	TempMin     float64   `json:"tempMin"`
	HumMax      float64   `json:"humMax"`
	HumMin      float64   `json:"humMin"`
	TempMaxTime time.Time `json:"tempMaxTime"`
	TempMinTime time.Time `json:"tempMinTime"`
	HumMaxTime  time.Time `json:"humMaxTime"`
	HumMinTime  time.Time `json:"humMinTime"`

	Count       int       `json:"count"`
	FirstRecord time.Time `json:"firstRecord"`
	LastRecord  time.Time `json:"lastRecord"`
}

// Key returns the (node, date) identity of s.
func (s DailyStat) Key() StatKey {
	return StatKey{NodeID: s.NodeID, Date: s.Date}
}
