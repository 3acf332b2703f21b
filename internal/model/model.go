package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Run{},
	&Lap{},
	&FrameTiming{},
}

// Run is one executed scenario.
type Run struct {
	ID          uint            `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	MapName     string          `json:"mapName" gorm:"size:64;index:idx_run_map_name"`
	StartTime   time.Time       `json:"startTime" gorm:"type:timestamptz;index:idx_run_start_time"`
	EndTime     sql.NullTime    `json:"endTime" gorm:"type:timestamptz"`
	EndReason   string          `json:"endReason" gorm:"size:32"`
	Track       geom.LineString `json:"track" gorm:"type:bytes"`                 // closed waypoint loop, WKB
	TrackLength float64         `json:"trackLength"`                             // display pixels
	Cars        datatypes.JSON  `json:"cars"`                                    // []core.CarSelection
	LapCount    int             `json:"lapCount" gorm:"default:0"`               // laps after lap 0
	BestLapMs   sql.NullFloat64 `json:"bestLapMs"`                               // fastest single lap
	Laps        []Lap           `json:"laps,omitempty" gorm:"foreignKey:RunID;"` // loaded on demand
}

func (*Run) TableName() string {
	return "runs"
}

// Lap is a lap boundary measured from the start of its run.
type Lap struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID     uint      `json:"runId" gorm:"index:idx_lap_run_id"`
	Run       Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	Number    int       `json:"number"`
	ElapsedMs float64   `json:"elapsedMs"`
	Time      time.Time `json:"time" gorm:"type:timestamptz"`
}

func (*Lap) TableName() string {
	return "laps"
}

// FrameTiming holds the per-stage duration of one scheduler frame, in
// microseconds.
type FrameTiming struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	RunID      uint      `json:"runId" gorm:"index:idx_frame_timing_run_id"`
	Run        Run       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:RunID;"`
	Frame      uint      `json:"frame" gorm:"index:idx_frame_timing_frame"`
	Time       time.Time `json:"time" gorm:"type:timestamptz"`
	VisionUs   int64     `json:"visionUs"`
	UpdateUs   int64     `json:"updateUs"`
	LapsUs     int64     `json:"lapsUs"`
	DisplayUs  int64     `json:"displayUs"`
	CopyDownUs int64     `json:"copyDownUs"`
	TotalUs    int64     `json:"totalUs"`
}

func (*FrameTiming) TableName() string {
	return "frame_timings"
}
