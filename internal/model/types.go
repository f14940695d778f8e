package model

import (
	"time"

	"tangled/internal/data"
	"tangled/internal/program"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord describes one training run.
type RunRecord struct {
	VersionedRecord
	ID            string    `json:"id"`
	Scape         string    `json:"scape"`
	Agent         string    `json:"agent"`
	Seed          uint64    `json:"seed"`
	Generations   uint64    `json:"generations"`
	NbRoots       int       `json:"nb_roots"`
	NbThreads     int       `json:"nb_threads"`
	BestScore     float64   `json:"best_score"`
	BestRootID    uint64    `json:"best_root_id"`
	Interrupted   bool      `json:"interrupted,omitempty"`
	CreatedAtUTC  time.Time `json:"created_at_utc"`
	FinishedAtUTC time.Time `json:"finished_at_utc"`
	Parameters    []byte    `json:"parameters,omitempty"`
}

// GenerationDiagnostics summarises one generation of a run.
type GenerationDiagnostics struct {
	Generation      uint64   `json:"generation"`
	NbVertices      int      `json:"nb_vertices"`
	NbTeams         int      `json:"nb_teams"`
	NbRoots         int      `json:"nb_roots"`
	NbEdges         int      `json:"nb_edges"`
	MinScore        float64  `json:"min_score"`
	MeanScore       float64  `json:"mean_score"`
	MaxScore        float64  `json:"max_score"`
	ValidationScore *float64 `json:"validation_score,omitempty"`
	PopulateMS      int64    `json:"populate_ms"`
	EvaluationMS    int64    `json:"evaluation_ms"`
	ValidationMS    int64    `json:"validation_ms,omitempty"`
	TotalMS         int64    `json:"total_ms"`
}

// GraphSnapshot is a serialisable copy of a graph. Programs are listed once
// and edges refer to them by index, so sharing between edges survives the
// round trip.
type GraphSnapshot struct {
	VersionedRecord
	RunID        string           `json:"run_id,omitempty"`
	Generation   uint64           `json:"generation"`
	Registers    int              `json:"registers"`
	Constants    int              `json:"constants"`
	Sources      []data.Shape     `json:"sources"`
	Instructions []string         `json:"instructions"`
	Vertices     []VertexSnapshot `json:"vertices"`
	Edges        []EdgeSnapshot   `json:"edges"`
	Programs     []ProgramListing `json:"programs"`
	Roots        []uint64         `json:"roots"`
}

type VertexSnapshot struct {
	ID       uint64  `json:"id"`
	Kind     string  `json:"kind"`
	ActionID *uint64 `json:"action_id,omitempty"`
}

type EdgeSnapshot struct {
	Source      uint64 `json:"source"`
	Destination uint64 `json:"destination"`
	Program     int    `json:"program"`
}

type ProgramListing struct {
	Constants []int32       `json:"constants,omitempty"`
	Lines     []LineListing `json:"lines"`
	Introns   int           `json:"introns"`
}

// LineListing names its instruction so that a snapshot stays readable
// without the instruction set it was taken with.
type LineListing struct {
	Instruction string            `json:"instruction"`
	Destination int               `json:"destination"`
	Operands    []program.Operand `json:"operands"`
	Params      []float64         `json:"params,omitempty"`
	Intron      bool              `json:"intron,omitempty"`
}
