package model

type StageType string

const (
	SourceStageType StageType = "source"
	NormalStageType StageType = "stage"
	SinkStageType   StageType = "sink"
)

// SourceIndex is the index reported for the source, which precedes every stage.
const SourceIndex = -1

// StageInfo describes one node of the pipeline.
type StageInfo struct {
	Type       StageType
	Name       string
	Index      int
	Ordered    bool
	Concurrent int
	BufferSize int
}

var (
	// StartStage is the parent of the source.
	StartStage = &StageInfo{Name: "start", Index: SourceIndex - 1}
	// EndStage is the node after the sink.
	EndStage = &StageInfo{Name: "end"}
)
