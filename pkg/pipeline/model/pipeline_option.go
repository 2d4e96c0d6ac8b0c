package model

import "time"

// PipelineOption defines the interface for pipeline plugins.
//
// Prepare functions run sequentially while the pipeline is built. OnStageOutput and AfterStage
// run from the goroutines of the stages, concurrently with each other.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error

	// PrepareStage runs once per node, in pipeline order, before anything starts.
	PrepareStage(parentStage, stage *StageInfo) error
	// OnStageOutput runs everytime something is pushed to the output of the stage.
	OnStageOutput(parentStage, stage *StageInfo, iterationDuration, computationDuration time.Duration) error
	// AfterStage runs once the stage has closed its output.
	AfterStage(stage *StageInfo, totalDuration time.Duration) error

	// Finish runs after every stage has returned.
	Finish() error
}
