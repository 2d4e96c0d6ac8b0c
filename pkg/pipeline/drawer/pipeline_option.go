package drawer

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-stages/pkg/pipeline/measure"
	"github.com/askiada/go-stages/pkg/pipeline/model"
)

type pipelineDrawer struct {
	Drawer
	m         measure.Measure
	startTime time.Time
}

func (pd *pipelineDrawer) New() error {
	err := pd.AddStage(model.StartStage.Name, "")
	if err != nil {
		return errors.Wrap(err, "unable to add start stage to drawer")
	}
	err = pd.AddStage(model.EndStage.Name, "")
	if err != nil {
		return errors.Wrap(err, "unable to add end stage to drawer")
	}
	pd.startTime = time.Now()

	return nil
}

func describe(stage *model.StageInfo) string {
	switch stage.Type {
	case model.NormalStageType:
		policy := "unordered"
		if stage.Ordered {
			policy = "ordered"
		}

		return fmt.Sprintf("%s(%d), buffer %d", policy, stage.Concurrent, stage.BufferSize)
	case model.SourceStageType:
		return fmt.Sprintf("buffer %d", stage.BufferSize)
	default:
		return ""
	}
}

func (pd *pipelineDrawer) PrepareStage(parentStage, stage *model.StageInfo) error {
	err := pd.AddStage(stage.Name, describe(stage))
	if err != nil {
		return err
	}
	err = pd.AddLink(parentStage.Name, stage.Name)
	if err != nil {
		return err
	}
	if stage.Type == model.SinkStageType {
		err = pd.AddLink(stage.Name, model.EndStage.Name)
		if err != nil {
			return err
		}
	}

	return nil
}

func (pd *pipelineDrawer) OnStageOutput(_, _ *model.StageInfo, _, _ time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) AfterStage(_ *model.StageInfo, _ time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) Finish() error {
	if pd.m != nil {
		err := pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}
	err := pd.SetTotalTime(model.EndStage.Name, pd.startTime)
	if err != nil {
		return errors.Wrap(err, "unable to set total time")
	}

	err = pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer draws the pipeline once it has finished. measure is optional; when set it must
// also be plugged into the pipeline, before the drawer.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{Drawer: drawer, m: measure}
}
