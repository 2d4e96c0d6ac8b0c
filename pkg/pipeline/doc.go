// Package pipeline runs a sequence of stages over a stream of items.
//
// Each stage runs a worker function on up to N items at once and forwards the results to the next
// stage through a bounded channel. A stage is either Unordered, emitting results as soon as they
// complete, or Ordered, emitting them in the order the items arrived at the stage. The capacity of
// the channel after a stage bounds how many results may wait for the next stage: a slow stage makes
// the stages before it wait instead of piling up items in memory.
//
//	b := pipeline.FromSlice(urls)
//	images := pipeline.AddStage(b, "download", download, pipeline.Unordered(8))
//	resized := pipeline.AddStage(images, "resize", resize, pipeline.Ordered(4), pipeline.Backpressure(16))
//	output, completion, err := resized.Build(ctx)
//	if err != nil {
//		return err
//	}
//	for img := range output.All() {
//		...
//	}
//	return completion.Wait()
//
// The output and the completion are two separate signals. The output ends early when a stage fails,
// the completion tells why. A failing stage stops admitting items, stops every stage before it, lets
// its running workers return and closes its output; the stages after it drain what they already
// received. Completion.Wait returns the failure of the earliest failed stage.
//
// Cancelling the context given to Build, Output.Close and Completion.Cancel all stop the pipeline.
// Workers are never interrupted, they only see their context cancelled.
package pipeline
