package drawer

import (
	"fmt"
	"io"
	"sort"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/go-stages/internal/store"
	"github.com/askiada/go-stages/pkg/pipeline/measure"
)

// DOTDrawer renders the pipeline graph in the DOT language.
type DOTDrawer struct {
	store  *store.Stages
	graph  graph.Graph[string, string]
	stages map[string]struct{}
	wrt    io.Writer
}

// NewDOTDrawer creates a new DOT drawer writing to wrt.
func NewDOTDrawer(wrt io.Writer) *DOTDrawer {
	stages := store.NewStages()

	return &DOTDrawer{
		wrt:    wrt,
		store:  stages,
		graph:  graph.NewWithStore(graph.StringHash, graph.Store[string, string](stages), graph.Directed()),
		stages: make(map[string]struct{}),
	}
}

// AddStage adds a stage to the pipeline graph.
func (d *DOTDrawer) AddStage(name, description string) error {
	opts := []func(*graph.VertexProperties){graph.VertexAttribute("shape", "box")}
	if description != "" {
		opts = append(opts, graph.VertexAttribute("description", description))
	}

	err := d.graph.AddVertex(name, opts...)
	if err != nil {
		return errors.Wrapf(err, "unable to add vertex %s", name)
	}

	d.stages[name] = struct{}{}

	return nil
}

// AddLink adds a link between parent and children stages.
func (d *DOTDrawer) AddLink(parentName, childrenName string) error {
	err := d.graph.AddEdge(parentName, childrenName)
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childrenName)
	}

	return nil
}

// Draw writes the pipeline graph.
func (d *DOTDrawer) Draw() error {
	g, err := d.snapshot()
	if err != nil {
		return err
	}
	err = dotTmpl.Execute(d.wrt, g)
	if err != nil {
		return errors.Wrap(err, "unable to write dot graph")
	}

	return nil
}

// SetTotalTime sets the total time for the stage.
func (d *DOTDrawer) SetTotalTime(stageName string, startTime time.Time) error {
	err := d.store.UpdateVertex(stageName, graph.VertexAttribute("xlabel", round(time.Since(startTime)).String()))
	if err != nil {
		return errors.Wrapf(err, "unable to update %s vertex", stageName)
	}

	return nil
}

const maxRGB = 240

// AddMeasure labels stages with their average computation time and colours edges from blue to red,
// the slowest transport being red.
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	allChanElapsed := make(map[time.Duration]string)
	sortedAllChanElapsed := []time.Duration{}

	for _, stage := range msr.AllMetrics() {
		for _, info := range stage.AVGTransportDuration() {
			if info.Elapsed == 0 {
				continue
			}

			if _, ok := allChanElapsed[info.Elapsed]; ok {
				continue
			}

			allChanElapsed[info.Elapsed] = ""

			sortedAllChanElapsed = append(sortedAllChanElapsed, info.Elapsed)
		}
	}

	if len(sortedAllChanElapsed) > 0 {
		sort.Slice(sortedAllChanElapsed, func(i, j int) bool {
			return sortedAllChanElapsed[i] > sortedAllChanElapsed[j]
		})

		maxValue := sortedAllChanElapsed[0]
		minValue := sortedAllChanElapsed[len(sortedAllChanElapsed)-1]

		for curr := range allChanElapsed {
			fraction := 1.0
			if maxValue > minValue {
				fraction = float64(curr-minValue) / float64(maxValue-minValue)
			}

			red := maxRGB * fraction
			blue := maxRGB - red

			colour, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
			if err != nil {
				return errors.Wrap(err, "unable to get colour")
			}

			allChanElapsed[curr] = colour.ToHEX().String()
		}
	}

	err := d.updateMetrics(msr, allChanElapsed)
	if err != nil {
		return errors.Wrap(err, "unable to update metrics")
	}

	return nil
}

func (d *DOTDrawer) updateMetrics(msr measure.Measure, allChanElapsed map[time.Duration]string) error {
	for name, stage := range msr.AllMetrics() {
		if _, ok := d.stages[name]; !ok {
			continue
		}

		_, properties, err := d.graph.VertexWithProperties(name)
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}

		xlabel := properties.Attributes["xlabel"]
		if stageAvg := stage.AVGDuration(); stageAvg != 0 {
			xlabel = fmt.Sprintf("%s x %d", stageAvg, stage.Total())
		}

		if stage.GetTotalDuration() > 0 {
			if xlabel != "" {
				xlabel += ", "
			}
			xlabel += "end: " + round(stage.GetTotalDuration()).String()
		}

		if xlabel != "" {
			err = d.store.UpdateVertex(name, graph.VertexAttribute("xlabel", xlabel))
			if err != nil {
				return errors.Wrapf(err, "unable to update %s vertex", name)
			}
		}

		for inputStage, info := range stage.AVGTransportDuration() {
			if info.Elapsed == 0 {
				continue
			}

			err := d.graph.UpdateEdge(inputStage, name,
				graph.EdgeAttribute("label", info.Elapsed.String()),
				graph.EdgeAttribute("fontcolor", "blue"),
				graph.EdgeAttribute("color", allChanElapsed[info.Elapsed]), //nolint
			)
			if err != nil {
				return errors.Wrapf(err, "unable to update edge from %s to %s", inputStage, name)
			}
		}
	}

	return nil
}

func round(d time.Duration) time.Duration {
	if d > time.Millisecond {
		return d.Round(time.Millisecond)
	}

	return d.Round(time.Microsecond)
}

const dotTemplate = `strict digraph {
	rankdir="LR";
{{- range .Vertices}}
	"{{.Name}}" [ {{if .Label}}label=<{{.Label}}>, {{end}}{{range $k, $v := .Attributes}}{{$k}}="{{$v}}", {{end}}];
{{- end}}
{{- range .Edges}}
	"{{.From}}" -> "{{.To}}" [ {{range $k, $v := .Attributes}}{{$k}}="{{$v}}", {{end}}];
{{- end}}
}
`

var dotTmpl = template.Must(template.New("dot").Parse(dotTemplate))

type dotVertex struct {
	Name       string
	Label      string
	Attributes map[string]string
}

type dotEdge struct {
	From, To   string
	Attributes map[string]string
}

type dotGraph struct {
	Vertices []dotVertex
	Edges    []dotEdge
}

// label stacks the description and the xlabel of a stage under its name.
func label(name string, attributes map[string]string) string {
	var lines []string
	for _, key := range []string{"description", "xlabel"} {
		if line, ok := attributes[key]; ok {
			lines = append(lines, line)
			delete(attributes, key)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	res := name
	for _, line := range lines {
		res += fmt.Sprintf(` <BR /> <FONT POINT-SIZE="12">%s</FONT>`, line)
	}

	return res
}

func (d *DOTDrawer) snapshot() (dotGraph, error) {
	var res dotGraph

	names, err := d.store.ListVertices()
	if err != nil {
		return res, errors.Wrap(err, "unable to list vertices")
	}
	for _, name := range names {
		_, properties, err := d.store.Vertex(name)
		if err != nil {
			return res, errors.Wrapf(err, "unable to get %s vertex", name)
		}
		res.Vertices = append(res.Vertices, dotVertex{
			Name:       name,
			Label:      label(name, properties.Attributes),
			Attributes: properties.Attributes,
		})
	}

	edges, err := d.store.ListEdges()
	if err != nil {
		return res, errors.Wrap(err, "unable to list edges")
	}
	for _, edge := range edges {
		res.Edges = append(res.Edges, dotEdge{
			From:       edge.Source,
			To:         edge.Target,
			Attributes: edge.Properties.Attributes,
		})
	}
	sort.Slice(res.Edges, func(i, j int) bool {
		if res.Edges[i].From != res.Edges[j].From {
			return res.Edges[i].From < res.Edges[j].From
		}

		return res.Edges[i].To < res.Edges[j].To
	})

	return res, nil
}

var _ Drawer = (*DOTDrawer)(nil)
