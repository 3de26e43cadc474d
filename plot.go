package coboost

// plot.go implements routines to plot training diagnostics with plotly.

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strings"
	"time"

	grob "github.com/MetalBlueberry/go-plotly/graph_objects"
	"github.com/MetalBlueberry/go-plotly/offline"
)

// PlotDef specifies the Plotly layout features commonly used here.
type PlotDef struct {
	Show     bool    // Show - true = show graph in browser
	Title    string  // Title - plot title
	XTitle   string  // XTitle - x-axis title
	YTitle   string  // Ytitle - y-axis title
	STitle   string  // STitle - sub-title (under the x-axis)
	Legend   bool    // Legend - true = show legend
	Height   float64 // Height - height of graph, in pixels
	Width    float64 // Width - width of graph, in pixels
	FileName string  // FileName - output file for graph (in html)
}

// Plotter plots the Plotly Figure fig with Layout lay, augmented by the
// features in pd.  lay can be initialized with any additional layout options
// needed (nil is OK).
func Plotter(fig *grob.Fig, lay *grob.Layout, pd *PlotDef) error {
	// convert newlines to <br>
	pd.Title = strings.ReplaceAll(pd.Title, "\n", "<br>")
	pd.STitle = strings.ReplaceAll(pd.STitle, "\n", "<br>")
	pd.XTitle = strings.ReplaceAll(pd.XTitle, "\n", "<br>")
	pd.YTitle = strings.ReplaceAll(pd.YTitle, "\n", "<br>")

	if lay == nil {
		lay = &grob.Layout{}
	}

	if pd.Title != "" {
		lay.Title = &grob.LayoutTitle{Text: pd.Title}
	}

	if pd.YTitle != "" {
		if lay.Yaxis == nil {
			lay.Yaxis = &grob.LayoutYaxis{Title: &grob.LayoutYaxisTitle{Text: pd.YTitle}}
		} else {
			lay.Yaxis.Title = &grob.LayoutYaxisTitle{Text: pd.YTitle}
		}
		lay.Yaxis.Showline = grob.True
	}

	if pd.XTitle != "" {
		xTitle := pd.XTitle
		if pd.STitle != "" {
			xTitle += fmt.Sprintf("<br>%s", pd.STitle)
		}

		if lay.Xaxis == nil {
			lay.Xaxis = &grob.LayoutXaxis{Title: &grob.LayoutXaxisTitle{Text: xTitle}}
		} else {
			lay.Xaxis.Title = &grob.LayoutXaxisTitle{Text: xTitle}
		}
	}

	if !pd.Legend {
		lay.Showlegend = grob.False
	}

	if pd.Width > 0.0 {
		lay.Width = pd.Width
	}

	if pd.Height > 0.0 {
		lay.Height = pd.Height
	}

	fig.Layout = lay

	if pd.FileName != "" {
		offline.ToHtml(fig, pd.FileName)
	}

	if pd.Show {
		tmp := false
		if pd.FileName == "" {
			tmp = true
			// create temp file.  We'll return this, in case it's needed
			rand.Seed(time.Now().UnixMicro())
			pd.FileName = fmt.Sprintf("%s/plotly%d.html", os.TempDir(), rand.Uint32())
		}

		offline.ToHtml(fig, pd.FileName)
		cmd := exec.Command(Browser, "-url", pd.FileName)

		if e := cmd.Start(); e != nil {
			return e
		}
		time.Sleep(time.Second)

		if tmp {
			// need to pause while browser loads graph
			if e := os.Remove(pd.FileName); e != nil {
				return e
			}
		}
	}

	return nil
}

// riskTrace builds one scatter line of risk values over iterations.
func riskTrace(name string, risk []float64) *grob.Scatter {
	iters := make([]float64, len(risk))
	for i := range iters {
		iters[i] = float64(i)
	}

	return &grob.Scatter{
		Type: grob.TraceTypeScatter,
		X:    iters,
		Y:    risk,
		Name: name,
		Mode: grob.ScatterModeLines,
	}
}

// PlotRisk plots the in-bag risk history and, for every risk logger in the
// list, its logged trace.
func (b *Boost) PlotRisk(pd *PlotDef) error {
	if !b.trained {
		return Wrapper(ErrConfig, "(*Boost).PlotRisk: model is not trained")
	}

	traces := grob.Traces{riskTrace("inbag", b.risk)}

	for _, id := range b.loggers.IDs() {
		lg, _ := b.loggers.Get(id)

		switch lg.(type) {
		case *InbagRiskLogger, *OobRiskLogger:
			traces = append(traces, riskTrace(id, lg.LoggedData()))
		}
	}

	fig := &grob.Fig{Data: traces}

	return Plotter(fig, nil, pd)
}
