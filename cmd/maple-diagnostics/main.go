// maple-diagnostics plots the log-likelihood trajectory recorded by a
// maple run (its -json summary's "trajectory" field) so a user can see at
// a glance whether placement and SPR refinement converged smoothly or
// stalled/oscillated.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type runSummary struct {
	Trajectory   []float64 `json:"trajectory"`
	Taxa         int       `json:"taxa"`
	RefinePasses int       `json:"refinePasses"`
}

func main() {
	jsonF := flag.String("json", "", "maple -json run summary")
	outF := flag.String("out", "trajectory.png", "output PNG path")
	flag.Parse()

	if *jsonF == "" {
		fmt.Fprintln(os.Stderr, "maple-diagnostics: -json is required")
		os.Exit(2)
	}

	f, err := os.Open(*jsonF)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var summary runSummary
	if err := json.NewDecoder(f).Decode(&summary); err != nil {
		panic(err)
	}
	if len(summary.Trajectory) == 0 {
		fmt.Fprintln(os.Stderr, "maple-diagnostics: empty trajectory, nothing to plot")
		os.Exit(1)
	}

	p := plot.New()
	p.Title.Text = "log-likelihood trajectory"
	p.X.Label.Text = "step (placements, then refine passes)"
	p.Y.Label.Text = "log-likelihood"

	pts := make(plotter.XYs, len(summary.Trajectory))
	for i, lnL := range summary.Trajectory {
		pts[i].X = float64(i)
		pts[i].Y = lnL
	}

	if summary.Taxa > 0 && summary.Taxa < len(pts) {
		buildLine, err := plotter.NewLine(pts[:summary.Taxa])
		if err != nil {
			panic(err)
		}
		buildLine.Color = plotutil.Color(0)
		p.Add(buildLine)
		p.Legend.Add("build", buildLine)

		refineLine, err := plotter.NewLine(pts[summary.Taxa-1:])
		if err != nil {
			panic(err)
		}
		refineLine.Color = plotutil.Color(1)
		p.Add(refineLine)
		p.Legend.Add("refine", refineLine)
	} else {
		if err := plotutil.AddLines(p, "trajectory", pts); err != nil {
			panic(err)
		}
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *outF); err != nil {
		panic(err)
	}
	fmt.Printf("wrote %s (%d points, %d build, %d refine)\n", *outF, len(pts), summary.Taxa, summary.RefinePasses)
}
