/*

maple places new samples onto a growing phylogeny by likelihood, then
polishes the resulting topology with subtree-prune-and-regraft, without
ever recomputing a full pairwise distance matrix.

Basic usage:

	maple -alphabet dna alignment.diff

By default the alignment is read in the compact per-taxon diff format; use
-format to read FASTA or PHYLIP instead. Run maple -h to see all options.

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/mrrlab/maple/alignment"
	"github.com/mrrlab/maple/checkpoint"
	"github.com/mrrlab/maple/engine"
	"github.com/mrrlab/maple/params"
	"github.com/mrrlab/maple/region"
	"github.com/mrrlab/maple/substmodel"
)

var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

var log = logging.MustGetLogger("maple")
var formatter = logging.MustStringFormatter(`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`)

// RunSummary is the JSON run report written when -json is given, mirroring
// the shape of a placement run rather than a codon-model optimization.
type RunSummary struct {
	Version       string    `json:"version"`
	CommandLine   []string  `json:"commandLine"`
	NThreads      int       `json:"nThreads"`
	Taxa          int       `json:"taxa"`
	LogLikelihood float64   `json:"logLikelihood"`
	Trajectory    []float64 `json:"trajectory"`
	RefinePasses  int       `json:"refinePasses"`
	Time          float64   `json:"time"`
}

var (
	app = kingpin.New("maple", "phylogenetic placement and SPR refinement for closely related genomes").Version(version)

	alignmentFileName = app.Arg("alignment", "sequence alignment").Required().ExistingFile()

	format   = app.Flag("format", "alignment format (diff, fasta, phylip)").Default("diff").Enum("diff", "fasta", "phylip")
	interleaved = app.Flag("interleaved", "PHYLIP input is interleaved").Bool()
	alphabetName = app.Flag("alphabet", "sequence alphabet (dna or protein)").Default("dna").Enum("dna", "protein")
	unrest = app.Flag("unrest", "use a non-reversible (UNREST) rate matrix instead of GTR").Bool()

	startTreeF = app.Flag("start-tree", "Newick tree whose tip order seeds placement order").ExistingFile()

	maxIterations = app.Flag("iter", "maximum number of SPR/branch-length refinement passes").Int()
	mutationUpdatePeriod = app.Flag("mutation-update-period", "placements between rate matrix re-estimations").Int()

	outTreeF = app.Flag("out", "write final tree to a file (stdout if unset)").String()
	jsonF    = app.Flag("json", "write run summary in JSON format to a file").String()
	dbF      = app.Flag("checkpoint", "bbolt database file for periodic checkpointing").String()
	multifurcating = app.Flag("multifurcating", "collapse zero-length polytomy stubs on output").Default("true").Bool()

	nThreads = app.Flag("nt", "number of threads to use").Int()
	logLevel = app.Flag("loglevel", "set loglevel ('critical', 'error', 'warning', 'notice', 'info', 'debug')").
			Default("notice").
			Enum("critical", "error", "warning", "notice", "info", "debug")
)

func openAlignment(alphabet *alignment.Alphabet) (*alignment.Alignment, error) {
	f, err := os.Open(*alignmentFileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch *format {
	case "fasta":
		return alignment.ReadFasta(f, alphabet)
	case "phylip":
		return alignment.ReadPhylip(f, alphabet, *interleaved)
	default:
		return alignment.ReadDiff(f, alphabet)
	}
}

func readBackboneOrder() []string {
	if *startTreeF == "" {
		return nil
	}
	f, err := os.Open(*startTreeF)
	if err != nil {
		log.Fatal("Error opening start tree:", err)
	}
	defer f.Close()

	order, err := alignment.ReadBackboneOrder(f)
	if err != nil {
		log.Fatal("Error parsing start tree:", err)
	}
	return order
}

func buildModel(align *alignment.Alignment, p *params.Params) region.Model {
	n := align.Ref.Alphabet.NStates()
	pi := make([]float64, n)
	for i := range pi {
		pi[i] = 1.0 / float64(n)
	}
	if *unrest {
		rates := substmodel.DefaultGTRExchangeabilities(n)
		return substmodel.NewUNREST(rates, pi, align.Ref.States, p.MutationUpdatePeriod)
	}
	exch := substmodel.DefaultGTRExchangeabilities(n)
	return substmodel.NewGTR(exch, pi, align.Ref.States, p.MutationUpdatePeriod)
}

func openCheckpoint() *checkpoint.CheckpointIO {
	if *dbF == "" {
		return nil
	}
	db, err := bolt.Open(*dbF, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		log.Fatal("Error opening checkpoint database:", err)
	}
	return checkpoint.NewCheckpointIO(db, checkpoint.MAIN, params.Defaults().CheckpointPeriodSeconds)
}

func run() *RunSummary {
	startTime := time.Now()

	alphabet := alignment.DNA
	if *alphabetName == "protein" {
		alphabet = alignment.Protein
	}

	align, err := openAlignment(alphabet)
	if err != nil {
		log.Fatal("Error reading alignment:", err)
	}
	log.Infof("read alignment of %d taxa, %d sites", align.NTaxa(), align.Ref.L())

	p := params.Defaults()
	p.ResolveLengths(align.Ref.L())
	if *maxIterations > 0 {
		p.MaxIterations = *maxIterations
	}
	if *mutationUpdatePeriod > 0 {
		p.MutationUpdatePeriod = *mutationUpdatePeriod
	}

	model := buildModel(align, p)
	e := engine.New(model, p)

	ckpt := openCheckpoint()
	if ckpt != nil {
		log.Info("checkpointing enabled")
	}

	progress := func(placed, pass int, lnL float64) {
		if placed > 0 {
			log.Debugf("placed %d/%d, lnL=%.4f", placed, align.NTaxa(), lnL)
		} else {
			log.Infof("refine pass %d, lnL=%.4f", pass, lnL)
		}
		if ckpt != nil && ckpt.Old() {
			data := &checkpoint.CheckpointData{
				Newick:        e.Tree.WriteNewick(),
				PlacedTaxa:    placed,
				Pass:          pass,
				LogLikelihood: lnL,
				Trajectory:    e.Trajectory,
			}
			if err := ckpt.Save(data); err != nil {
				log.Error("Error saving checkpoint:", err)
			}
		}
	}

	result, err := e.Run(align, readBackboneOrder(), progress)
	if err != nil {
		log.Fatal("Error running placement engine:", err)
	}

	if !*multifurcating {
		result.Newick = e.Tree.Newick(false)
	}

	if ckpt != nil {
		final := &checkpoint.CheckpointData{
			Newick:        result.Newick,
			PlacedTaxa:    align.NTaxa(),
			Pass:          -1,
			LogLikelihood: result.LogLikelihood,
			Trajectory:    result.Trajectory,
			Final:         true,
		}
		if err := ckpt.Save(final); err != nil {
			log.Error("Error saving final checkpoint:", err)
		}
	}

	out := os.Stdout
	if *outTreeF != "" {
		f, err := os.Create(*outTreeF)
		if err != nil {
			log.Fatal("Error creating tree output file:", err)
		}
		defer f.Close()
		out = f
	}
	fmt.Fprintln(out, result.Newick)

	log.Noticef("final log-likelihood: %.4f", result.LogLikelihood)

	return &RunSummary{
		Taxa:          result.Taxa,
		LogLikelihood: result.LogLikelihood,
		Trajectory:    result.Trajectory,
		RefinePasses:  len(result.Trajectory) - result.Taxa,
		Time:          time.Since(startTime).Seconds(),
	}
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logging.SetFormatter(formatter)
	logging.SetBackend(logging.NewLogBackend(os.Stderr, "", 0))

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "maple")
	logging.SetLevel(level, "engine")
	logging.SetLevel(level, "placer")
	logging.SetLevel(level, "spr")
	logging.SetLevel(level, "phylotree")
	logging.SetLevel(level, "substmodel")
	logging.SetLevel(level, "checkpoint")

	log.Info(version)
	log.Info("Command line:", os.Args)

	runtime.GOMAXPROCS(*nThreads)
	log.Infof("using threads: %d", runtime.GOMAXPROCS(0))

	summary := run()
	summary.Version = version
	summary.CommandLine = os.Args
	summary.NThreads = runtime.GOMAXPROCS(0)

	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
