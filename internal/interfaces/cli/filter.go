package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/PDB-Sieve/internal/application/sieve"
	"github.com/turtacn/PDB-Sieve/internal/domain/filter"
	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PDB-Sieve/internal/infrastructure/storage/minio"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

type filterFlags struct {
	input        string
	methods      []string
	dProtein     bool
	polymerTypes []string
	exclusive    bool
	smiles       string
	queryType    string
	similarity   float64
	queryFile    string
	negate       bool
	workers      int
	export       string
	topic        string
}

// NewFilterCmd returns the filter command.
func NewFilterCmd() *cobra.Command {
	f := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Select structure records matching the given predicates",
		Long: "Reads JSON Lines structure records and prints the ids retained by the\n" +
			"conjunction of every predicate given.  Remote predicates query the\n" +
			"search service once before records are read.",
		Example: `  pdbsieve filter --input records.jsonl --methods "X-RAY DIFFRACTION" --d-protein
  pdbsieve filter --input - --smiles "CC(=O)O" --query-type similar --similarity 70
  pdbsieve filter --input records.jsonl --query-file query.json --exclusive --not`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "JSON Lines record file, - for stdin or an s3:// object (required)")
	fl.StringSliceVar(&f.methods, "methods", nil, "exact set of experimental methods")
	fl.BoolVar(&f.dProtein, "d-protein", false, "require D-protein chains")
	fl.StringSliceVar(&f.polymerTypes, "polymer-types", nil, "accepted polymer linkage types")
	fl.BoolVar(&f.exclusive, "exclusive", false, "every polymer chain must match instead of one")
	fl.StringVar(&f.smiles, "smiles", "", "chemical structure query in SMILES")
	fl.StringVar(&f.queryType, "query-type", "substructure", "chemical query type ("+queryTypeNames()+")")
	fl.Float64Var(&f.similarity, "similarity", 0, "minimum similarity percentage [0, 100]")
	fl.StringVar(&f.queryFile, "query-file", "", "file holding an RCSB advanced search request")
	fl.BoolVar(&f.negate, "not", false, "negate the combined predicate")
	fl.IntVar(&f.workers, "workers", 0, "concurrent evaluations (default from config)")
	fl.StringVar(&f.export, "export", "", "also write the JSON result to this s3:// object")
	fl.StringVar(&f.topic, "topic", "", "kafka topic for retained structures (default from config)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func queryTypeNames() string {
	var names []string
	for _, qt := range webfilter.QueryTypes() {
		names = append(names, strings.ToLower(qt.String()))
	}
	return strings.Join(names, ", ")
}

func readQueryFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInvalidFilterConfig, fmt.Sprintf("cannot read query file %q", path))
	}
	return string(data), nil
}

func runFilter(cmd *cobra.Command, f *filterFlags) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.commandContext(cmd.Context())
	defer cancel()

	payload, err := readQueryFile(f.queryFile)
	if err != nil {
		return err
	}
	opts := sieve.Options{
		Methods:      f.methods,
		DProtein:     f.dProtein,
		PolymerTypes: f.polymerTypes,
		Exclusive:    f.exclusive,
		QueryPayload: payload,
		SMILES:       f.smiles,
		QueryType:    f.queryType,
		Similarity:   f.similarity,
		Negate:       f.negate,
	}

	var svc webfilter.SearchService
	if opts.HasRemote() {
		if svc, err = cliCtx.SearchService(); err != nil {
			return err
		}
	}
	flt, err := sieve.NewBuilder(svc, cliCtx.Logger, cliCtx.Metrics).Build(ctx, opts)
	if err != nil {
		return err
	}

	if f.export != "" && !minio.IsURI(f.export) {
		return errors.Newf(errors.CodeInvalidParam, "--export needs an %s location, got %q", minio.Scheme, f.export)
	}
	src, closer, err := cliCtx.openInput(ctx, f.input)
	if err != nil {
		return err
	}
	defer closer.Close()

	workers := f.workers
	if workers <= 0 {
		workers = cliCtx.Config.Pipeline.Workers
	}
	runner := sieve.NewRunner(
		sieve.WithWorkers(workers),
		sieve.WithProgressEvery(cliCtx.Config.Pipeline.ProgressEvery),
		sieve.WithRunnerLogger(cliCtx.Logger),
		sieve.WithRunnerMetrics(cliCtx.Metrics),
	)
	res, err := runner.Run(ctx, src, flt)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	desc := filter.Describe(flt)
	if err := publishRetained(ctx, cliCtx, f.topic, runID, desc, res.Retained); err != nil {
		return err
	}
	if f.export != "" {
		if err := exportResult(ctx, cliCtx, f.export, runID, desc, res); err != nil {
			return err
		}
	}

	if cliCtx.Verbose {
		PrintSuccess(cmd, fmt.Sprintf("%d of %d records retained in %s",
			len(res.Retained), res.Evaluated, res.Duration.Round(1e6)))
	}
	cliCtx.Logger.Debug("filter command finished",
		logging.String("run_id", runID), logging.Int("retained", len(res.Retained)))
	return PrintResult(cmd, filterOutput{res})
}

func publishRetained(ctx context.Context, cliCtx *CLIContext, topic, runID, desc string, ids []string) error {
	p, err := cliCtx.Publisher()
	if err != nil || p == nil {
		return err
	}
	if topic == "" {
		topic = cliCtx.Config.Kafka.Topic
	}
	return p.PublishRetained(ctx, topic, runID, desc, ids)
}

type exportDocument struct {
	RunID  string `json:"run_id"`
	Filter string `json:"filter"`
	*sieve.Result
}

func exportResult(ctx context.Context, cliCtx *CLIContext, uri, runID, desc string, res *sieve.Result) error {
	store, err := cliCtx.ObjectStore()
	if err != nil {
		return err
	}
	data, err := json.Marshal(exportDocument{RunID: runID, Filter: desc, Result: res})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result")
	}
	return store.Put(ctx, uri, data, "application/json")
}

type filterOutput struct {
	*sieve.Result
}

func (o filterOutput) String() string {
	var sb strings.Builder
	for _, id := range o.Retained {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (o filterOutput) TableHeaders() []string { return []string{"#", "Structure"} }

func (o filterOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Retained))
	for i, id := range o.Retained {
		rows[i] = []string{strconv.Itoa(i + 1), id}
	}
	return rows
}
