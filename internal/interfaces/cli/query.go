package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/PDB-Sieve/internal/domain/webfilter"
	"github.com/turtacn/PDB-Sieve/pkg/errors"
)

type queryFlags struct {
	smiles     string
	queryType  string
	similarity float64
	queryFile  string
}

// NewQueryCmd returns the query command.
func NewQueryCmd() *cobra.Command {
	q := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a search and print the matching identifiers",
		Example: `  pdbsieve query --smiles "c1ccccc1" --query-type substructure
  pdbsieve query --query-file query.json -o table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, q)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&q.smiles, "smiles", "", "chemical structure query in SMILES")
	fl.StringVar(&q.queryType, "query-type", "substructure", "chemical query type ("+queryTypeNames()+")")
	fl.Float64Var(&q.similarity, "similarity", 0, "minimum similarity percentage [0, 100]")
	fl.StringVar(&q.queryFile, "query-file", "", "file holding an RCSB advanced search request")
	return cmd
}

func runQuery(cmd *cobra.Command, q *queryFlags) error {
	switch {
	case q.smiles != "" && q.queryFile != "":
		return errors.InvalidParam("--smiles and --query-file are mutually exclusive")
	case q.smiles == "" && q.queryFile == "":
		return errors.InvalidParam("one of --smiles or --query-file must be provided")
	}
	if q.similarity < 0 || q.similarity > 100 {
		return errors.Newf(errors.CodeInvalidFilterConfig, "percent similarity %g outside [0, 100]", q.similarity)
	}

	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := cliCtx.commandContext(cmd.Context())
	defer cancel()

	payload, err := readQueryFile(q.queryFile)
	if err != nil {
		return err
	}
	if q.smiles != "" {
		qt, err := webfilter.ParseQueryType(q.queryType)
		if err != nil {
			return err
		}
		if payload, err = webfilter.BuildChemicalQuery(q.smiles, qt); err != nil {
			return err
		}
	}

	svc, err := cliCtx.SearchService()
	if err != nil {
		return err
	}
	res, err := svc.PostQuery(ctx, strings.TrimSpace(payload))
	if err != nil {
		return errors.Wrap(err, errors.CodeRemoteQueryFailed, "search failed")
	}

	out := queryOutput{ResultType: res.ResultType, Hits: make([]queryHit, 0, len(res.Identifiers))}
	for i, id := range res.Identifiers {
		hit := queryHit{Identifier: id}
		if i < len(res.Scores) {
			hit.Score = res.Scores[i]
			if hit.Score*100 < q.similarity {
				continue
			}
		} else if q.similarity > 0 {
			continue
		}
		out.Hits = append(out.Hits, hit)
	}
	return PrintResult(cmd, out)
}

type queryHit struct {
	Identifier string  `json:"identifier"`
	Score      float64 `json:"score"`
}

type queryOutput struct {
	ResultType string     `json:"result_type"`
	Hits       []queryHit `json:"hits"`
}

func (o queryOutput) String() string {
	var sb strings.Builder
	for _, h := range o.Hits {
		fmt.Fprintf(&sb, "%s\t%.4f\n", h.Identifier, h.Score)
	}
	return sb.String()
}

func (o queryOutput) TableHeaders() []string {
	return []string{"Rank", "Identifier", "Score", "Type"}
}

func (o queryOutput) TableRows() [][]string {
	rows := make([][]string, len(o.Hits))
	for i, h := range o.Hits {
		rows[i] = []string{strconv.Itoa(i + 1), h.Identifier, colorizeScore(h.Score), o.ResultType}
	}
	return rows
}
