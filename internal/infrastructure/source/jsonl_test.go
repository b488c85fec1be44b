package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PDB-Sieve/pkg/errors"
	"github.com/turtacn/PDB-Sieve/pkg/types/structure"
)

const twoRecords = `{"structure_id":"1ABC","chains_per_model":[2],"chains":[{"id":"A","polymer":true,"linkage_type":"l-peptide linking"},{"id":"B","polymer":false}],"entities":[{"chain_index_list":[0]},{"chain_index_list":[1]}],"experimental_methods":["X-RAY DIFFRACTION"]}

{"structure_id":"2XYZ","chains":[{"id":"A","polymer":true,"linkage_type":"D-PEPTIDE LINKING"}],"experimental_methods":["SOLUTION NMR"]}
`

func TestJSONLines_ReadsRecords(t *testing.T) {
	ctx := context.Background()
	src := NewJSONLines(strings.NewReader(twoRecords))

	first, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1ABC", first.StructureID())
	assert.Equal(t, 2, first.NumChains())
	lt, ok := first.ChainLinkageType(0)
	assert.True(t, ok)
	assert.Equal(t, structure.LPeptideLinking, lt)

	second, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2XYZ", second.StructureID())
	assert.Equal(t, []int{1}, second.ChainsPerModel(), "single model is implied")
	assert.Equal(t, 3, src.Line())

	_, err = src.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestJSONLines_NoTrailingNewline(t *testing.T) {
	src := NewJSONLines(strings.NewReader(`{"structure_id":"3DEF"}`))
	e, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3DEF", e.StructureID())
	_, err = src.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestJSONLines_MalformedLine(t *testing.T) {
	src := NewJSONLines(strings.NewReader("{\"structure_id\":\"1ABC\"}\n{not json}\n"))
	_, err := src.Next(context.Background())
	require.NoError(t, err)

	_, err = src.Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRecordDecode))
	assert.Contains(t, err.Error(), "line 2")
}

func TestJSONLines_InvalidRecord(t *testing.T) {
	in := `{"structure_id":"1ABC","chains_per_model":[3],"chains":[{"id":"A"}]}`
	_, err := NewJSONLines(strings.NewReader(in)).Next(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeRecordDecode))
	assert.Contains(t, err.Error(), "line 1")
}

func TestJSONLines_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewJSONLines(strings.NewReader(twoRecords)).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(twoRecords), 0o600))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	entries, err := ReadAll(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2XYZ", entries[1].ID)
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestSlice(t *testing.T) {
	a := &structure.Entry{ID: "A"}
	b := &structure.Entry{ID: "B"}
	entries, err := ReadAll(context.Background(), NewSlice(a, b))
	require.NoError(t, err)
	assert.Equal(t, []*structure.Entry{a, b}, entries)
}
