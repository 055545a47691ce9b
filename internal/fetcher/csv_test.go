package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) [][]string {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)
	return rows
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "Tomates grappe;5;kg;12.50\nBeurre doux AOP;2;kg;18.00\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
	})
	rows := collectRows(t, rowCh, errCh)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Tomates grappe", "5", "kg", "12.50"}, rows[0])
	assert.Equal(t, []string{"Beurre doux AOP", "2", "kg", "18.00"}, rows[1])
}

func TestStreamCSV_HeaderRow(t *testing.T) {
	input := "produit,quantite,unite,total\nFarine T55,25,kg,30.00\n"
	headerCh := make(chan []string, 1)

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	rows := collectRows(t, rowCh, errCh)

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Farine T55", "25", "kg", "30.00"}, rows[0])
	assert.Equal(t, []string{"produit", "quantite", "unite", "total"}, <-headerCh)
}

func TestStreamCSV_Latin1Decoding(t *testing.T) {
	// "Crème fraîche" with è and î as Latin-1 single bytes.
	input := "Cr\xe8me fra\xeeche,1,l,4.20\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Encoding: "latin1",
	})
	rows := collectRows(t, rowCh, errCh)

	require.Len(t, rows, 1)
	assert.Equal(t, "Crème fraîche", rows[0][0])
}

func TestStreamCSV_UnsupportedEncoding(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader("a,b\n"), CSVOptions{
		Encoding: "ebcdic",
	})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")
}

func TestStreamCSV_TrimSpace(t *testing.T) {
	input := " Oignons jaunes , 10 , kg , 8.00 \n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		TrimSpace: true,
	})
	rows := collectRows(t, rowCh, errCh)

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Oignons jaunes", "10", "kg", "8.00"}, rows[0])
}

func TestStreamCSV_VariableFieldCounts(t *testing.T) {
	input := "a,b,c\nd,e\nf\n"

	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows := collectRows(t, rowCh, errCh)

	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 2)
	assert.Len(t, rows[2], 1)
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a,b\nc,d\n"), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}
