package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteProgressReport(t *testing.T) {
	var buf bytes.Buffer
	err := WriteProgressReport(&buf, []ProgressRow{
		{Username: "alice", Role: "annotator", Assigned: 4, Annotated: 1},
		{Username: "bob", Role: "reviewer", Assigned: 0, Annotated: 0},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(progressSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"Username", "Role", "Assigned", "Annotated", "Completion"}, rows[0])
	require.Equal(t, "alice", rows[1][0])
	require.Equal(t, "4", rows[1][2])
	require.Equal(t, "1", rows[1][3])
	require.Equal(t, "bob", rows[2][0])

	raw, err := f.GetCellValue(progressSheet, "E2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Equal(t, "0.25", raw)
}
