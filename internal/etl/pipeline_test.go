package etl

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `EVENT_ID,STATE,EVENT_TYPE,BEGIN_DATE_TIME,END_DATE_TIME,MAGNITUDE,BEGIN_LAT,BEGIN_LON
1,TEXAS,Tornado,28-APR-23 14:30:00,28-APR-23 14:35:00,2.0,32.78,-96.80
2,TEXAS,Hail,28-APR-23 15:00:00,28-APR-23 15:05:00,1.75,32.90,-96.70
,TEXAS,Tornado,28-APR-23 16:00:00,28-APR-23 16:05:00,,,
3,OKLAHOMA,Tornado,not a time,,,,
4,OKLAHOMA,Tornado,29-APR-23 09:00:00,29-APR-23 09:10:00,,,
`

func TestTransform_SkipsBadRowsAndCounts(t *testing.T) {
	p := NewPipeline(nil, "", discardLogger())
	w := NewPartitionWriter(t.TempDir())

	res, err := p.transform(context.Background(), csv.NewReader(strings.NewReader(sampleCSV)), w)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, int64(2), res.Skipped)
	assert.Equal(t, []string{
		"year=2023/event_type_part=hail",
		"year=2023/event_type_part=tornado",
	}, w.Partitions())
}

func TestTransform_HeaderMissingRequiredColumn(t *testing.T) {
	p := NewPipeline(nil, "", discardLogger())
	w := NewPartitionWriter(t.TempDir())

	_, err := p.transform(context.Background(), csv.NewReader(strings.NewReader("STATE,MAGNITUDE\nTEXAS,1.0\n")), w)
	require.Error(t, err)
}

func TestTransform_ContextCancelStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(nil, "", discardLogger())
	w := NewPartitionWriter(t.TempDir())

	_, err := p.transform(ctx, csv.NewReader(strings.NewReader(sampleCSV)), w)
	assert.ErrorIs(t, err, context.Canceled)
}
