package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportJobDownload(t *testing.T) {
	url := "/api/v1/export/abc.def"
	job := &ReportJob{Status: ReportStatusFinished, ResultURL: &url}
	assert.True(t, job.Downloadable())
	assert.Equal(t, "abc.def", job.DownloadToken())

	job.Status = ReportStatusProcessing
	assert.False(t, job.Downloadable())
	assert.False(t, job.Status.Terminal())
	assert.Empty(t, (&ReportJob{}).DownloadToken())
}

func TestReportFormatQueueable(t *testing.T) {
	assert.True(t, ReportFormatCSV.Queueable())
	assert.True(t, ReportFormatPDF.Queueable())
	assert.False(t, ReportFormatJSON.Queueable())
	assert.False(t, ReportType("grades").Valid())
}

func TestReportJobParamsScan(t *testing.T) {
	var p ReportJobParams
	require.NoError(t, p.Scan([]byte(`{"course_id":"c-1","format":"pdf","start_date":"2024-03-01"}`)))
	assert.Equal(t, "c-1", p.CourseID)
	assert.Equal(t, ReportFormatPDF, p.Format)
	require.NotNil(t, p.StartDate)
	assert.Equal(t, "2024-03-01", p.StartDate.String())

	require.NoError(t, p.Scan(nil))
	assert.Empty(t, p.CourseID)
	assert.Error(t, p.Scan(42))
}
