package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/101/report.pdf", ReportKey(101, ReportFull))
	assert.Equal(t, "reports/101/preview.pdf", ReportKey(101, ReportPreview))
}
