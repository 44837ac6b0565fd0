package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPoliciesValidate(t *testing.T) {
	path := writeFile(t, `
policies:
  - name: Small
    target: invoice
    min_amount: 0
    max_amount: 50000
    required_approvers: ["Team Lead"]
  - name: Large
    target: invoice
    min_amount: 50000
    required_approvers: ["Team Lead", "Controller"]
`)
	out, err := execute(t, "policies", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "$500.00")
	assert.Contains(t, out, "2 policies OK")
}

func TestPoliciesValidate_Gap(t *testing.T) {
	path := writeFile(t, `
policies:
  - name: Small
    target: invoice
    min_amount: 0
    max_amount: 50000
    required_approvers: ["Team Lead"]
  - name: Large
    target: invoice
    min_amount: 60000
    required_approvers: ["Controller"]
`)
	_, err := execute(t, "policies", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not contiguous")
}

func TestReport_FlagValidation(t *testing.T) {
	_, err := execute(t, "report", "--format", "csv")
	assert.EqualError(t, err, `unknown format "csv"`)

	_, err = execute(t, "report", "--format", "xlsx")
	assert.EqualError(t, err, "--out is required for xlsx output")
}

func TestWriteReport(t *testing.T) {
	report := &reasoning.Report{Revision: 7}

	var stdout bytes.Buffer
	require.NoError(t, writeReport(&stdout, report, "json", ""))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, float64(7), decoded["revision"])

	path := filepath.Join(t.TempDir(), "report.xlsx")
	stdout.Reset()
	require.NoError(t, writeReport(&stdout, report, "xlsx", path))
	assert.Contains(t, stdout.String(), "revision 7")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Summary")
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$0.00", dollars(0))
	assert.Equal(t, "$1000.00", dollars(100000))
	assert.Equal(t, "$5709.18", dollars(570918))
}
