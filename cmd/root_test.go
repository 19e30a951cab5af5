package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"audit", "diagnose", "diagnose-pdf", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "coi-audit", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAuditCommand_Flags(t *testing.T) {
	for _, name := range []string{"roster", "dir", "start", "end", "format", "output", "concurrency"} {
		require.NotNil(t, auditCmd.Flags().Lookup(name), "audit command should have --%s flag", name)
	}
	assert.Equal(t, "0", auditCmd.Flags().Lookup("concurrency").DefValue)
}

func TestDiagnoseCommand_Flags(t *testing.T) {
	require.NotNil(t, diagnoseCmd.Flags().Lookup("name"))
	require.NotNil(t, diagnoseCmd.Flags().Lookup("dir"))
	require.NotNil(t, diagnoseCmd.Flags().Lookup("output"))
	assert.True(t, diagnoseCmd.SilenceUsage)
}

func TestDiagnosePDFCommand_Args(t *testing.T) {
	assert.Error(t, diagnosePDFCmd.Args(diagnosePDFCmd, nil))
	assert.NoError(t, diagnosePDFCmd.Args(diagnosePDFCmd, []string{"cert.pdf"}))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
