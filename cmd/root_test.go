//go:build !integration

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

	expected := []string{"serve", "ingest", "export", "leads", "enrich", "dedupe", "operators"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lead-pipeline", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestLeadsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range leadsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "stats", "status"} {
		assert.True(t, names[name], "expected leads subcommand %q not found", name)
	}
}

func TestOperatorsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range operatorsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"grant", "revoke", "token"} {
		assert.True(t, names[name], "expected operators subcommand %q not found", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	tests := map[string]string{
		"status":      "new",
		"limit":       "500",
		"format":      "csv",
		"mark-queued": "false",
	}
	for name, def := range tests {
		flag := exportCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "export command should have --%s flag", name)
		assert.Equal(t, def, flag.DefValue)
	}
}

func TestEnrichCommand_Flags(t *testing.T) {
	flag := enrichCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)
}

func TestIngestCommand_RequiresFile(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	assert.Equal(t, "f", flag.Shorthand)
}
